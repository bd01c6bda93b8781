package shield

import "database/sql"

// Schema defines the rate_limits table read by RateLimiter. Endpoints are
// "METHOD /path/prefix" keys; the longest matching prefix wins. The seed
// rows throttle the endpoints that drive headless Chrome.
const Schema = `
CREATE TABLE IF NOT EXISTS rate_limits (
    endpoint       TEXT PRIMARY KEY,
    max_requests   INTEGER NOT NULL DEFAULT 60,
    window_seconds INTEGER NOT NULL DEFAULT 60,
    enabled        INTEGER NOT NULL DEFAULT 1
);

INSERT OR IGNORE INTO rate_limits (endpoint, max_requests, window_seconds, enabled) VALUES
    ('GET /api/export/', 30, 60, 1),
    ('POST /api/render', 120, 60, 1);
`

// Init creates the shield tables if they don't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
