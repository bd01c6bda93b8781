// Package store persists editor state in a process-wide key-value table:
// the split pane sizes, the autosaved editor content and the background
// pattern. Values are strings; the typed accessors own their encoding.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/diagrammer/dbopen"
)

// Keys.
const (
	KeySplitSizes        = "split-sizes"
	KeyEditorState       = "mermaid-code"
	KeyBackgroundPattern = "background-pattern"
)

// DefaultTTL is how long autosaved editor content stays valid.
const DefaultTTL = time.Hour

// Schema creates the key-value table.
const Schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("store: key not found")

// Pattern is the editor canvas background.
type Pattern string

const (
	PatternDot  Pattern = "dot"
	PatternGrid Pattern = "grid"
)

// Toggle returns the other pattern.
func (p Pattern) Toggle() Pattern {
	if p == PatternGrid {
		return PatternDot
	}
	return PatternGrid
}

// CSS returns the background-image and background-size declarations for p.
func (p Pattern) CSS() (image, size string) {
	if p == PatternGrid {
		return "linear-gradient(#e0e0e0 1px, transparent 1px), linear-gradient(90deg, #e0e0e0 1px, transparent 1px)", "20px 20px"
	}
	return "radial-gradient(circle, #d0d0d0 1px, transparent 1px)", "20px 20px"
}

// ParsePattern accepts "dot" and "grid".
func ParsePattern(s string) (Pattern, error) {
	switch Pattern(s) {
	case PatternDot, PatternGrid:
		return Pattern(s), nil
	}
	return "", fmt.Errorf("store: unknown background pattern %q", s)
}

// EditorState is the autosaved editor content.
type EditorState struct {
	Code      string `json:"code"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// Store is the SQLite-backed key-value store.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// New wraps a database opened with Schema applied.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, ttl: DefaultTTL, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open opens (or creates) the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, err
	}
	return New(db, opts...), nil
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get %s: %w", key, err)
	}
	return v, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := dbopen.Exec(ctx, s.db, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

// SplitSizes returns the saved pane sizes, or [50, 50].
func (s *Store) SplitSizes(ctx context.Context) ([2]float64, error) {
	def := [2]float64{50, 50}
	v, err := s.Get(ctx, KeySplitSizes)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	var sizes []float64
	if err := json.Unmarshal([]byte(v), &sizes); err != nil || len(sizes) != 2 {
		s.logger.Warn("store: ignoring malformed split sizes", "value", v)
		return def, nil
	}
	return [2]float64{sizes[0], sizes[1]}, nil
}

// SetSplitSizes saves the pane sizes.
func (s *Store) SetSplitSizes(ctx context.Context, sizes [2]float64) error {
	b, _ := json.Marshal(sizes[:])
	return s.Set(ctx, KeySplitSizes, string(b))
}

// SaveEditorState autosaves code stamped with the current time and returns
// what was written.
func (s *Store) SaveEditorState(ctx context.Context, code string) (EditorState, error) {
	st := EditorState{Code: code, Timestamp: s.now().UnixMilli()}
	b, err := json.Marshal(st)
	if err != nil {
		return EditorState{}, fmt.Errorf("store: encode editor state: %w", err)
	}
	return st, s.Set(ctx, KeyEditorState, string(b))
}

// LoadEditorState returns the autosaved content if it is younger than the
// TTL. Expired content is deleted. Content that does not decode, or lacks a
// code or timestamp, is ignored and left in place.
func (s *Store) LoadEditorState(ctx context.Context) (EditorState, bool, error) {
	v, err := s.Get(ctx, KeyEditorState)
	if errors.Is(err, ErrNotFound) {
		return EditorState{}, false, nil
	}
	if err != nil {
		return EditorState{}, false, err
	}
	var st EditorState
	if err := json.Unmarshal([]byte(v), &st); err != nil {
		s.logger.Debug("store: ignoring undecodable editor state", "error", err)
		return EditorState{}, false, nil
	}
	if st.Code == "" || st.Timestamp == 0 {
		return EditorState{}, false, nil
	}
	age := s.now().Sub(time.UnixMilli(st.Timestamp))
	if age >= s.ttl {
		if err := s.Delete(ctx, KeyEditorState); err != nil {
			return EditorState{}, false, err
		}
		s.logger.Info("store: autosave expired", "age", age.Round(time.Second))
		return EditorState{}, false, nil
	}
	return st, true, nil
}

// BackgroundPattern returns the saved pattern, or dot.
func (s *Store) BackgroundPattern(ctx context.Context) (Pattern, error) {
	v, err := s.Get(ctx, KeyBackgroundPattern)
	if errors.Is(err, ErrNotFound) {
		return PatternDot, nil
	}
	if err != nil {
		return PatternDot, err
	}
	p, err := ParsePattern(v)
	if err != nil {
		return PatternDot, nil
	}
	return p, nil
}

// SetBackgroundPattern saves p.
func (s *Store) SetBackgroundPattern(ctx context.Context, p Pattern) error {
	return s.Set(ctx, KeyBackgroundPattern, string(p))
}

// Version returns the latest update time across all keys, in epoch
// milliseconds. It changes whenever any process writes to the store.
func (s *Store) Version(ctx context.Context) (int64, error) {
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM kv`).Scan(&v); err != nil {
		return 0, fmt.Errorf("store: version: %w", err)
	}
	return v.Int64, nil
}
