package shield

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// MsgRateLimited is the notice returned with 429 responses.
const MsgRateLimited = "Too many requests, please wait a moment."

// RateLimitConfig defines the rate limit for a single endpoint prefix.
type RateLimitConfig struct {
	MaxRequests   int
	WindowSeconds int
	Enabled       bool
}

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter provides per-IP, per-endpoint rate limiting with rules read
// from the rate_limits table (see Schema).
type RateLimiter struct {
	db      *sql.DB
	logger  *slog.Logger
	rules   map[string]RateLimitConfig
	buckets sync.Map
	mu      sync.RWMutex
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter and loads its rules. Call
// StartReloader to refresh rules and collect expired buckets.
func NewRateLimiter(db *sql.DB, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimiter{
		db:     db,
		logger: logger,
		rules:  make(map[string]RateLimitConfig),
		now:    time.Now,
	}
	rl.Reload(context.Background())
	return rl
}

// StartReloader reloads rules every minute and drops expired buckets every
// five, until ctx is done.
func (rl *RateLimiter) StartReloader(ctx context.Context) {
	reloadTick := time.NewTicker(time.Minute)
	gcTick := time.NewTicker(5 * time.Minute)
	go func() {
		defer reloadTick.Stop()
		defer gcTick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-reloadTick.C:
				rl.Reload(ctx)
			case <-gcTick.C:
				rl.gc()
			}
		}
	}()
}

// Reload re-reads the rules. On error the previous rules stay in force.
func (rl *RateLimiter) Reload(ctx context.Context) {
	rows, err := rl.db.QueryContext(ctx, `SELECT endpoint, max_requests, window_seconds, enabled FROM rate_limits`)
	if err != nil {
		rl.logger.Warn("ratelimit: failed to reload rules", "error", err)
		return
	}
	defer rows.Close()

	rules := make(map[string]RateLimitConfig)
	for rows.Next() {
		var endpoint string
		var cfg RateLimitConfig
		var enabled int
		if err := rows.Scan(&endpoint, &cfg.MaxRequests, &cfg.WindowSeconds, &enabled); err != nil {
			continue
		}
		cfg.Enabled = enabled == 1
		rules[endpoint] = cfg
	}

	rl.mu.Lock()
	rl.rules = rules
	rl.mu.Unlock()
	rl.logger.Debug("ratelimit: rules reloaded", "count", len(rules))
}

func (rl *RateLimiter) gc() {
	now := rl.now()
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			rl.buckets.Delete(key)
		}
		return true
	})
}

// match returns the rule with the longest endpoint prefix of key.
func (rl *RateLimiter) match(key string) (string, RateLimitConfig, bool) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	var best string
	var cfg RateLimitConfig
	found := false
	for endpoint, c := range rl.rules {
		if strings.HasPrefix(key, endpoint) && len(endpoint) > len(best) {
			best, cfg, found = endpoint, c, true
		}
	}
	return best, cfg, found
}

func (rl *RateLimiter) allow(ip, key string) bool {
	endpoint, cfg, ok := rl.match(key)
	if !ok || !cfg.Enabled {
		return true
	}

	now := rl.now()
	window := time.Duration(cfg.WindowSeconds) * time.Second
	val, loaded := rl.buckets.LoadOrStore(ip+":"+endpoint, &bucket{count: 1, resetAt: now.Add(window)})
	if !loaded {
		return true
	}

	b := val.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.After(b.resetAt) {
		b.count = 1
		b.resetAt = now.Add(window)
		return true
	}
	b.count++
	return b.count <= cfg.MaxRequests
}

// Middleware enforces the limits. Blocked requests get 429 with a JSON
// notice.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		ip := ExtractIP(r)
		if rl.allow(ip, key) {
			next.ServeHTTP(w, r)
			return
		}

		GetLogger(r.Context()).Warn("ratelimit: request blocked", "ip", ip, "endpoint", key)
		w.Header().Set("Retry-After", "60")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"kind":   "rate_limited",
			"notice": MsgRateLimited,
		})
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
