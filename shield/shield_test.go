package shield

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/diagrammer/dbopen"
	"github.com/hazyhaar/diagrammer/kit"
)

func TestDefaultStackHeadAndPanic(t *testing.T) {
	r := chi.NewRouter()
	for _, mw := range DefaultStack(nil) {
		r.Use(mw)
	}
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) { panic("render crashed") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("HEAD /health = %d", rec.Code)
	}
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Fatal("no trace id on HEAD")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("panic = %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(DefaultHeaders())(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	for _, h := range []string{"Content-Security-Policy", "X-Frame-Options", "X-Content-Type-Options", "Referrer-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("%s not set", h)
		}
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("PUT", "/api/source", strings.NewReader("0123456789")))
	if readErr == nil {
		t.Fatal("oversize body read without error")
	}
}

func TestTraceID(t *testing.T) {
	var traceID string
	var hasLogger bool
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = kit.GetTraceID(r.Context())
		_, hasLogger = r.Context().Value(LoggerKey).(interface{ Info(string, ...any) })
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if !strings.HasPrefix(traceID, "trc_") || len(traceID) != 16 {
		t.Fatalf("trace id = %q", traceID)
	}
	if rec.Header().Get("X-Trace-ID") != traceID {
		t.Fatalf("header = %q", rec.Header().Get("X-Trace-ID"))
	}
	if !hasLogger {
		t.Fatal("no request logger in context")
	}
}

func TestRateLimiter(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	if _, err := db.Exec(`UPDATE rate_limits SET max_requests = 2 WHERE endpoint = 'GET /api/export/'`); err != nil {
		t.Fatal(err)
	}
	rl := NewRateLimiter(db, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	do := func(path, ip string) int {
		req := httptest.NewRequest("GET", path, nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i, want := range []int{200, 200, 429} {
		if got := do("/api/export/png", "10.0.0.1"); got != want {
			t.Fatalf("request %d: status %d, want %d", i, got, want)
		}
	}
	// The prefix rule covers every format under one bucket.
	if got := do("/api/export/pdf", "10.0.0.1"); got != 429 {
		t.Fatalf("pdf status %d, want 429", got)
	}
	if got := do("/api/export/png", "10.0.0.2"); got != 200 {
		t.Fatalf("other ip status %d", got)
	}
	if got := do("/api/source", "10.0.0.1"); got != 200 {
		t.Fatalf("unlimited path status %d", got)
	}

	now = now.Add(61 * time.Second)
	if got := do("/api/export/png", "10.0.0.1"); got != 200 {
		t.Fatalf("after window status %d", got)
	}
	rl.gc()
}

func TestRateLimiterResponse(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	db.Exec(`UPDATE rate_limits SET max_requests = 0 WHERE endpoint = 'POST /api/render'`)
	rl := NewRateLimiter(db, nil)

	h := rl.Middleware(http.NotFoundHandler())
	// First request of a window is always let through.
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/render", nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/render", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["notice"] != MsgRateLimited || rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("body = %v", body)
	}
}

func TestExtractIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	if got := ExtractIP(r); got != "192.0.2.1" {
		t.Fatalf("got %q", got)
	}
	r.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if got := ExtractIP(r); got != "203.0.113.9" {
		t.Fatalf("got %q", got)
	}
}
