package shield

import "net/http"

// DefaultMaxBody caps request bodies: diagram source plus multipart framing
// for a 1 MiB upload.
const DefaultMaxBody int64 = 2 << 20

// MaxBody returns middleware that limits the request body size of every
// request that carries one.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
