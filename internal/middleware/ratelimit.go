package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit creates rate limiting middleware. Requests carrying a
// session ID header share one bucket per conversation; everything else
// falls back to the client IP.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if sessionID := r.Header.Get("X-Session-ID"); sessionID != "" {
				return "session:" + sessionID, nil
			}
			if subject := GetSubject(r.Context()); subject != "" {
				return "subject:" + subject, nil
			}
			if storeID := GetStoreID(r.Context()); storeID != "" {
				return "store:" + storeID, nil
			}
			return "ip:" + r.RemoteAddr, nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded","retry_after":60}`))
		}),
	)
}
