package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"fete/pkg/platform/httputil"
	"fete/pkg/requestcontext"
)

// RateLimit applies a fixed-window per-IP limit to public endpoints using a
// Redis INCR+EXPIRE counter. It fails open: if Redis is down, guests still
// get through and the quota ledger remains the hard backstop.
func RateLimit(client *redis.Client, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if client == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := "fete:rl:" + requestcontext.ClientIP(ctx)

			pipe := client.TxPipeline()
			incr := pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, window)
			if _, err := pipe.Exec(ctx); err != nil {
				logger.WarnContext(ctx, "rate limiter unavailable, failing open", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if incr.Val() > int64(limit) {
				w.Header().Set("Retry-After", window.String())
				httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"error":             "rate_limited",
					"error_description": "too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
