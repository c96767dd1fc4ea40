package api

import (
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// rateLimit allows at most maxRequests per client IP within window, counted in redis.
func rateLimit(client *redis.Client, maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	if client == nil {
		panic("redis client cannot be nil for rateLimit middleware")
	}
	if maxRequests <= 0 || window <= 0 {
		panic("rateLimit needs a positive limit and window")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:" + clientIP(r)
			ctx := r.Context()

			pipe := client.TxPipeline()
			incr := pipe.Incr(ctx, key)
			ttl := pipe.TTL(ctx, key)
			_, err := pipe.Exec(ctx)
			if err == nil && ttl.Val() < 0 {
				// No expiry yet: first hit, or an earlier Expire was lost.
				err = client.Expire(ctx, key, window).Err()
			}
			if err != nil {
				logrus.WithError(err).Error("rate limit: redis command failed")
				respondError(w, http.StatusInternalServerError, "Rate limiting error")
				return
			}
			count := incr.Val()

			if count > int64(maxRequests) {
				respondError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
