package httpserver

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/fairyhunter13/lawbot/internal/domain"
	"github.com/fairyhunter13/lawbot/internal/service/ratelimiter"
)

var rateLimitedBody = errorBody{Error: "Rate limit exceeded. Please try again later.", ErrorType: string(domain.KindRateLimit)}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second).Seconds())))
	}
	writeJSON(w, http.StatusTooManyRequests, rateLimitedBody)
}

// RateLimitByIP limits requests per client IP to perHour. With a Redis
// limiter the budget is shared across replicas; without one an in-memory
// sliding window is used. A zero budget disables limiting.
func RateLimitByIP(limiter ratelimiter.Limiter, perHour int) func(http.Handler) http.Handler {
	if perHour <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if limiter == nil {
		return httprate.Limit(perHour, time.Hour,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) { return clientIP(r), nil }),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeRateLimited(w, 0)
			}),
		)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			allowed, retry, err := limiter.Allow(r.Context(), "ip:"+ip, 1)
			if err != nil {
				LoggerFrom(r).Warn("rate limiter unavailable, allowing request", slog.String("ip", ip), slog.Any("error", err))
			}
			if !allowed {
				LoggerFrom(r).Warn("rate limit exceeded", slog.String("ip", ip))
				writeRateLimited(w, retry)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
