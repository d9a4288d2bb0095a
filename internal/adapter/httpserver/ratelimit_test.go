package httpserver_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/lawbot/internal/adapter/httpserver"
	"github.com/fairyhunter13/lawbot/internal/service/ratelimiter"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func fromIP(ip string) map[string]string {
	return map[string]string{"X-Forwarded-For": ip + ", 10.0.0.1"}
}

func TestRateLimitByIP_InMemory(t *testing.T) {
	h := httpserver.RateLimitByIP(nil, 2)(okHandler)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/messages/", "", fromIP("203.0.113.7")).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/messages/", "", fromIP("203.0.113.7")).Code)
	rec := do(t, h, http.MethodGet, "/api/messages/", "", fromIP("203.0.113.7"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, map[string]any{"error": "Rate limit exceeded. Please try again later.", "error_type": "rate_limit"}, decode(t, rec))

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/messages/", "", fromIP("198.51.100.1")).Code)
}

func TestRateLimitByIP_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	lim := ratelimiter.NewRedisLuaLimiter(rdb, ratelimiter.NewBucketConfigPerHour(1))
	h := httpserver.RateLimitByIP(lim, 1)(okHandler)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/chat/", "", fromIP("203.0.113.9")).Code)
	rec := do(t, h, http.MethodPost, "/api/chat/", "", fromIP("203.0.113.9"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.True(t, mr.Exists("rate:ip:203.0.113.9"))
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int64) (bool, time.Duration, error) {
	return true, 0, errors.New("redis unavailable")
}

func TestRateLimitByIP_FailOpenAndDisabled(t *testing.T) {
	h := httpserver.RateLimitByIP(brokenLimiter{}, 1)(okHandler)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/", "", nil).Code)
	}

	h = httpserver.RateLimitByIP(nil, 0)(okHandler)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/", "", nil).Code)
	}
}
