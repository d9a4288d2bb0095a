// Package ratelimiter implements a Redis token bucket shared by all server
// replicas.
package ratelimiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

// BucketConfig is a token bucket: Capacity tokens, refilled at RefillRate
// tokens per second.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64
}

// NewBucketConfigPerHour allows perHour requests per hour with bursts of up
// to perHour.
func NewBucketConfigPerHour(perHour int) BucketConfig {
	if perHour <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{Capacity: int64(perHour), RefillRate: float64(perHour) / 3600.0}
}

// Enabled reports whether the bucket limits anything.
func (b BucketConfig) Enabled() bool { return b.Capacity > 0 && b.RefillRate > 0 }

// ttl is how long an idle bucket takes to refill completely.
func (b BucketConfig) ttl() time.Duration {
	return time.Duration(float64(b.Capacity)/b.RefillRate*float64(time.Second)) + time.Minute
}

// RedisLuaLimiter applies one bucket configuration to any number of keys.
// Redis failures fail open.
type RedisLuaLimiter struct {
	redis  redis.Scripter
	bucket BucketConfig
	prefix string
	script *redis.Script
}

var _ Limiter = (*RedisLuaLimiter)(nil)

// NewRedisLuaLimiter returns nil when rdb is nil.
func NewRedisLuaLimiter(rdb redis.Scripter, bucket BucketConfig) *RedisLuaLimiter {
	if rdb == nil {
		return nil
	}
	return &RedisLuaLimiter{
		redis:  rdb,
		bucket: bucket,
		prefix: "rate:",
		script: redis.NewScript(luaTokenBucketScript),
	}
}

// KEYS[1] bucket; ARGV capacity, refill_rate, now (seconds), cost, ttl (seconds).
// Returns {allowed, tokens_left, retry_after_seconds}.
const luaTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] then
  tokens = tonumber(data[1])
end
if data[2] then
  last_refill = tonumber(data[2])
end

local delta = now - last_refill
if delta < 0 then
  delta = 0
end
tokens = math.min(capacity, tokens + delta * refill_rate)

local allowed = 0
local retry_after = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  retry_after = math.ceil((cost - tokens) / refill_rate)
end

redis.call("HSET", key, "tokens", tostring(tokens), "last_refill", tostring(now))
redis.call("EXPIRE", key, ttl)

return { allowed, math.floor(tokens), retry_after }
`

// Allow consumes cost tokens from the bucket of key.
func (l *RedisLuaLimiter) Allow(ctx context.Context, key string, cost int64) (bool, time.Duration, error) {
	if l == nil || l.redis == nil || !l.bucket.Enabled() {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}
	now := float64(time.Now().UnixNano()) / 1e9
	ttl := int64(l.bucket.ttl() / time.Second)

	res, err := l.script.Run(ctx, l.redis, []string{l.prefix + key}, l.bucket.Capacity, l.bucket.RefillRate, now, cost, ttl).Int64Slice()
	if err != nil {
		slog.Error("redis rate limiter script error", slog.String("key", key), slog.Any("error", err))
		return true, 0, fmt.Errorf("op=ratelimiter.Allow: %w", err)
	}
	if len(res) < 3 {
		slog.Error("redis rate limiter unexpected script result", slog.String("key", key), slog.Any("result", res))
		return true, 0, nil
	}
	return res[0] == 1, time.Duration(res[2]) * time.Second, nil
}

// Limit returns the bucket capacity.
func (l *RedisLuaLimiter) Limit() int64 {
	if l == nil {
		return 0
	}
	return l.bucket.Capacity
}
