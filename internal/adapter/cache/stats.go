// Package cache keeps short-lived running counters in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/lawbot/internal/domain"
)

const (
	keyTotalMessages = "total_message_count"
	keyAPIRequests   = "api_requests_count"
)

func messageKey(role domain.Role) string    { return "message_count_" + string(role) }
func errorKey(kind domain.ErrorKind) string { return "error_count_" + string(kind) }

// RedisStats implements domain.StatsRecorder. Every write refreshes the key
// TTL, so counters describe recent activity and vanish when idle.
type RedisStats struct {
	rdb redis.Cmdable
	ttl time.Duration
}

var _ domain.StatsRecorder = (*RedisStats)(nil)

// NewRedisStats returns a recorder; ttl <= 0 means one hour.
func NewRedisStats(rdb redis.Cmdable, ttl time.Duration) *RedisStats {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStats{rdb: rdb, ttl: ttl}
}

func (s *RedisStats) incr(ctx context.Context, keys ...string) {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			p.Incr(ctx, k)
			p.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	if err != nil {
		slog.Warn("stats counter update failed", slog.Any("keys", keys), slog.Any("error", err))
	}
}

// RecordMessage counts a saved message by role and in the total.
func (s *RedisStats) RecordMessage(ctx domain.Context, role domain.Role) {
	s.incr(ctx, messageKey(role), keyTotalMessages)
}

// RecordError counts an error event by kind.
func (s *RedisStats) RecordError(ctx domain.Context, kind domain.ErrorKind) {
	s.incr(ctx, errorKey(kind))
}

// RecordAPIRequest counts a request to the JSON API.
func (s *RedisStats) RecordAPIRequest(ctx domain.Context) {
	s.incr(ctx, keyAPIRequests)
}

// Snapshot reads all counters. Missing keys read as zero.
func (s *RedisStats) Snapshot(ctx domain.Context) (domain.StatsSnapshot, error) {
	roles := []domain.Role{domain.RoleUser, domain.RoleAssistant, domain.RoleSystem}
	keys := make([]string, 0, len(roles)+len(domain.AllErrorKinds)+2)
	for _, r := range roles {
		keys = append(keys, messageKey(r))
	}
	for _, k := range domain.AllErrorKinds {
		keys = append(keys, errorKey(k))
	}
	keys = append(keys, keyTotalMessages, keyAPIRequests)

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.StatsSnapshot{}, fmt.Errorf("op=cache.Snapshot: %w", err)
	}
	num := func(i int) int64 {
		if i >= len(vals) {
			return 0
		}
		str, ok := vals[i].(string)
		if !ok {
			return 0
		}
		n, _ := strconv.ParseInt(str, 10, 64)
		return n
	}

	snap := domain.StatsSnapshot{
		Messages: make(map[domain.Role]int64, len(roles)),
		Errors:   make(map[domain.ErrorKind]int64, len(domain.AllErrorKinds)),
	}
	i := 0
	for _, r := range roles {
		snap.Messages[r] = num(i)
		i++
	}
	for _, k := range domain.AllErrorKinds {
		snap.Errors[k] = num(i)
		i++
	}
	snap.Total = num(i)
	snap.APIRequests = num(i + 1)
	return snap, nil
}

// NopStats discards everything; used when Redis is not configured.
type NopStats struct{}

var _ domain.StatsRecorder = NopStats{}

func (NopStats) RecordMessage(domain.Context, domain.Role)    {}
func (NopStats) RecordError(domain.Context, domain.ErrorKind) {}
func (NopStats) RecordAPIRequest(domain.Context)              {}

// Snapshot returns empty counters.
func (NopStats) Snapshot(domain.Context) (domain.StatsSnapshot, error) {
	return domain.StatsSnapshot{
		Messages: map[domain.Role]int64{},
		Errors:   map[domain.ErrorKind]int64{},
	}, nil
}
