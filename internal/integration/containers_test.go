//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fairyhunter13/lawbot/internal/adapter/cache"
	"github.com/fairyhunter13/lawbot/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/lawbot/internal/domain"
	"github.com/fairyhunter13/lawbot/internal/usecase"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	host, err := c.Host(ctx)
	require.NoError(t, err)
	p, err := c.MappedPort(ctx, port)
	require.NoError(t, err)
	return host + ":" + p.Port()
}

func TestMessageStore_Postgres(t *testing.T) {
	ctx := context.Background()
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "lawbot"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(90 * time.Second),
	}, "5432")

	pool, err := postgres.NewPool(ctx, "postgres://postgres:postgres@"+addr+"/lawbot?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.WaitReady(ctx, pool, 30*time.Second))
	require.NoError(t, postgres.EnsureSchema(ctx, pool))
	require.NoError(t, postgres.EnsureSchema(ctx, pool))

	repo := postgres.NewMessageRepo(pool, domain.DefaultContentMaxLen)
	old := time.Now().UTC().AddDate(0, 0, -40)
	_, err = repo.Create(ctx, domain.Message{Role: domain.RoleUser, Content: "stale", CreatedAt: old})
	require.NoError(t, err)
	id, err := repo.Create(ctx, domain.Message{Role: domain.RoleUser, Content: "Can I sublet?"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, domain.Message{Role: domain.RoleAssistant, Content: "Check your lease."})
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Can I sublet?", got.Content)

	msgs, err := repo.List(ctx, domain.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "stale", msgs[0].Content)

	byDay, err := repo.CountByDay(ctx, 30)
	require.NoError(t, err)
	require.Len(t, byDay, 1)
	assert.Equal(t, int64(2), byDay[0].Count)

	n, err := usecase.NewReportService(repo, repo, nil).Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	total, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestStats_Redis(t *testing.T) {
	ctx := context.Background()
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}, "6379")
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.Eventually(t, func() bool { return rdb.Ping(ctx).Err() == nil }, 30*time.Second, time.Second)

	stats := cache.NewRedisStats(rdb, time.Hour)
	stats.RecordMessage(ctx, domain.RoleUser)
	stats.RecordMessage(ctx, domain.RoleAssistant)
	stats.RecordError(ctx, domain.KindTimeout)
	stats.RecordAPIRequest(ctx)

	snap, err := stats.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Total)
	assert.Equal(t, int64(1), snap.Errors[domain.KindTimeout])
	assert.Equal(t, int64(1), snap.APIRequests)
	ttl, err := rdb.TTL(ctx, "total_message_count").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}
