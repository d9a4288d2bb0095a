package postgres

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	calls  atomic.Int32
	cutoff atomic.Value
	err    error
}

func (f *fakePurger) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls.Add(1)
	f.cutoff.Store(cutoff)
	if f.err != nil {
		return 0, f.err
	}
	return 4, nil
}

func TestCleanupService_CleanupOldData(t *testing.T) {
	p := &fakePurger{}
	svc := NewCleanupService(p, 30)
	svc.now = func() time.Time { return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC) }

	n, err := svc.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.Equal(t, time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC), p.cutoff.Load())
}

func TestCleanupService_Error(t *testing.T) {
	svc := NewCleanupService(&fakePurger{err: errors.New("db down")}, 0)
	assert.Equal(t, 30, svc.RetentionDays)
	_, err := svc.CleanupOldData(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=postgres.CleanupOldData")
}

func TestCleanupService_RunPeriodic(t *testing.T) {
	p := &fakePurger{}
	svc := NewCleanupService(p, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunPeriodic(ctx, 10*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not stop after cancel")
	}
}

type flakyPinger struct{ failures atomic.Int32 }

func (f *flakyPinger) Ping(context.Context) error {
	if f.failures.Add(-1) >= 0 {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitReady(t *testing.T) {
	p := &flakyPinger{}
	p.failures.Store(2)
	require.NoError(t, WaitReady(context.Background(), p, 5*time.Second))

	down := &flakyPinger{}
	down.failures.Store(1 << 20)
	err := WaitReady(context.Background(), down, 300*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=postgres.WaitReady")
}

func TestNewPool_InvalidDSN(t *testing.T) {
	_, err := NewPool(context.Background(), "://bad")
	require.Error(t, err)
}
