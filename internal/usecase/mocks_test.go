package usecase

import (
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/lawbot/internal/domain"
)

type mockMessages struct{ mock.Mock }

func (m *mockMessages) Create(ctx domain.Context, msg domain.Message) (int64, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMessages) Get(ctx domain.Context, id int64) (domain.Message, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Message), args.Error(1)
}

func (m *mockMessages) Update(ctx domain.Context, msg domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockMessages) Delete(ctx domain.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockMessages) List(ctx domain.Context, f domain.MessageFilter) ([]domain.Message, error) {
	args := m.Called(ctx, f)
	msgs, _ := args.Get(0).([]domain.Message)
	return msgs, args.Error(1)
}

type mockReporting struct{ mock.Mock }

func (m *mockReporting) Count(ctx domain.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockReporting) CountByRole(ctx domain.Context, role domain.Role) (int64, error) {
	args := m.Called(ctx, role)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockReporting) CountSince(ctx domain.Context, since time.Time) (int64, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockReporting) AvgLength(ctx domain.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockReporting) CountByDay(ctx domain.Context, days int) ([]domain.DayCount, error) {
	args := m.Called(ctx, days)
	out, _ := args.Get(0).([]domain.DayCount)
	return out, args.Error(1)
}

func (m *mockReporting) CountByHour(ctx domain.Context, since time.Time) ([]domain.HourCount, error) {
	args := m.Called(ctx, since)
	out, _ := args.Get(0).([]domain.HourCount)
	return out, args.Error(1)
}

func (m *mockReporting) DeleteOlderThan(ctx domain.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type fakeDispatcher struct {
	out     domain.Outcome
	history []domain.Turn
	cred    domain.Credential
	calls   int
}

func (f *fakeDispatcher) Dispatch(_ domain.Context, history []domain.Turn, cred domain.Credential) domain.Outcome {
	f.calls++
	f.history = history
	f.cred = cred
	return f.out
}

type countingStats struct {
	mu       sync.Mutex
	messages map[domain.Role]int
	errors   map[domain.ErrorKind]int
	snap     domain.StatsSnapshot
	snapErr  error
}

func newCountingStats() *countingStats {
	return &countingStats{messages: map[domain.Role]int{}, errors: map[domain.ErrorKind]int{}}
}

func (c *countingStats) RecordMessage(_ domain.Context, r domain.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[r]++
}

func (c *countingStats) RecordError(_ domain.Context, k domain.ErrorKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[k]++
}

func (c *countingStats) RecordAPIRequest(domain.Context) {}

func (c *countingStats) Snapshot(domain.Context) (domain.StatsSnapshot, error) {
	return c.snap, c.snapErr
}
