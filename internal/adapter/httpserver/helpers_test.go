package httpserver_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/lawbot/internal/adapter/httpserver"
	"github.com/fairyhunter13/lawbot/internal/config"
	"github.com/fairyhunter13/lawbot/internal/domain"
	"github.com/fairyhunter13/lawbot/internal/usecase"
)

// memRepo is an in-memory message store for handler tests.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	msgs   map[int64]domain.Message
}

func newMemRepo() *memRepo { return &memRepo{msgs: map[int64]domain.Message{}} }

func (m *memRepo) Create(_ domain.Context, msg domain.Message) (int64, error) {
	content, err := domain.NormalizeContent(msg.Content, domain.DefaultContentMaxLen)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = m.nextID
	msg.Content = content
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	m.msgs[msg.ID] = msg
	return msg.ID, nil
}

func (m *memRepo) Get(_ domain.Context, id int64) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[id]
	if !ok {
		return domain.Message{}, domain.ErrNotFound
	}
	return msg, nil
}

func (m *memRepo) Update(_ domain.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.msgs[msg.ID]; !ok {
		return domain.ErrNotFound
	}
	m.msgs[msg.ID] = msg
	return nil
}

func (m *memRepo) Delete(_ domain.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.msgs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.msgs, id)
	return nil
}

func (m *memRepo) List(_ domain.Context, f domain.MessageFilter) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Message{}
	for _, msg := range m.msgs {
		if f.Role != "" && msg.Role != f.Role {
			continue
		}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) Count(domain.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.msgs)), nil
}

func (m *memRepo) CountByRole(_ domain.Context, role domain.Role) (int64, error) {
	msgs, _ := m.List(context.Background(), domain.MessageFilter{Role: role})
	return int64(len(msgs)), nil
}

func (m *memRepo) CountSince(_ domain.Context, since time.Time) (int64, error) {
	msgs, _ := m.List(context.Background(), domain.MessageFilter{})
	var n int64
	for _, msg := range msgs {
		if !msg.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) AvgLength(domain.Context) (float64, error) {
	msgs, _ := m.List(context.Background(), domain.MessageFilter{})
	if len(msgs) == 0 {
		return 0, nil
	}
	total := 0
	for _, msg := range msgs {
		total += len([]rune(msg.Content))
	}
	return float64(total) / float64(len(msgs)), nil
}

func (m *memRepo) CountByDay(domain.Context, int) ([]domain.DayCount, error) {
	return []domain.DayCount{{Day: time.Now().UTC().Truncate(24 * time.Hour), Count: 2}}, nil
}

func (m *memRepo) CountByHour(domain.Context, time.Time) ([]domain.HourCount, error) {
	return []domain.HourCount{{Hour: 9, Count: 2}}, nil
}

func (m *memRepo) DeleteOlderThan(_ domain.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, msg := range m.msgs {
		if msg.CreatedAt.Before(cutoff) {
			delete(m.msgs, id)
			n++
		}
	}
	return n, nil
}

type fixedDispatcher struct{ out domain.Outcome }

func (f fixedDispatcher) Dispatch(domain.Context, []domain.Turn, domain.Credential) domain.Outcome {
	return f.out
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:             "test",
		MessageMaxLen:      1000,
		AdminUsername:      "admin",
		AdminPassword:      "s3cret",
		AdminSessionSecret: "test-session-secret",
	}
}

func newTestServer(t *testing.T, repo *memRepo, out domain.Outcome) *httpserver.Server {
	t.Helper()
	cfg := testConfig()
	chat := usecase.NewChatService(repo, fixedDispatcher{out: out}, nil, "sk-test-0123456789", cfg.MessageMaxLen)
	srv, err := httpserver.NewServer(cfg, chat, usecase.NewMessageService(repo), usecase.NewReportService(repo, repo, nil), nil, nil)
	require.NoError(t, err)
	return srv
}

// routes mounts the handlers the way the application router does.
func routes(srv *httpserver.Server) chi.Router {
	r := chi.NewRouter()
	r.Get("/", srv.ChatPage())
	r.Post("/", srv.ChatSubmit())
	r.Get("/api/docs/", srv.DocsPage())
	r.Post("/api/chat/", srv.ChatAPI())
	r.Get("/api/messages/", srv.ListMessages())
	r.Post("/api/messages/", srv.CreateMessage())
	r.Get("/api/messages/{id}/", srv.GetMessage())
	r.Put("/api/messages/{id}/", srv.UpdateMessage())
	r.Patch("/api/messages/{id}/", srv.PatchMessage())
	r.Delete("/api/messages/{id}/", srv.DeleteMessage())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/healthz", srv.HealthzHandler())
	return r
}
