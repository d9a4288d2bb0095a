package httpserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/lawbot/internal/adapter/httpserver"
	"github.com/fairyhunter13/lawbot/internal/adapter/observability"
	"github.com/fairyhunter13/lawbot/internal/domain"
)

func TestRecoverer(t *testing.T) {
	h := httpserver.Recoverer()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

	rec := do(t, h, http.MethodPost, "/api/chat/", "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"error": "Internal server error", "error_type": "server_error"}, decode(t, rec))

	rec = do(t, h, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal Server Error")
}

func TestRequestID(t *testing.T) {
	var seen string
	h := httpserver.RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = observability.RequestIDFromContext(r.Context())
	}))

	rec := do(t, h, http.MethodGet, "/", "", nil)
	assert.Len(t, seen, 26)
	assert.Equal(t, seen, rec.Header().Get("X-Request-Id"))

	rec = do(t, h, http.MethodGet, "/", "", map[string]string{"X-Request-Id": "abc"})
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-Id"))
}

func TestSecurityHeaders(t *testing.T) {
	h := httpserver.SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := do(t, h, http.MethodGet, "/", "", nil)
	assert.Equal(t, httpserver.ContentSecurityPolicy, rec.Header().Get("Content-Security-Policy"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "cdnjs.cloudflare.com")
	assert.Equal(t, "1; mode=block", rec.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

type apiCounter struct {
	mu sync.Mutex
	n  int
}

func (a *apiCounter) RecordMessage(domain.Context, domain.Role)    {}
func (a *apiCounter) RecordError(domain.Context, domain.ErrorKind) {}
func (a *apiCounter) RecordAPIRequest(domain.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n++
}
func (a *apiCounter) Snapshot(domain.Context) (domain.StatsSnapshot, error) {
	return domain.StatsSnapshot{}, nil
}

func TestAccessLog_TimingAndAPICounter(t *testing.T) {
	stats := &apiCounter{}
	h := httpserver.AccessLog(time.Nanosecond, stats)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := do(t, h, http.MethodGet, "/api/messages/", "", nil)
	assert.Regexp(t, `^\d+\.\d{3}s$`, rec.Header().Get("X-Response-Time"))
	assert.Equal(t, "ok", rec.Body.String())

	_ = do(t, h, http.MethodGet, "/", "", nil)
	assert.Equal(t, 1, stats.n)
}

func TestTraceMiddleware_PassesContext(t *testing.T) {
	var got context.Context
	h := httpserver.TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Context()
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NotNil(t, got)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
