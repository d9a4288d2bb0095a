package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/lawbot/internal/adapter/httpserver"
	"github.com/fairyhunter13/lawbot/internal/adapter/observability"
	"github.com/fairyhunter13/lawbot/internal/config"
	"github.com/fairyhunter13/lawbot/internal/domain"
	"github.com/fairyhunter13/lawbot/internal/service/ratelimiter"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// RouterDeps are the collaborators BuildRouter needs beyond the server.
type RouterDeps struct {
	// Limiter shares the per-IP budget through Redis; nil falls back to an
	// in-memory limiter.
	Limiter ratelimiter.Limiter
	Stats   domain.StatsRecorder
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server, deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog(cfg.SlowRequestThreshold, deps.Stats))
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(middleware.StripSlashes)

	r.Get("/", srv.ChatPage())
	r.Post("/", srv.ChatSubmit())

	r.Route("/api", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id", "X-Response-Time"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		api.Use(httpserver.RateLimitByIP(deps.Limiter, cfg.RateLimitPerHour))

		api.Get("/docs", srv.DocsPage())
		api.Post("/chat", srv.ChatAPI())
		api.Route("/messages", func(mr chi.Router) {
			mr.Get("/", srv.ListMessages())
			mr.Post("/", srv.CreateMessage())
			mr.Get("/{id}", srv.GetMessage())
			mr.Put("/{id}", srv.UpdateMessage())
			mr.Patch("/{id}", srv.PatchMessage())
			mr.Delete("/{id}", srv.DeleteMessage())
		})
	})

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if cfg.AdminEnabled() {
		httpserver.NewAdminServer(cfg, srv).MountRoutes(r)
	}

	return httpserver.SecurityHeaders(r)
}

// NewHTTPServer wraps the handler with the configured timeouts.
func NewHTTPServer(addr string, h http.Handler, cfg config.Config) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}
}
