package httpserver

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/lawbot/internal/config"
	"github.com/fairyhunter13/lawbot/internal/usecase"
)

// AdminServer serves the session-protected admin pages and actions.
type AdminServer struct {
	cfg            config.Config
	sessionManager *SessionManager
	server         *Server
}

// NewAdminServer creates the admin server on top of the main server.
func NewAdminServer(cfg config.Config, server *Server) *AdminServer {
	return &AdminServer{cfg: cfg, sessionManager: NewSessionManager(cfg), server: server}
}

// MountRoutes mounts the admin routes on r.
func (a *AdminServer) MountRoutes(r chi.Router) {
	r.Route("/admin", func(ar chi.Router) {
		ar.Get("/login", a.LoginPage)
		ar.Post("/login", a.LoginHandler)
		ar.Post("/logout", a.LogoutHandler)

		ar.Group(func(protected chi.Router) {
			protected.Use(a.sessionManager.AuthRequired)
			protected.Get("/", a.DashboardPage)
			protected.Get("/analytics", a.AnalyticsPage)
			protected.Get("/messages/export", a.ExportCSV)
			protected.Post("/messages/purge", a.Purge)
		})
	})
}

// LoginPage renders the login form.
func (a *AdminServer) LoginPage(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		if _, err := a.sessionManager.ValidateSession(c.Value); err == nil {
			http.Redirect(w, r, "/admin/", http.StatusSeeOther)
			return
		}
	}
	a.server.render(w, r, "admin_login.html", struct{ Error string }{Error: r.URL.Query().Get("error")})
}

// LoginHandler processes the login form.
func (a *AdminServer) LoginHandler(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	if !checkCredentials(a.cfg, username, r.FormValue("password")) {
		LoggerFrom(r).Warn("admin login failed", slog.String("username", username))
		http.Redirect(w, r, "/admin/login?error=invalid_credentials", http.StatusSeeOther)
		return
	}
	a.sessionManager.SetSessionCookie(w, a.sessionManager.CreateSession(username))
	http.Redirect(w, r, "/admin/", http.StatusSeeOther)
}

// LogoutHandler clears the session.
func (a *AdminServer) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	a.sessionManager.ClearSessionCookie(w)
	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}

// DashboardPage renders the message statistics.
func (a *AdminServer) DashboardPage(w http.ResponseWriter, r *http.Request) {
	st, err := a.server.Reports.Statistics(r.Context())
	if err != nil {
		LoggerFrom(r).Error("statistics failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	username := ""
	if sess, ok := SessionFrom(r.Context()); ok {
		username = sess.Username
	}
	a.server.render(w, r, "admin_dashboard.html", struct {
		Username string
		Stats    usecase.Statistics
		Purged   string
	}{Username: username, Stats: st, Purged: r.URL.Query().Get("purged")})
}

// AnalyticsPage renders the message analytics, or returns them as JSON when
// the client asks for it.
func (a *AdminServer) AnalyticsPage(w http.ResponseWriter, r *http.Request) {
	an, err := a.server.Reports.Analytics(r.Context())
	if err != nil {
		if wantsJSON(r) {
			writeError(w, r, err, nil)
			return
		}
		LoggerFrom(r).Error("analytics failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, an)
		return
	}
	a.server.render(w, r, "admin_analytics.html", an)
}

func wantsJSON(r *http.Request) bool {
	return r.URL.Query().Get("format") == "json" || r.Header.Get("Accept") == "application/json"
}

// ExportCSV streams every message as a CSV download.
func (a *AdminServer) ExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := a.server.Reports.ExportCSV(r.Context(), &buf)
	if err != nil {
		LoggerFrom(r).Error("csv export failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	name := fmt.Sprintf("messages_%s.csv", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	LoggerFrom(r).Info("messages exported", slog.Int("rows", n))
	_, _ = w.Write(buf.Bytes())
}

// Purge deletes old messages and returns to the dashboard.
func (a *AdminServer) Purge(w http.ResponseWriter, r *http.Request) {
	n, err := a.server.Reports.Purge(r.Context())
	if err != nil {
		LoggerFrom(r).Error("purge failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/admin/?purged=%d", n), http.StatusSeeOther)
}
