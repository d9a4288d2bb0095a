package httpserver

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/lawbot/internal/config"
	"github.com/fairyhunter13/lawbot/internal/domain"
	"github.com/fairyhunter13/lawbot/internal/usecase"
)

//go:embed templates/*.html
var templateFiles embed.FS

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Chat       usecase.ChatService
	Messages   usecase.MessageService
	Reports    usecase.ReportService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	pages      *template.Template
}

func parseTemplates() (*template.Template, error) {
	t, err := template.New("pages").Funcs(template.FuncMap{
		"fmtTime": func(t time.Time) string { return t.UTC().Format("Jan 2, 15:04") },
	}).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("op=httpserver.parseTemplates: %w", err)
	}
	return t, nil
}

// NewServer constructs the HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, chat usecase.ChatService, msgs usecase.MessageService, reports usecase.ReportService, dbCheck, redisCheck func(context.Context) error) (*Server, error) {
	pages, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Server{Cfg: cfg, Chat: chat, Messages: msgs, Reports: reports, DBCheck: dbCheck, RedisCheck: redisCheck, pages: pages}, nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		LoggerFrom(r).Error("template render failed", slog.String("template", name), slog.Any("error", err))
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

func isAJAX(r *http.Request) bool { return r.Header.Get("X-Requested-With") == "XMLHttpRequest" }

// okStatus keeps AJAX replies at 200 so the page script can read error bodies.
func okStatus(domain.ErrorKind) int { return http.StatusOK }

// ChatPage renders the conversation.
func (s *Server) ChatPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := s.Messages.List(r.Context(), "")
		if err != nil {
			LoggerFrom(r).Error("history load failed", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		s.render(w, r, "chat.html", struct {
			Messages  []domain.Message
			MaxLength int
		}{Messages: msgs, MaxLength: s.Cfg.MessageMaxLen})
	}
}

// ChatSubmit handles the chat form. Plain posts redirect back to the page;
// AJAX posts get the reply as JSON.
func (s *Server) ChatSubmit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		text := ""
		if err := r.ParseForm(); err == nil {
			text = strings.TrimSpace(r.PostFormValue("message"))
		}
		if text == "" {
			if isAJAX(r) {
				writeJSON(w, http.StatusOK, errorBody{Error: "No message provided"})
				return
			}
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		res, err := s.Chat.Send(r.Context(), text)
		if err != nil {
			if isAJAX(r) {
				writeError(w, r, err, nil)
				return
			}
			LoggerFrom(r).Warn("chat submit failed", slog.Any("error", err))
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		if isAJAX(r) {
			writeOutcome(w, res.Outcome, res.MessageID, okStatus)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

// ChatAPI handles POST /api/chat/.
func (s *Server) ChatAPI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := validateChat(req, s.Cfg.MessageMaxLen); err != nil {
			writeError(w, r, err, nil)
			return
		}
		res, err := s.Chat.Send(r.Context(), req.Message)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeOutcome(w, res.Outcome, res.MessageID, statusForKind)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", domain.ErrInvalidArgument)
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

func messageID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: not found", domain.ErrNotFound)
	}
	return id, nil
}

// ListMessages handles GET /api/messages/.
func (s *Server) ListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := s.Messages.List(r.Context(), r.URL.Query().Get("role"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

// CreateMessage handles POST /api/messages/.
func (s *Server) CreateMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MessageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := validateStruct(req); err != nil {
			writeError(w, r, err, fieldErrors(err))
			return
		}
		m, err := s.Messages.Create(r.Context(), domain.Role(req.Role), req.Content)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

// GetMessage handles GET /api/messages/{id}/.
func (s *Server) GetMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := messageID(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		m, err := s.Messages.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

// UpdateMessage handles PUT /api/messages/{id}/.
func (s *Server) UpdateMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := messageID(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		var req MessageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := validateStruct(req); err != nil {
			writeError(w, r, err, fieldErrors(err))
			return
		}
		m, err := s.Messages.Replace(r.Context(), id, domain.Role(req.Role), req.Content)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

// PatchMessage handles PATCH /api/messages/{id}/.
func (s *Server) PatchMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := messageID(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		var req MessagePatchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := validateStruct(req); err != nil {
			writeError(w, r, err, fieldErrors(err))
			return
		}
		var p usecase.MessagePatch
		if req.Role != nil {
			role := domain.Role(*req.Role)
			p.Role = &role
		}
		p.Content = req.Content
		m, err := s.Messages.Patch(r.Context(), id, p)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

// DeleteMessage handles DELETE /api/messages/{id}/.
func (s *Server) DeleteMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := messageID(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := s.Messages.Delete(r.Context(), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DocsPage renders the API documentation.
func (s *Server) DocsPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, "docs.html", struct{ MaxLength int }{MaxLength: s.Cfg.MessageMaxLen})
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the database and, when configured, Redis.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name string
			fn   func(context.Context) error
		}{{"db", s.DBCheck}, {"redis", s.RedisCheck}}
		checks := make([]check, 0, len(probes))
		ok := true
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			if err := p.fn(ctx); err != nil {
				ok = false
				checks = append(checks, check{Name: p.name, OK: false, Details: err.Error()})
				continue
			}
			checks = append(checks, check{Name: p.name, OK: true})
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
