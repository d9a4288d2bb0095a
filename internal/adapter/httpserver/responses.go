package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fairyhunter13/lawbot/internal/domain"
)

// errorBody is the JSON error shape used by every API endpoint.
type errorBody struct {
	Error     string      `json:"error"`
	ErrorType string      `json:"error_type,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	typ := "server_error"
	msg := "Internal server error"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code, typ, msg = http.StatusBadRequest, "validation_error", "Invalid request data"
	case errors.Is(err, domain.ErrNotFound):
		code, typ, msg = http.StatusNotFound, "not_found", "Not found"
	case errors.Is(err, domain.ErrRateLimited):
		code, typ, msg = http.StatusTooManyRequests, string(domain.KindRateLimit), "Rate limit exceeded. Please try again later."
	default:
		LoggerFrom(r).Error("request failed", slog.Any("error", err))
	}
	writeJSON(w, code, errorBody{Error: msg, ErrorType: typ, Details: details})
}

// statusForKind maps a dispatch failure kind to the HTTP status of /api/chat/.
func statusForKind(k domain.ErrorKind) int {
	switch k {
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindRateLimit:
		return http.StatusServiceUnavailable
	case domain.KindAuth:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// chatResponse is the success body of the chat endpoints.
type chatResponse struct {
	Response  string `json:"response"`
	MessageID int64  `json:"message_id"`
}

func writeOutcome(w http.ResponseWriter, out domain.Outcome, id int64, status func(domain.ErrorKind) int) {
	if out.OK {
		writeJSON(w, http.StatusOK, chatResponse{Response: out.Reply, MessageID: id})
		return
	}
	writeJSON(w, status(out.Kind), errorBody{Error: out.Message, ErrorType: string(out.Kind)})
}
