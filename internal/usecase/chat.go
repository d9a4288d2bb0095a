// Package usecase holds the application services behind the HTTP handlers.
package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/lawbot/internal/adapter/observability"
	"github.com/fairyhunter13/lawbot/internal/domain"
)

// ChatResult is what a single Send produced.
type ChatResult struct {
	Outcome domain.Outcome
	// MessageID is the id of the persisted assistant turn, zero when the
	// assistant turn could not be stored.
	MessageID int64
}

// ChatService records a user turn, asks the dispatcher for a reply and stores
// the assistant turn.
type ChatService struct {
	Messages   domain.MessageRepository
	Dispatcher domain.Dispatcher
	Stats      domain.StatsRecorder
	Credential domain.Credential
	// MaxLen bounds the user text in runes; zero disables the check.
	MaxLen int
}

// NewChatService constructs a ChatService.
func NewChatService(msgs domain.MessageRepository, d domain.Dispatcher, stats domain.StatsRecorder, cred domain.Credential, maxLen int) ChatService {
	return ChatService{Messages: msgs, Dispatcher: d, Stats: stats, Credential: cred, MaxLen: maxLen}
}

// Send runs one conversation step. Provider failures are reported inside the
// result's Outcome; the returned error is reserved for invalid input and
// storage failures that prevent the user turn from being recorded.
func (s ChatService) Send(ctx domain.Context, text string) (ChatResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatResult{}, fmt.Errorf("%w: message is empty", domain.ErrInvalidArgument)
	}
	if s.MaxLen > 0 && len([]rune(text)) > s.MaxLen {
		return ChatResult{}, fmt.Errorf("%w: message exceeds %d characters", domain.ErrInvalidArgument, s.MaxLen)
	}
	lg := observability.LoggerFromContext(ctx)
	lg.Info("conversation started", slog.Int("message_length", len(text)), slog.String("credential", s.Credential.String()))

	if _, err := s.save(ctx, domain.RoleUser, text); err != nil {
		return ChatResult{}, fmt.Errorf("op=chat.Send: %w", err)
	}

	history, err := s.Messages.List(ctx, domain.MessageFilter{})
	if err != nil {
		return ChatResult{}, fmt.Errorf("op=chat.Send: %w", err)
	}

	out := s.Dispatcher.Dispatch(ctx, domain.Turns(history), s.Credential)
	if out.Failed() {
		s.stats().RecordError(ctx, out.Kind)
		lg.Warn("chat reply failed", slog.String("error_type", string(out.Kind)), slog.String("error_message", out.Message))
	}

	id, err := s.save(ctx, domain.RoleAssistant, out.Text())
	if err != nil {
		lg.Error("assistant message not saved", slog.Any("error", err))
		// A reply that cannot be stored is not delivered; failure text still is.
		if out.OK {
			return ChatResult{}, fmt.Errorf("op=chat.Send: %w: %v", domain.ErrInternal, err)
		}
		return ChatResult{Outcome: out}, nil
	}
	return ChatResult{Outcome: out, MessageID: id}, nil
}

func (s ChatService) save(ctx domain.Context, role domain.Role, content string) (int64, error) {
	id, err := s.Messages.Create(ctx, domain.Message{Role: role, Content: content, CreatedAt: time.Now().UTC()})
	if err != nil {
		return 0, err
	}
	s.stats().RecordMessage(ctx, role)
	observability.MessageCreated(string(role))
	return id, nil
}

func (s ChatService) stats() domain.StatsRecorder {
	if s.Stats == nil {
		return noStats{}
	}
	return s.Stats
}

type noStats struct{}

func (noStats) RecordMessage(domain.Context, domain.Role)    {}
func (noStats) RecordError(domain.Context, domain.ErrorKind) {}
func (noStats) RecordAPIRequest(domain.Context)              {}
func (noStats) Snapshot(domain.Context) (domain.StatsSnapshot, error) {
	return domain.StatsSnapshot{}, nil
}
