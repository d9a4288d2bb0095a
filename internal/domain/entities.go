package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/lawbot/pkg/textx"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrInternal        = errors.New("internal error")
)

// Role tags the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Turn is one message of a conversation as sent to a provider.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message is a persisted turn of the single global conversation log.
// Invariants: Role valid; Content sanitized, non-empty and within the store limit.
type Message struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn converts the stored message into a provider turn.
func (m Message) Turn() Turn { return Turn{Role: m.Role, Content: m.Content} }

// Turns converts messages to turns preserving order.
func Turns(msgs []Message) []Turn {
	out := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Turn())
	}
	return out
}

// DefaultContentMaxLen is the stored content limit when none is configured.
const DefaultContentMaxLen = 5000

// NormalizeContent sanitizes content before it is stored. Empty content is
// rejected; content over maxLen runes keeps maxLen-3 runes followed by "...".
func NormalizeContent(content string, maxLen int) (string, error) {
	content = textx.SanitizeText(content)
	if content == "" {
		return "", fmt.Errorf("%w: message content cannot be empty", ErrInvalidArgument)
	}
	if maxLen <= 0 {
		maxLen = DefaultContentMaxLen
	}
	return textx.Truncate(content, maxLen, "..."), nil
}

// MessageFilter narrows message listings. The zero value lists everything
// oldest first.
type MessageFilter struct {
	Role  Role
	Desc  bool
	Since time.Time
	Limit int
}

// DayCount is the number of messages created on a calendar day (UTC).
type DayCount struct {
	Day   time.Time `json:"date"`
	Count int64     `json:"count"`
}

// HourCount is the number of messages created in an hour of the day (0-23, UTC).
type HourCount struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

// Credential is the opaque provider API key. The zero value means no
// credential is configured.
type Credential string

// OpenRouterPrefix marks credentials issued by OpenRouter.
const OpenRouterPrefix = "sk-or-"

// Present reports whether a credential is configured.
func (c Credential) Present() bool { return strings.TrimSpace(string(c)) != "" }

// IsOpenRouter reports whether the credential routes to OpenRouter.
func (c Credential) IsOpenRouter() bool { return strings.HasPrefix(string(c), OpenRouterPrefix) }

// String masks the credential so it never ends up in logs verbatim.
func (c Credential) String() string {
	if !c.Present() {
		return "<none>"
	}
	if len(c) <= 8 {
		return "****"
	}
	return string(c[:6]) + "****"
}

// Repositories (ports)

type MessageRepository interface {
	Create(ctx Context, m Message) (int64, error)
	Get(ctx Context, id int64) (Message, error)
	Update(ctx Context, m Message) error
	Delete(ctx Context, id int64) error
	List(ctx Context, f MessageFilter) ([]Message, error)
}

// MessageReporting exposes the aggregate queries used by the admin reports.
type MessageReporting interface {
	Count(ctx Context) (int64, error)
	CountByRole(ctx Context, role Role) (int64, error)
	CountSince(ctx Context, since time.Time) (int64, error)
	AvgLength(ctx Context) (float64, error)
	CountByDay(ctx Context, days int) ([]DayCount, error)
	CountByHour(ctx Context, since time.Time) ([]HourCount, error)
	DeleteOlderThan(ctx Context, cutoff time.Time) (int64, error)
}

// Dispatcher (port) produces exactly one Outcome per call.
type Dispatcher interface {
	Dispatch(ctx Context, history []Turn, cred Credential) Outcome
}

// ErrorNotifier (port) receives classified failures. Implementations must not
// block the caller.
type ErrorNotifier interface {
	Notify(ctx Context, kind ErrorKind, message string)
}

// StatsSnapshot mirrors the running counters kept by a StatsRecorder.
type StatsSnapshot struct {
	Messages    map[Role]int64      `json:"messages"`
	Total       int64               `json:"total"`
	Errors      map[ErrorKind]int64 `json:"errors"`
	APIRequests int64               `json:"api_requests"`
}

// StatsRecorder keeps short-lived running counters (messages, errors, API hits).
type StatsRecorder interface {
	RecordMessage(ctx Context, role Role)
	RecordError(ctx Context, kind ErrorKind)
	RecordAPIRequest(ctx Context)
	Snapshot(ctx Context) (StatsSnapshot, error)
}

// Context is an alias to allow decoupling from std context in domain.
type Context = context.Context
