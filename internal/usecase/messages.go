package usecase

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/lawbot/internal/domain"
)

// MessagePatch carries the fields of a partial update; nil leaves a field as is.
type MessagePatch struct {
	Role    *domain.Role
	Content *string
}

// MessageService is the CRUD surface over stored messages.
type MessageService struct {
	Repo domain.MessageRepository
}

// NewMessageService constructs a MessageService with the given repo.
func NewMessageService(r domain.MessageRepository) MessageService { return MessageService{Repo: r} }

// List returns messages oldest first, optionally filtered by role.
func (s MessageService) List(ctx domain.Context, role string) ([]domain.Message, error) {
	f := domain.MessageFilter{}
	if role != "" {
		r := domain.Role(role)
		if !r.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidArgument, role)
		}
		f.Role = r
	}
	return s.Repo.List(ctx, f)
}

// Get returns one message.
func (s MessageService) Get(ctx domain.Context, id int64) (domain.Message, error) {
	return s.Repo.Get(ctx, id)
}

// Create stores a new message and returns it with its id.
func (s MessageService) Create(ctx domain.Context, role domain.Role, content string) (domain.Message, error) {
	m := domain.Message{Role: role, Content: content, CreatedAt: time.Now().UTC()}
	id, err := s.Repo.Create(ctx, m)
	if err != nil {
		return domain.Message{}, err
	}
	return s.Repo.Get(ctx, id)
}

// Replace overwrites role and content of an existing message.
func (s MessageService) Replace(ctx domain.Context, id int64, role domain.Role, content string) (domain.Message, error) {
	return s.Patch(ctx, id, MessagePatch{Role: &role, Content: &content})
}

// Patch applies a partial update.
func (s MessageService) Patch(ctx domain.Context, id int64, p MessagePatch) (domain.Message, error) {
	m, err := s.Repo.Get(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	if p.Role != nil {
		m.Role = *p.Role
	}
	if p.Content != nil {
		m.Content = *p.Content
	}
	if err := s.Repo.Update(ctx, m); err != nil {
		return domain.Message{}, err
	}
	return s.Repo.Get(ctx, id)
}

// Delete removes a message.
func (s MessageService) Delete(ctx domain.Context, id int64) error {
	return s.Repo.Delete(ctx, id)
}
