package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fairyhunter13/lawbot/internal/adapter/observability"
	"github.com/fairyhunter13/lawbot/internal/domain"
)

// Stage is one step of the fallback order.
type Stage interface {
	Name() string
	Attempt(ctx context.Context, history []domain.Turn, cred domain.Credential) domain.Outcome
}

// notifyingStage marks stages whose failures are reported to the ErrorNotifier.
type notifyingStage interface {
	Stage
	notifies() bool
}

// ProviderStage calls one endpoint with one model and classifies the result.
type ProviderStage struct {
	endpoint Endpoint
	model    string
	call     *caller
}

// Name implements Stage.
func (s *ProviderStage) Name() string { return s.endpoint.Name }

func (s *ProviderStage) notifies() bool { return true }

// Attempt implements Stage.
func (s *ProviderStage) Attempt(ctx context.Context, history []domain.Turn, cred domain.Credential) domain.Outcome {
	reply, err := s.call.complete(ctx, s.endpoint, s.model, history, cred)
	if err == nil {
		return domain.Success(reply)
	}
	var ae *attemptError
	if errors.As(err, &ae) {
		return domain.Failure(ae.Kind, ae.message(s.endpoint.Label))
	}
	return domain.Failure(domain.KindAPI, s.endpoint.Label+" API error: "+err.Error())
}

// AlternativeStage walks an ordered model list on a single endpoint and
// returns the first success. Every failure moves on to the next model.
type AlternativeStage struct {
	endpoint Endpoint
	models   []string
	call     *caller
}

// Name implements Stage.
func (s *AlternativeStage) Name() string { return "alternative" }

func (s *AlternativeStage) notifies() bool { return false }

// Attempt implements Stage.
func (s *AlternativeStage) Attempt(ctx context.Context, history []domain.Turn, cred domain.Credential) domain.Outcome {
	lg := observability.LoggerFromContext(ctx)
	for _, model := range s.models {
		reply, err := s.tryModel(ctx, model, history, cred)
		if err == nil {
			return domain.Success(reply)
		}
		lg.Debug("alternative model failed, trying next", slog.String("model", model), slog.Any("error", err))
	}
	return domain.Failure(domain.KindAPI, "All OpenAI models failed")
}

func (s *AlternativeStage) tryModel(ctx context.Context, model string, history []domain.Turn, cred domain.Credential) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("panic during attempt")
		}
	}()
	return s.call.complete(ctx, s.endpoint, model, history, cred)
}
