// Package dispatch sends a conversation to the configured chat providers in
// a fixed fallback order and always yields exactly one domain.Outcome.
//
// Order for a credential without the OpenRouter prefix: primary, then the
// alternative models on the primary endpoint. For an OpenRouter credential:
// openrouter, then the alternative models on the OpenRouter endpoint (or the
// primary endpoint in legacy mode). A call is never repeated; falling back
// only ever moves to the next stage or model.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/lawbot/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/lawbot/internal/adapter/observability"
	"github.com/fairyhunter13/lawbot/internal/config"
	"github.com/fairyhunter13/lawbot/internal/domain"
)

// Dispatcher implements domain.Dispatcher. It holds no per-call state and is
// safe for concurrent use.
type Dispatcher struct {
	primary       *ProviderStage
	openRouter    *ProviderStage
	altPrimary    *AlternativeStage
	altOpenRouter *AlternativeStage
	legacyAlt     bool
	notifier      domain.ErrorNotifier
}

var _ domain.Dispatcher = (*Dispatcher)(nil)

type options struct {
	hc       *http.Client
	notifier domain.ErrorNotifier
	counter  *tokencount.Counter
}

// Option customizes a Dispatcher.
type Option func(*options)

// WithHTTPClient overrides the HTTP client used for provider calls.
func WithHTTPClient(hc *http.Client) Option { return func(o *options) { o.hc = hc } }

// WithNotifier registers the observer for classified failures.
func WithNotifier(n domain.ErrorNotifier) Option { return func(o *options) { o.notifier = n } }

// WithTokenCounter overrides the prompt token counter.
func WithTokenCounter(c *tokencount.Counter) Option { return func(o *options) { o.counter = c } }

// New builds a Dispatcher from provider configuration.
func New(cfg config.Config, opts ...Option) *Dispatcher {
	o := options{counter: tokencount.Default}
	for _, opt := range opts {
		opt(&o)
	}
	if o.hc == nil {
		o.hc = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return fmt.Sprintf("Chat %s %s", r.Method, r.URL.Host)
				}),
			),
		}
	}

	params := Params{
		SystemPrompt: cfg.EffectiveSystemPrompt(),
		MaxTokens:    cfg.ChatMaxTokens,
		Temperature:  cfg.ChatTemperature,
		Timeout:      cfg.ProviderTimeout,
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = 500
	}
	if params.Timeout <= 0 {
		params.Timeout = 30 * time.Second
	}
	call := &caller{hc: o.hc, params: params, counter: o.counter}

	primary := Endpoint{Name: "primary", Label: "OpenAI", BaseURL: cfg.OpenAIBaseURL}
	openRouter := Endpoint{
		Name:    "openrouter",
		Label:   "OpenRouter",
		BaseURL: cfg.OpenRouterBaseURL,
		Headers: map[string]string{
			"HTTP-Referer": cfg.OpenRouterReferer,
			"X-Title":      cfg.OpenRouterTitle,
		},
	}
	models := append([]string(nil), cfg.AlternativeModels...)
	orModels := append([]string(nil), cfg.OpenRouterAlternativeModels...)
	if len(orModels) == 0 {
		orModels = models
	}

	return &Dispatcher{
		primary:       &ProviderStage{endpoint: primary, model: cfg.PrimaryModel, call: call},
		openRouter:    &ProviderStage{endpoint: openRouter, model: cfg.OpenRouterModel, call: call},
		altPrimary:    &AlternativeStage{endpoint: primary, models: models, call: call},
		altOpenRouter: &AlternativeStage{endpoint: openRouter, models: orModels, call: call},
		legacyAlt:     cfg.LegacyAltForOpenRouter,
		notifier:      o.notifier,
	}
}

// Plan returns the stages attempted for cred, in order. It is empty when no
// credential is configured.
func (d *Dispatcher) Plan(cred domain.Credential) []Stage {
	switch {
	case !cred.Present():
		return nil
	case cred.IsOpenRouter() && d.legacyAlt:
		return []Stage{d.openRouter, d.altPrimary}
	case cred.IsOpenRouter():
		return []Stage{d.openRouter, d.altOpenRouter}
	default:
		return []Stage{d.primary, d.altPrimary}
	}
}

// Dispatch implements domain.Dispatcher. history must already contain the
// newest user turn, oldest first.
func (d *Dispatcher) Dispatch(ctx context.Context, history []domain.Turn, cred domain.Credential) domain.Outcome {
	lg := observability.LoggerFromContext(ctx)
	if !cred.Present() {
		observability.ObserveDispatch(string(domain.KindConfiguration))
		lg.Error("chat provider credential missing")
		return domain.Failure(domain.KindConfiguration, domain.MsgConfiguration)
	}

	for _, s := range d.Plan(cred) {
		out := attempt(ctx, s, history, cred)
		if out.OK {
			observability.ObserveDispatch("success")
			lg.Info("dispatch succeeded", slog.String("stage", s.Name()), slog.String("credential", cred.String()))
			return out
		}
		if ns, ok := s.(notifyingStage); ok && ns.notifies() {
			d.notify(ctx, out)
		}
	}

	final := domain.Failure(domain.KindAllAPIsFailed, domain.MsgAllAPIsFailed)
	observability.ObserveDispatch(string(final.Kind))
	lg.Error("all chat providers failed", slog.String("credential", cred.String()))
	d.notify(ctx, final)
	return final
}

// attempt runs one stage and turns a panic into an api_error outcome.
func attempt(ctx context.Context, s Stage, history []domain.Turn, cred domain.Credential) (out domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			observability.LoggerFromContext(ctx).Error("stage panicked", slog.String("stage", s.Name()), slog.Any("panic", r))
			out = domain.Failure(domain.KindAPI, fmt.Sprintf("%s API error: %v", s.Name(), r))
		}
	}()
	return s.Attempt(ctx, history, cred)
}

func (d *Dispatcher) notify(ctx context.Context, out domain.Outcome) {
	if d.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			observability.LoggerFromContext(ctx).Warn("error notifier panicked", slog.Any("panic", r))
		}
	}()
	d.notifier.Notify(ctx, out.Kind, out.Message)
}
