package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/lawbot/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/lawbot/internal/adapter/observability"
	"github.com/fairyhunter13/lawbot/internal/domain"
)

// maxErrorBody caps how much of a failed response body ends up in messages.
const maxErrorBody = 4 << 10

// Endpoint is an OpenAI-compatible chat completions API.
type Endpoint struct {
	// Name labels metrics and logs ("primary", "openrouter").
	Name string
	// Label is the provider name used in user-facing failure messages.
	Label   string
	BaseURL string
	// Headers are added to every request (OpenRouter attribution).
	Headers map[string]string
}

// URL returns the chat completions URL of the endpoint.
func (e Endpoint) URL() string {
	return strings.TrimRight(e.BaseURL, "/") + "/chat/completions"
}

// Params are the request parameters shared by all attempts.
type Params struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []domain.Turn `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// attemptError is the classified result of a failed completion call.
type attemptError struct {
	Kind   domain.ErrorKind
	Status int
	Body   string
	Err    error
}

func (e *attemptError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d", e.Kind, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *attemptError) Unwrap() error { return e.Err }

// message renders the user-facing failure text for the given provider label.
func (e *attemptError) message(label string) string {
	switch e.Kind {
	case domain.KindAuth:
		return fmt.Sprintf("Invalid %s API key. Please check your API key configuration.", label)
	case domain.KindRateLimit:
		if label == "OpenAI" {
			return "Rate limit exceeded. Please try again later."
		}
		return fmt.Sprintf("%s rate limit exceeded. Please try again later.", label)
	case domain.KindTimeout:
		return fmt.Sprintf("%s API request timed out. Please try again.", label)
	case domain.KindNetwork:
		return fmt.Sprintf("%s API network error: %v", label, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s API Error (Status %d): %s", label, e.Status, e.Body)
	}
	return fmt.Sprintf("%s API error: %v", label, e.Err)
}

// caller performs single completion requests. It never retries.
type caller struct {
	hc      *http.Client
	params  Params
	counter *tokencount.Counter
}

// complete sends one request and returns the first choice content or an
// *attemptError. The parent context's cancellation is ignored so that every
// attempt runs to completion or to its own timeout.
func (c *caller) complete(ctx context.Context, ep Endpoint, model string, history []domain.Turn, cred domain.Credential) (string, error) {
	messages := make([]domain.Turn, 0, len(history)+1)
	messages = append(messages, domain.Turn{Role: domain.RoleSystem, Content: c.params.SystemPrompt})
	messages = append(messages, history...)

	lg := observability.LoggerFromContext(ctx).With(slog.String("provider", ep.Name), slog.String("model", model))
	if n, err := c.counter.CountTurns(messages, model); err == nil {
		observability.ObservePromptTokens(ep.Name, n)
		lg = lg.With(slog.Int("prompt_tokens", n))
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   c.params.MaxTokens,
		Temperature: c.params.Temperature,
	})
	if err != nil {
		return "", &attemptError{Kind: domain.KindAPI, Err: err}
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.params.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(actx, http.MethodPost, ep.URL(), bytes.NewReader(body))
	if err != nil {
		return "", &attemptError{Kind: domain.KindAPI, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+string(cred))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ep.Headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	reply, aerr := c.do(req)
	result := "success"
	if aerr != nil {
		result = string(aerr.Kind)
		lg.Warn("provider attempt failed",
			slog.String("kind", string(aerr.Kind)),
			slog.Int("status", aerr.Status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	} else {
		lg.Info("provider attempt succeeded", slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	}
	observability.ObserveAIRequest(ep.Name, model, result, time.Since(start))
	if aerr != nil {
		return "", aerr
	}
	return reply, nil
}

func (c *caller) do(req *http.Request) (string, *attemptError) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return "", &attemptError{Kind: domain.KindAuth, Status: resp.StatusCode}
	case http.StatusTooManyRequests:
		return "", &attemptError{Kind: domain.KindRateLimit, Status: resp.StatusCode}
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &attemptError{Kind: domain.KindAPI, Status: resp.StatusCode, Body: string(b)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport(err)
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &attemptError{Kind: domain.KindAPI, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return "", &attemptError{Kind: domain.KindAPI, Err: errors.New("response has no choices")}
	}
	content := out.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &attemptError{Kind: domain.KindAPI, Err: errors.New("response content is empty")}
	}
	return content, nil
}

// classifyTransport maps a transport error to timeout or network_error.
func classifyTransport(err error) *attemptError {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &attemptError{Kind: domain.KindTimeout, Err: err}
	}
	return &attemptError{Kind: domain.KindNetwork, Err: err}
}
