// Package tokencount estimates token usage of chat completions.
//
// Encodings come from tiktoken-go with the offline BPE loader so counting
// never needs network access.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/fairyhunter13/lawbot/internal/domain"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Usage is the token accounting of one completion.
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
	Provider         string `json:"provider"`
}

// Counter caches encodings per model family and is safe for concurrent use.
type Counter struct {
	mu   sync.RWMutex
	encs map[string]*tiktoken.Tiktoken
}

// NewCounter creates an empty counter.
func NewCounter() *Counter {
	return &Counter{encs: make(map[string]*tiktoken.Tiktoken)}
}

// Default is the shared process-wide counter.
var Default = NewCounter()

func (c *Counter) encoding(model string) (*tiktoken.Tiktoken, error) {
	family := modelFamily(model)

	c.mu.RLock()
	enc, ok := c.encs[family]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encs[family]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(family)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding", slog.String("model", model), slog.Any("error", err))
		if enc, err = tiktoken.GetEncoding("cl100k_base"); err != nil {
			return nil, err
		}
	}
	c.encs[family] = enc
	return enc, nil
}

// modelFamily maps provider model ids onto names tiktoken knows.
// "openai/gpt-4o-mini" -> "gpt-4o", "gpt-3.5-turbo-0125" -> "gpt-3.5-turbo".
func modelFamily(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	m = strings.TrimSuffix(m, ":free")
	switch {
	case strings.HasPrefix(m, "gpt-4o"):
		return "gpt-4o"
	case strings.HasPrefix(m, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		return "gpt-4"
	}
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text, model string) (int, error) {
	enc, err := c.encoding(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountTurns counts the prompt tokens of a conversation, including the
// per-message framing used by chat completion endpoints.
func (c *Counter) CountTurns(turns []domain.Turn, model string) (int, error) {
	enc, err := c.encoding(model)
	if err != nil {
		return 0, err
	}
	const perMessage = 3
	n := 0
	for _, t := range turns {
		n += perMessage
		n += len(enc.Encode(string(t.Role), nil, nil))
		n += len(enc.Encode(t.Content, nil, nil))
	}
	// every reply is primed with the assistant header
	return n + 3, nil
}

// Usage computes prompt and completion tokens. Counting errors degrade to a
// four-characters-per-token estimate.
func (c *Counter) Usage(prompt []domain.Turn, completion, model, provider string) Usage {
	promptTokens, err := c.CountTurns(prompt, model)
	if err != nil {
		chars := 0
		for _, t := range prompt {
			chars += len(t.Content)
		}
		promptTokens = chars / 4
		slog.Warn("token count estimate used for prompt", slog.String("model", model), slog.Any("error", err))
	}
	completionTokens, err := c.Count(completion, model)
	if err != nil {
		completionTokens = len(completion) / 4
		slog.Warn("token count estimate used for completion", slog.String("model", model), slog.Any("error", err))
	}
	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Model:            model,
		Provider:         provider,
	}
}
