package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := load(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAIBaseURL)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.OpenRouterBaseURL)
	assert.Equal(t, "http://localhost:9000", cfg.OpenRouterReferer)
	assert.Equal(t, "LawBot", cfg.OpenRouterTitle)
	assert.Equal(t, "gpt-3.5-turbo", cfg.PrimaryModel)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenRouterModel)
	assert.Equal(t, []string{"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo-preview"}, cfg.AlternativeModels)
	assert.Equal(t, []string{"openai/gpt-3.5-turbo", "openai/gpt-4", "openai/gpt-4-turbo-preview"}, cfg.OpenRouterAlternativeModels)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 500, cfg.ChatMaxTokens)
	assert.InDelta(t, 0.2, cfg.ChatTemperature, 1e-9)
	assert.Equal(t, 100, cfg.RateLimitPerHour)
	assert.Equal(t, 1000, cfg.MessageMaxLen)
	assert.Equal(t, 5000, cfg.ContentMaxLen)
	assert.Empty(t, cfg.OpenAIAPIKey)
	assert.False(t, cfg.LegacyAltForOpenRouter)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, DefaultSystemPrompt, cfg.EffectiveSystemPrompt())
	assert.True(t, cfg.IsDev())
	assert.False(t, cfg.IsProd())
}

func TestLoad_CustomValues(t *testing.T) {
	t.Parallel()
	cfg, err := load(map[string]string{
		"APP_ENV":                            "prod",
		"OPENAI_API_KEY":                     "sk-or-abc",
		"ALTERNATIVE_MODELS":                 "m1,m2",
		"PROVIDER_TIMEOUT":                   "5s",
		"KAFKA_BROKERS":                      "k1:9092,k2:9092",
		"REDIS_URL":                          "redis://localhost:6379/0",
		"SYSTEM_PROMPT":                      "be brief",
		"DISPATCH_LEGACY_ALT_FOR_OPENROUTER": "true",
	})
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, "sk-or-abc", cfg.OpenAIAPIKey)
	assert.Equal(t, []string{"m1", "m2"}, cfg.AlternativeModels)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	assert.True(t, cfg.KafkaEnabled())
	assert.True(t, cfg.RedisEnabled())
	assert.True(t, cfg.LegacyAltForOpenRouter)
	assert.Equal(t, "be brief", cfg.EffectiveSystemPrompt())
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Parallel()
	_, err := load(map[string]string{"PROVIDER_TIMEOUT": "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=config.Load")
}

func Test_AdminEnabled(t *testing.T) {
	t.Parallel()
	assert.False(t, Config{}.AdminEnabled())
	assert.True(t, Config{AdminUsername: "admin", AdminPassword: "secret", AdminSessionSecret: "abcd"}.AdminEnabled())
	assert.True(t, Config{AdminUsername: "admin", AdminPasswordHash: "argon2id$...", AdminSessionSecret: "abcd"}.AdminEnabled())
	assert.False(t, Config{AdminUsername: "admin", AdminPassword: "secret"}.AdminEnabled())
}

func TestLoad_ProvidersFileOverlay(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.yaml")
	body := `
system_prompt: "You answer tenancy questions."
primary:
  base_url: http://primary.local/v1
  model: gpt-4o
openrouter:
  model: meta-llama/llama-3.1-8b-instruct
  title: LawBot Staging
  alternative_models: ["meta-llama/llama-3.1-70b-instruct", " "]
alternative_models: [" a ", "", "b"]
max_tokens: 256
temperature: 0
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := load(map[string]string{"PROVIDERS_FILE": path})
	require.NoError(t, err)
	assert.Equal(t, "You answer tenancy questions.", cfg.EffectiveSystemPrompt())
	assert.Equal(t, "http://primary.local/v1", cfg.OpenAIBaseURL)
	assert.Equal(t, "gpt-4o", cfg.PrimaryModel)
	assert.Equal(t, "meta-llama/llama-3.1-8b-instruct", cfg.OpenRouterModel)
	assert.Equal(t, "LawBot Staging", cfg.OpenRouterTitle)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.OpenRouterBaseURL)
	assert.Equal(t, []string{"a", "b"}, cfg.AlternativeModels)
	assert.Equal(t, []string{"meta-llama/llama-3.1-70b-instruct"}, cfg.OpenRouterAlternativeModels)
	assert.Equal(t, 256, cfg.ChatMaxTokens)
	assert.InDelta(t, 0.0, cfg.ChatTemperature, 1e-9)
}

func TestLoad_ProvidersFileErrors(t *testing.T) {
	t.Parallel()
	_, err := load(map[string]string{"PROVIDERS_FILE": filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("primary: [unterminated"), 0o600))
	_, err = load(map[string]string{"PROVIDERS_FILE": bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse providers file")
}

func TestProvidersFile_ApplyNil(t *testing.T) {
	t.Parallel()
	var pf *ProvidersFile
	cfg := Config{PrimaryModel: "x"}
	pf.Apply(&cfg)
	assert.Equal(t, "x", cfg.PrimaryModel)
}
