package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProvidersFile is the YAML overlay for provider settings. Empty fields keep
// the values parsed from the environment.
//
//	system_prompt: "..."
//	primary:
//	  base_url: https://api.openai.com/v1
//	  model: gpt-3.5-turbo
//	openrouter:
//	  base_url: https://openrouter.ai/api/v1
//	  model: gpt-4o-mini
//	  referer: http://localhost:9000
//	  title: LawBot
//	  alternative_models: [openai/gpt-3.5-turbo, openai/gpt-4]
//	alternative_models: [gpt-3.5-turbo, gpt-4]
type ProvidersFile struct {
	SystemPrompt string `yaml:"system_prompt"`
	Primary      struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"primary"`
	OpenRouter struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
		Referer string `yaml:"referer"`
		Title   string `yaml:"title"`
		// AlternativeModels replaces OPENROUTER_ALTERNATIVE_MODELS.
		AlternativeModels []string `yaml:"alternative_models"`
	} `yaml:"openrouter"`
	AlternativeModels []string `yaml:"alternative_models"`
	MaxTokens         int      `yaml:"max_tokens"`
	Temperature       *float64 `yaml:"temperature"`
}

// LoadProvidersFile reads and parses a providers overlay.
func LoadProvidersFile(filePath string) (*ProvidersFile, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	// #nosec G304 -- path comes from operator configuration
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}
	var pf ProvidersFile
	if err := yaml.Unmarshal(content, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse providers file %s: %w", filePath, err)
	}
	return &pf, nil
}

// Apply copies the non-empty overlay values onto cfg.
func (p *ProvidersFile) Apply(cfg *Config) {
	if p == nil || cfg == nil {
		return
	}
	setIf(&cfg.SystemPrompt, p.SystemPrompt)
	setIf(&cfg.OpenAIBaseURL, p.Primary.BaseURL)
	setIf(&cfg.PrimaryModel, p.Primary.Model)
	setIf(&cfg.OpenRouterBaseURL, p.OpenRouter.BaseURL)
	setIf(&cfg.OpenRouterModel, p.OpenRouter.Model)
	setIf(&cfg.OpenRouterReferer, p.OpenRouter.Referer)
	setIf(&cfg.OpenRouterTitle, p.OpenRouter.Title)
	if models := cleanModels(p.AlternativeModels); len(models) > 0 {
		cfg.AlternativeModels = models
	}
	if models := cleanModels(p.OpenRouter.AlternativeModels); len(models) > 0 {
		cfg.OpenRouterAlternativeModels = models
	}
	if p.MaxTokens > 0 {
		cfg.ChatMaxTokens = p.MaxTokens
	}
	if p.Temperature != nil {
		cfg.ChatTemperature = *p.Temperature
	}
}

func setIf(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func cleanModels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, m := range in {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}
