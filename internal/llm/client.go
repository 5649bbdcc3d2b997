// Package llm abstracts the language-model transport used by the semantic
// judge. Providers return plain text; prompt construction and response
// parsing live in the judge package.
package llm

import (
	"context"
	"fmt"

	"github.com/Ashish-dwi99/FadeMem/internal/config"
)

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (*Response, error)
}

// Response holds the result of an LLM completion.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
}

// NewClient creates an LLM client based on the config provider setting.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY or config")
		}
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		return NewAnthropic(cfg.AnthropicKey, model), nil
	case "ollama":
		model := cfg.OllamaModel
		if model == "" {
			model = "llama3.2"
		}
		return NewOllama(cfg.OllamaURL, model), nil
	case "mock":
		return &MockClient{Response: &Response{Content: "{}", Provider: "mock"}}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}
