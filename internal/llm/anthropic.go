package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic wraps the official Messages API client.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropic creates a new Anthropic client.
func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Complete sends a single-turn prompt and returns the first text block.
func (a *Anthropic) Complete(ctx context.Context, prompt string) (*Response, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   2048,
		Temperature: anthropic.Float(0.3),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic api: %w", err)
	}

	text := ""
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	return &Response{
		Content:    text,
		Provider:   "anthropic",
		TokensUsed: int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}, nil
}
