package llm

import (
	"context"
	"errors"

	"github.com/liushuangls/go-anthropic/v2"
)

// Anthropic completes prompts with the Anthropic messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic builds an Anthropic-backed Completer.
func NewAnthropic(cfg Config) *Anthropic {
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{client: anthropic.NewClient(cfg.APIKey, opts...), model: cfg.Model}
}

// CompleteJSON implements Completer. The messages API has no JSON mode, so
// the system prompt carries the format instruction and DecodeJSON copes with
// any prose around the object.
func (a *Anthropic) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt, userPrompt, err := requirePrompts(ProviderAnthropic, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	resp, err := a.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:  anthropic.Model(a.model),
		System: systemPrompt,
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(userPrompt)},
			},
		},
		MaxTokens: defaultMaxTokens,
	})
	if err != nil {
		return "", classify(ProviderAnthropic, "complete", err)
	}
	for _, part := range resp.Content {
		if part.Text != nil {
			if content := firstNonEmpty(*part.Text); content != "" {
				return content, nil
			}
		}
	}
	return "", classify(ProviderAnthropic, "complete", errors.New("no response content"))
}
