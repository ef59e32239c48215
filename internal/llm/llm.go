package llm

import (
	"context"
	"strings"
	"time"

	"winescan/internal/config"
	"winescan/internal/services"
)

// Provider names accepted by New.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
)

const defaultMaxTokens = 512

// Completer returns the raw JSON text a model produced for the prompts.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// HealthChecker is implemented by providers that can verify credentials.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config captures the runtime settings required to talk to a provider.
type Config struct {
	Provider      string
	APIKey        string
	BaseURL       string
	Model         string
	Referer       string
	Title         string
	Timeout       time.Duration
	RetryAttempts int
}

// ConfigFrom extracts provider settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		Provider:      cfg.LLM.Provider,
		APIKey:        cfg.LLM.APIKey,
		BaseURL:       cfg.LLM.BaseURL,
		Model:         cfg.LLM.Model,
		Referer:       cfg.LLM.Referer,
		Title:         cfg.LLM.Title,
		Timeout:       cfg.LLMTimeout(),
		RetryAttempts: cfg.LLM.RetryAttempts,
	}
}

// New constructs the provider named by cfg.Provider. Options only apply to
// the openrouter client.
func New(ctx context.Context, cfg Config, opts ...Option) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOpenRouter
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "new", provider+" api key required", nil)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "new", provider+" model required", nil)
	}

	switch provider {
	case ProviderOpenRouter:
		if cfg.RetryAttempts > 0 {
			opts = append([]Option{WithRetryMaxAttempts(cfg.RetryAttempts)}, opts...)
		}
		return NewClient(cfg, opts...), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "llm", "new", "unknown provider "+provider, nil)
	}
}

// classify tags provider errors so callers can tell timeouts from failures.
func classify(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	if isTimeout(err) {
		return services.Wrap(services.ErrTimeout, "llm", op, provider, err)
	}
	return services.Wrap(services.ErrExternalTool, "llm", op, provider, err)
}

func requirePrompts(provider, systemPrompt, userPrompt string) (string, string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" {
		return "", "", services.Wrap(services.ErrValidation, "llm", "complete", provider+": system prompt required", nil)
	}
	if userPrompt == "" {
		return "", "", services.Wrap(services.ErrValidation, "llm", "complete", provider+": user prompt required", nil)
	}
	return systemPrompt, userPrompt, nil
}
