package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"winescan/internal/llm"
	"winescan/internal/logging"
	"winescan/internal/services"
)

// Guess is a model's proposal for a bottle's canonical wine name.
type Guess struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Normalizer proposes a canonical name from label text.
type Normalizer interface {
	Normalize(ctx context.Context, raw, normalized string) (Guess, error)
}

const systemPrompt = `You identify wines from noisy OCR text read off a bottle label on a store shelf.
Return the most likely canonical wine name as it would appear in a wine catalog: producer followed by the wine or cuvée name and grape variety when it is part of the name. Never include vintage years, bottle sizes or prices.
If the text is not enough to identify a wine, return an empty name and a confidence of 0. Do not invent wines.
Respond with JSON only: {"name": string, "confidence": number between 0 and 1, "reasoning": short string}.`

type promptPayload struct {
	RawText        string `json:"raw_text"`
	NormalizedText string `json:"normalized_text"`
}

// LLMNormalizer implements Normalizer over a JSON-completion provider.
type LLMNormalizer struct {
	completer llm.Completer
	logger    *slog.Logger
}

// NewLLMNormalizer wraps completer. A nil logger discards output.
func NewLLMNormalizer(completer llm.Completer, logger *slog.Logger) *LLMNormalizer {
	return &LLMNormalizer{
		completer: completer,
		logger:    logging.NewComponentLogger(logger, "fallback"),
	}
}

// Normalize asks the model for a name. Empty or unusable replies are errors
// so callers treat them like any other failed escalation.
func (n *LLMNormalizer) Normalize(ctx context.Context, raw, normalized string) (Guess, error) {
	if n == nil || n.completer == nil {
		return Guess{}, services.Wrap(services.ErrConfiguration, "fallback", "normalize", "no llm provider configured", nil)
	}
	user, err := json.Marshal(promptPayload{RawText: strings.TrimSpace(raw), NormalizedText: strings.TrimSpace(normalized)})
	if err != nil {
		return Guess{}, services.Wrap(services.ErrValidation, "fallback", "normalize", "encode prompt", err)
	}

	content, err := n.completer.CompleteJSON(ctx, systemPrompt, string(user))
	if err != nil {
		return Guess{}, err
	}

	var guess Guess
	if err := llm.DecodeJSON(content, &guess); err != nil {
		return Guess{}, services.Wrap(services.ErrExternalTool, "fallback", "normalize", "parse reply", err)
	}
	guess.Name = strings.Join(strings.Fields(guess.Name), " ")
	guess.Reasoning = strings.TrimSpace(guess.Reasoning)
	guess.Confidence = clampConfidence(guess.Confidence)
	if guess.Name == "" || strings.EqualFold(guess.Name, "unknown") {
		return Guess{}, services.Wrap(services.ErrExternalTool, "fallback", "normalize", fmt.Sprintf("no name for %q", normalized), nil)
	}

	n.logger.Debug("llm name guess",
		logging.String("normalized", normalized),
		logging.String("guess", guess.Name),
		logging.Float64("llm_confidence", guess.Confidence))
	return guess, nil
}

func clampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
