package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLLM,
		c.validateLLMCache,
		c.validateGrouping,
		c.validateMatching,
		c.validateRecognition,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	return ensurePositiveMap(map[string]int{
		"server.request_timeout_seconds": c.Server.RequestTimeoutSeconds,
		"server.max_upload_mb":           c.Server.MaxUploadMB,
		"vision.timeout_seconds":         c.Vision.TimeoutSeconds,
	})
}

func (c *Config) validateLLM() error {
	if !c.LLM.Enabled {
		return nil
	}
	switch c.LLM.Provider {
	case "openrouter", "openai", "anthropic", "gemini":
	default:
		return fmt.Errorf("llm.provider: unsupported value %q (want openrouter, openai, anthropic, or gemini)", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model must be set when llm.enabled is true")
	}
	if c.LLM.RetryAttempts < 0 {
		return errors.New("llm.retry_attempts must be zero or positive")
	}
	if c.LLM.MaxEscalations < 0 {
		return errors.New("llm.max_escalations must be zero or positive")
	}
	if err := ensurePositiveMap(map[string]int{
		"llm.timeout_seconds": c.LLM.TimeoutSeconds,
		"llm.max_concurrent":  c.LLM.MaxConcurrent,
	}); err != nil {
		return err
	}
	return c.validateLatencyBudget()
}

// validateLatencyBudget requires the request deadline to cover the vision call
// plus every wave of LLM escalations, so a slow LLM cannot consume the time
// already spent on catalog matches.
func (c *Config) validateLatencyBudget() error {
	if c.LLM.MaxEscalations == 0 {
		return nil
	}
	waves := (c.LLM.MaxEscalations + c.LLM.MaxConcurrent - 1) / c.LLM.MaxConcurrent
	need := c.Vision.TimeoutSeconds + waves*c.LLM.TimeoutSeconds
	if c.Server.RequestTimeoutSeconds <= need {
		return fmt.Errorf("server.request_timeout_seconds (%d) must exceed vision.timeout_seconds + %d llm waves x llm.timeout_seconds (%d); raise it, lower llm.max_escalations, or raise llm.max_concurrent",
			c.Server.RequestTimeoutSeconds, waves, need)
	}
	return nil
}

func (c *Config) validateLLMCache() error {
	switch c.LLMCache.Backend {
	case "memory":
		return nil
	case "redis":
		if c.LLMCache.RedisAddress == "" {
			return errors.New("llm_cache.redis_address must be set when llm_cache.backend is redis")
		}
		if c.LLMCache.RedisDB < 0 {
			return errors.New("llm_cache.redis_db must be zero or positive")
		}
		return nil
	default:
		return fmt.Errorf("llm_cache.backend: unsupported value %q (want memory or redis)", c.LLMCache.Backend)
	}
}

func (c *Config) validateGrouping() error {
	if c.Grouping.ProximityThreshold <= 0 || c.Grouping.ProximityThreshold > 1 {
		return errors.New("grouping.proximity_threshold must be in (0, 1]")
	}
	if c.Grouping.LineTolerance < 0 || c.Grouping.LineTolerance > 1 {
		return errors.New("grouping.line_tolerance must be between 0 and 1")
	}
	if c.Grouping.MinFragmentConfidence < 0 || c.Grouping.MinFragmentConfidence > 1 {
		return errors.New("grouping.min_fragment_confidence must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateMatching() error {
	m := c.Matching
	if m.CandidateLimit <= 0 {
		return errors.New("matching.candidate_limit must be positive")
	}
	if err := ensureUnitMap(map[string]float64{
		"matching.hard_floor":           m.HardFloor,
		"matching.escalation_threshold": m.EscalationThreshold,
		"matching.weight_ratio":         m.WeightRatio,
		"matching.weight_partial":       m.WeightPartial,
		"matching.weight_token_sort":    m.WeightTokenSort,
	}); err != nil {
		return err
	}
	if m.HardFloor >= m.EscalationThreshold {
		return errors.New("matching.hard_floor must be lower than matching.escalation_threshold")
	}
	if m.WeightRatio+m.WeightPartial+m.WeightTokenSort <= 0 {
		return errors.New("matching weights for ratio, partial, and token_sort must not all be zero")
	}
	if m.WeightPhonetic < 0 || m.WeightPhonetic > 0.2 {
		return errors.New("matching.weight_phonetic must be between 0 and 0.2")
	}
	return nil
}

func (c *Config) validateRecognition() error {
	r := c.Recognition
	if r.VisibilityThreshold < 0 || r.VisibilityThreshold > 1 {
		return errors.New("recognition.visibility_threshold must be between 0 and 1")
	}
	switch r.UnmatchedPolicy {
	case "drop", "placeholder":
	default:
		return fmt.Errorf("recognition.unmatched_policy: unsupported value %q (want drop or placeholder)", r.UnmatchedPolicy)
	}
	if r.MaxParallelBottles <= 0 {
		return errors.New("recognition.max_parallel_bottles must be positive")
	}
	if r.FallbackTopRated < 0 {
		return errors.New("recognition.fallback_top_rated must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for _, key := range sortedKeys(values) {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func ensureUnitMap(values map[string]float64) error {
	for _, key := range sortedKeys(values) {
		if v := values[key]; v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1", key)
		}
	}
	return nil
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
