package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeVision()
	c.normalizeLLM()
	c.normalizeLLMCache()
	c.normalizeStopWords()
	c.normalizeRecognition()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CatalogPath) == "" {
		c.Paths.CatalogPath = defaultCatalogPath
	}
	if c.Paths.CatalogPath, err = expandPath(c.Paths.CatalogPath); err != nil {
		return fmt.Errorf("paths.catalog_path: %w", err)
	}
	if c.Paths.CachePath, err = expandPath(strings.TrimSpace(c.Paths.CachePath)); err != nil {
		return fmt.Errorf("paths.cache_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	if c.Server.APIToken == "" {
		if value, ok := os.LookupEnv("WINESCAN_API_TOKEN"); ok {
			c.Server.APIToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeVision() {
	c.Vision.BaseURL = strings.TrimSpace(c.Vision.BaseURL)
	if c.Vision.BaseURL == "" {
		if value, ok := os.LookupEnv("WINESCAN_VISION_URL"); ok {
			c.Vision.BaseURL = strings.TrimSpace(value)
		}
	}
	if c.Vision.APIKey == "" {
		if value, ok := os.LookupEnv("WINESCAN_VISION_API_KEY"); ok {
			c.Vision.APIKey = strings.TrimSpace(value)
		}
	}
}

// providerKeyEnv lists the environment variables consulted, in order, when
// llm.api_key is left empty.
var providerKeyEnv = map[string][]string{
	"openrouter": {"WINESCAN_LLM_API_KEY", "OPENROUTER_API_KEY"},
	"openai":     {"WINESCAN_LLM_API_KEY", "OPENAI_API_KEY"},
	"anthropic":  {"WINESCAN_LLM_API_KEY", "ANTHROPIC_API_KEY"},
	"gemini":     {"WINESCAN_LLM_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		for _, name := range providerKeyEnv[c.LLM.Provider] {
			if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	// The default base URL only makes sense for openrouter; other providers use
	// their SDK endpoints unless one is set explicitly.
	if c.LLM.Provider != defaultLLMProvider && c.LLM.BaseURL == defaultLLMBaseURL {
		c.LLM.BaseURL = ""
	}
	if c.LLM.Provider == defaultLLMProvider && c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
}

func (c *Config) normalizeLLMCache() {
	c.LLMCache.Backend = strings.ToLower(strings.TrimSpace(c.LLMCache.Backend))
	if c.LLMCache.Backend == "" {
		c.LLMCache.Backend = defaultCacheBackend
	}
	c.LLMCache.RedisAddress = strings.TrimSpace(c.LLMCache.RedisAddress)
	if c.LLMCache.RedisAddress == "" {
		if value, ok := os.LookupEnv("WINESCAN_REDIS_ADDR"); ok {
			c.LLMCache.RedisAddress = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.LLMCache.KeyPrefix) == "" {
		c.LLMCache.KeyPrefix = defaultCacheKeyPrefix
	}
}

func (c *Config) normalizeStopWords() {
	seen := make(map[string]struct{}, len(c.Normalizer.StopWords))
	words := make([]string, 0, len(c.Normalizer.StopWords))
	for _, word := range c.Normalizer.StopWords {
		word = strings.ToLower(strings.Join(strings.Fields(word), " "))
		if word == "" {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		words = append(words, word)
	}
	c.Normalizer.StopWords = words
}

func (c *Config) normalizeRecognition() {
	c.Recognition.UnmatchedPolicy = strings.ToLower(strings.TrimSpace(c.Recognition.UnmatchedPolicy))
	if c.Recognition.UnmatchedPolicy == "" {
		c.Recognition.UnmatchedPolicy = defaultUnmatchedPolicy
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
