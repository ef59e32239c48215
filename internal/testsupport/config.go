package testsupport

import (
	"path/filepath"
	"testing"

	"winescan/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The LLM fallback is disabled and the server binds an ephemeral port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = base
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CatalogPath = filepath.Join(base, "catalog.db")
	cfgVal.Paths.CachePath = ""
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.LLM.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithAPIToken requires bearer authentication on the scan API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.APIToken = token
	}
}

// WithDebugEnabled allows ?debug=true on scans.
func WithDebugEnabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.DebugEnabled = true
	}
}

// WithVisionURL points the vision client at url.
func WithVisionURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Vision.BaseURL = url
	}
}

// WithLLM enables the fallback against an OpenRouter-compatible endpoint.
func WithLLM(baseURL, apiKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.Enabled = true
		b.cfg.LLM.Provider = "openrouter"
		b.cfg.LLM.BaseURL = baseURL
		b.cfg.LLM.APIKey = apiKey
	}
}

// WithCacheSnapshot persists the in-memory LLM cache under the test directory.
func WithCacheSnapshot() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.CachePath = filepath.Join(b.baseDir, "llm_cache.json")
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.DataDir
}
