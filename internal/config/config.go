package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains on-disk locations.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	CatalogPath string `toml:"catalog_path"`
	// CachePath is the JSON snapshot of the in-memory LLM guess cache. Empty
	// keeps the cache purely in memory.
	CachePath string `toml:"cache_path"`
}

// Server contains configuration for the scan HTTP API.
type Server struct {
	Bind                  string `toml:"bind"`
	APIToken              string `toml:"api_token"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	MaxUploadMB           int    `toml:"max_upload_mb"`
	DebugEnabled          bool   `toml:"debug_enabled"`
}

// Vision contains configuration for the OCR and bottle-detection service.
type Vision struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LLM contains connection settings for the fallback name normalizer.
type LLM struct {
	Enabled  bool   `toml:"enabled"`
	Provider string `toml:"provider"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Model    string `toml:"model"`
	Referer  string `toml:"referer"`
	Title    string `toml:"title"`
	// TimeoutSeconds bounds a single normalize call.
	TimeoutSeconds int `toml:"timeout_seconds"`
	RetryAttempts  int `toml:"retry_attempts"`
	// MaxEscalations caps LLM calls per request; MaxConcurrent caps how many run at once.
	MaxEscalations int `toml:"max_escalations"`
	MaxConcurrent  int `toml:"max_concurrent"`
}

// LLMCache selects where LLM guesses are cached.
type LLMCache struct {
	Backend       string `toml:"backend"`
	RedisAddress  string `toml:"redis_address"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	KeyPrefix     string `toml:"key_prefix"`
}

// Grouping contains spatial grouping tolerances, expressed as fractions of the
// larger image dimension.
type Grouping struct {
	ProximityThreshold    float64 `toml:"proximity_threshold"`
	LineTolerance         float64 `toml:"line_tolerance"`
	MinFragmentConfidence float64 `toml:"min_fragment_confidence"`
}

// Normalizer contains the marketing and filler words stripped from label text.
type Normalizer struct {
	StopWords []string `toml:"stop_words"`
}

// Matching contains catalog matcher tuning.
type Matching struct {
	CandidateLimit      int     `toml:"candidate_limit"`
	HardFloor           float64 `toml:"hard_floor"`
	EscalationThreshold float64 `toml:"escalation_threshold"`
	WeightRatio         float64 `toml:"weight_ratio"`
	WeightPartial       float64 `toml:"weight_partial"`
	WeightTokenSort     float64 `toml:"weight_token_sort"`
	WeightPhonetic      float64 `toml:"weight_phonetic"`
}

// Recognition contains orchestrator policy.
type Recognition struct {
	VisibilityThreshold float64 `toml:"visibility_threshold"`
	// UnmatchedPolicy is "drop" or "placeholder".
	UnmatchedPolicy    string `toml:"unmatched_policy"`
	MaxParallelBottles int    `toml:"max_parallel_bottles"`
	FallbackTopRated   int    `toml:"fallback_top_rated"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// RetentionDays prunes service logs older than this many days; 0 keeps them.
	RetentionDays int `toml:"retention_days"`
}

// Config encapsulates all configuration values for winescan.
//
// Configuration sections by subsystem:
//   - Paths: data, log, catalog, and cache locations
//   - Server: scan API bind address, auth, limits
//   - Vision: OCR and bottle detection service
//   - LLM / LLMCache: fallback normalizer provider and its guess cache
//   - Grouping, Normalizer, Matching, Recognition: pipeline tuning
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Server      Server      `toml:"server"`
	Vision      Vision      `toml:"vision"`
	LLM         LLM         `toml:"llm"`
	LLMCache    LLMCache    `toml:"llm_cache"`
	Grouping    Grouping    `toml:"grouping"`
	Normalizer  Normalizer  `toml:"normalizer"`
	Matching    Matching    `toml:"matching"`
	Recognition Recognition `toml:"recognition"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("winescan.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories plus the parents of
// the catalog and cache files.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, filepath.Dir(c.Paths.CatalogPath)}
	if c.Paths.CachePath != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.CachePath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// RequestTimeout returns the end-to-end deadline applied to one scan request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// LLMTimeout returns the deadline for a single fallback normalize call.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// VisionTimeout returns the deadline for one vision detection call.
func (c *Config) VisionTimeout() time.Duration {
	return time.Duration(c.Vision.TimeoutSeconds) * time.Second
}
