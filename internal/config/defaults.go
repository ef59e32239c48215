package config

const (
	defaultConfigPath   = "~/.config/winescan/config.toml"
	defaultDataDir      = "~/.local/share/winescan"
	defaultLogDir       = "~/.local/share/winescan/logs"
	defaultCatalogPath  = "~/.local/share/winescan/catalog.db"
	defaultLogFormat    = "console"
	defaultLogLevel     = "info"
	defaultLogRetention = 14

	defaultServerBind            = "127.0.0.1:7690"
	defaultRequestTimeoutSeconds = 8
	defaultMaxUploadMB           = 12

	defaultVisionTimeoutSeconds = 4

	defaultLLMProvider       = "openrouter"
	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-2.5-flash"
	defaultLLMReferer        = "https://github.com/winescan/winescan"
	defaultLLMTitle          = "winescan"
	defaultLLMTimeoutSeconds = 3
	defaultLLMRetryAttempts  = 2
	defaultMaxEscalations    = 6
	defaultMaxConcurrent     = 6

	defaultCacheBackend   = "memory"
	defaultCacheKeyPrefix = "winescan:llm:"

	defaultProximityThreshold = 0.15
	defaultLineTolerance      = 0.02

	defaultCandidateLimit      = 40
	defaultHardFloor           = 0.5
	defaultEscalationThreshold = 0.8
	defaultWeightRatio         = 0.45
	defaultWeightPartial       = 0.30
	defaultWeightTokenSort     = 0.25
	defaultWeightPhonetic      = 0.05

	defaultVisibilityThreshold = 0.65
	defaultUnmatchedPolicy     = "drop"
	defaultMaxParallelBottles  = 8
	defaultFallbackTopRated    = 10
)

// defaultStopWords lists label boilerplate that never helps identify a wine.
var defaultStopWords = []string{
	"wine", "wines", "red wine", "white wine", "table wine",
	"product of", "produce of", "imported by", "bottled by", "estate bottled",
	"contains sulfites", "alc", "vol", "alc/vol", "by volume",
	"sale", "special", "staff pick", "best seller",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			CatalogPath: defaultCatalogPath,
		},
		Server: Server{
			Bind:                  defaultServerBind,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			MaxUploadMB:           defaultMaxUploadMB,
		},
		Vision: Vision{
			TimeoutSeconds: defaultVisionTimeoutSeconds,
		},
		LLM: LLM{
			Enabled:        true,
			Provider:       defaultLLMProvider,
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			RetryAttempts:  defaultLLMRetryAttempts,
			MaxEscalations: defaultMaxEscalations,
			MaxConcurrent:  defaultMaxConcurrent,
		},
		LLMCache: LLMCache{
			Backend:   defaultCacheBackend,
			KeyPrefix: defaultCacheKeyPrefix,
		},
		Grouping: Grouping{
			ProximityThreshold: defaultProximityThreshold,
			LineTolerance:      defaultLineTolerance,
		},
		Normalizer: Normalizer{
			StopWords: append([]string(nil), defaultStopWords...),
		},
		Matching: Matching{
			CandidateLimit:      defaultCandidateLimit,
			HardFloor:           defaultHardFloor,
			EscalationThreshold: defaultEscalationThreshold,
			WeightRatio:         defaultWeightRatio,
			WeightPartial:       defaultWeightPartial,
			WeightTokenSort:     defaultWeightTokenSort,
			WeightPhonetic:      defaultWeightPhonetic,
		},
		Recognition: Recognition{
			VisibilityThreshold: defaultVisibilityThreshold,
			UnmatchedPolicy:     defaultUnmatchedPolicy,
			MaxParallelBottles:  defaultMaxParallelBottles,
			FallbackTopRated:    defaultFallbackTopRated,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetention,
		},
	}
}
