package recognition

import (
	"log/slog"
	"time"

	"winescan/internal/catalog"
	"winescan/internal/config"
	"winescan/internal/fallback"
	"winescan/internal/grouping"
	"winescan/internal/logging"
	"winescan/internal/matcher"
	"winescan/internal/metrics"
	"winescan/internal/normalize"
)

// Defaults used when no configuration is supplied.
const (
	DefaultEscalationThreshold = 0.8
	DefaultVisibilityThreshold = 0.65
	DefaultMaxParallelBottles  = 8
	DefaultMaxEscalations      = 6
	DefaultMaxConcurrent       = 6
	DefaultLLMTimeout          = 3 * time.Second
	DefaultFallbackTopRated    = 10
)

// Orchestrator runs the per-bottle pipeline for whole images.
type Orchestrator struct {
	catalog    catalog.Reader
	matcher    *matcher.Matcher
	normalizer *normalize.Normalizer
	fallback   fallback.Normalizer
	cache      fallback.Cache
	metrics    *metrics.Metrics
	logger     *slog.Logger

	grouping            grouping.Options
	escalationThreshold float64
	visibilityThreshold float64
	policy              UnmatchedPolicy
	maxParallel         int
	maxEscalations      int
	maxConcurrent       int
	llmTimeout          time.Duration
	topRated            int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMatcher replaces the default matcher.
func WithMatcher(m *matcher.Matcher) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.matcher = m
		}
	}
}

// WithNormalizer replaces the default text normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.normalizer = n
		}
	}
}

// WithFallback enables LLM escalation. cache may be nil.
func WithFallback(n fallback.Normalizer, cache fallback.Cache) Option {
	return func(o *Orchestrator) {
		o.fallback = n
		o.cache = cache
	}
}

// WithThresholds sets the escalation and visibility thresholds.
func WithThresholds(escalation, visibility float64) Option {
	return func(o *Orchestrator) {
		o.escalationThreshold = escalation
		o.visibilityThreshold = visibility
	}
}

// WithGrouping sets the spatial grouping options.
func WithGrouping(opts grouping.Options) Option {
	return func(o *Orchestrator) {
		o.grouping = opts
	}
}

// WithUnmatchedPolicy selects how nameless bottles are reported.
func WithUnmatchedPolicy(p UnmatchedPolicy) Option {
	return func(o *Orchestrator) {
		if p == PolicyDrop || p == PolicyPlaceholder {
			o.policy = p
		}
	}
}

// WithMaxParallelBottles bounds how many bottles are matched at once.
func WithMaxParallelBottles(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// WithEscalationLimits caps LLM calls per request (total and in flight) and
// bounds each call. A zero total disables LLM calls; cache hits still apply.
func WithEscalationLimits(total, concurrent int, timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if total >= 0 {
			o.maxEscalations = total
		}
		if concurrent > 0 {
			o.maxConcurrent = concurrent
		}
		if timeout > 0 {
			o.llmTimeout = timeout
		}
	}
}

// WithFallbackTopRated sets how many top-rated wines a degraded response lists.
func WithFallbackTopRated(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.topRated = n
		}
	}
}

// WithMetrics records pipeline outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New constructs an Orchestrator over reader. Without WithFallback every
// escalation ends unmatched.
func New(reader catalog.Reader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog:             reader,
		normalizer:          normalize.New(nil),
		logger:              logging.NewNop(),
		grouping:            grouping.DefaultOptions(),
		escalationThreshold: DefaultEscalationThreshold,
		visibilityThreshold: DefaultVisibilityThreshold,
		policy:              PolicyDrop,
		maxParallel:         DefaultMaxParallelBottles,
		maxEscalations:      DefaultMaxEscalations,
		maxConcurrent:       DefaultMaxConcurrent,
		llmTimeout:          DefaultLLMTimeout,
		topRated:            DefaultFallbackTopRated,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.matcher == nil {
		o.matcher = matcher.New(reader)
	}
	o.logger = logging.NewComponentLogger(o.logger, "recognition")
	return o
}

// FromConfig wires an Orchestrator from configuration. fb and cache may be
// nil when the LLM fallback is disabled.
func FromConfig(cfg *config.Config, reader catalog.Reader, fb fallback.Normalizer, cache fallback.Cache, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	opts := []Option{
		WithMatcher(matcher.FromConfig(cfg, reader)),
		WithNormalizer(normalize.New(cfg.Normalizer.StopWords)),
		WithGrouping(grouping.Options{
			ProximityThreshold:    cfg.Grouping.ProximityThreshold,
			LineTolerance:         cfg.Grouping.LineTolerance,
			MinFragmentConfidence: cfg.Grouping.MinFragmentConfidence,
		}),
		WithThresholds(cfg.Matching.EscalationThreshold, cfg.Recognition.VisibilityThreshold),
		WithUnmatchedPolicy(UnmatchedPolicy(cfg.Recognition.UnmatchedPolicy)),
		WithMaxParallelBottles(cfg.Recognition.MaxParallelBottles),
		WithEscalationLimits(cfg.LLM.MaxEscalations, cfg.LLM.MaxConcurrent, cfg.LLMTimeout()),
		WithFallbackTopRated(cfg.Recognition.FallbackTopRated),
		WithMetrics(m),
		WithLogger(logger),
	}
	if cfg.LLM.Enabled && fb != nil {
		opts = append(opts, WithFallback(fb, cache))
	}
	return New(reader, opts...)
}
