package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"winescan/internal/catalog"
	"winescan/internal/config"
	"winescan/internal/fallback"
	"winescan/internal/llm"
	"winescan/internal/logging"
	"winescan/internal/metrics"
	"winescan/internal/recognition"
	"winescan/internal/server"
	"winescan/internal/vision"
)

// Runtime holds the wired service components.
type Runtime struct {
	Catalog      *catalog.Store
	Cache        fallback.Cache
	Detector     vision.Detector
	Orchestrator *recognition.Orchestrator
	Server       *server.Server
	Registry     *prometheus.Registry

	closers []func() error
}

// BuildOption customizes Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	detector vision.Detector
}

// WithDetector replaces the HTTP vision client, for replaying saved detections.
func WithDetector(d vision.Detector) BuildOption {
	return func(o *buildOptions) {
		if d != nil {
			o.detector = d
		}
	}
}

// Build opens every dependency the scan service needs. On error anything
// already opened is closed again.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...BuildOption) (rt *Runtime, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	rt = &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	store, err := catalog.Open(cfg.Paths.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	rt.Catalog = store
	rt.closers = append(rt.closers, store.Close)

	cache, closeCache, err := fallback.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open llm cache: %w", err)
	}
	rt.Cache = cache
	rt.closers = append(rt.closers, closeCache)

	var normalizer fallback.Normalizer
	if cfg.LLM.Enabled {
		completer, err := llm.New(ctx, llm.ConfigFrom(cfg))
		if err != nil {
			logging.WarnWithContext(logger, "llm fallback unavailable; continuing catalog-only", "llm_init_failed",
				logging.Error(err),
				logging.String("provider", cfg.LLM.Provider),
				logging.String(logging.FieldErrorHint, "set llm.api_key or run winescan doctor"),
				logging.String(logging.FieldImpact, "low-confidence bottles are not escalated"),
			)
		} else {
			if closer, ok := completer.(io.Closer); ok {
				rt.closers = append(rt.closers, closer.Close)
			}
			normalizer = fallback.NewLLMNormalizer(completer, logger)
		}
	}

	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(rt.Registry)

	detector := bo.detector
	if detector == nil {
		detector = vision.NewClient(vision.Config{
			BaseURL: cfg.Vision.BaseURL,
			APIKey:  cfg.Vision.APIKey,
			Timeout: cfg.VisionTimeout(),
		})
	}

	rt.Detector = detector
	rt.Orchestrator = recognition.FromConfig(cfg, store, normalizer, cache, m, logger)
	rt.Server, err = server.New(server.Deps{
		Config:       cfg,
		Detector:     detector,
		Orchestrator: rt.Orchestrator,
		Catalog:      store,
		Registry:     rt.Registry,
		Metrics:      m,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create api server: %w", err)
	}

	logger.Info("service wired",
		logging.String(logging.FieldEventType, "service_wired"),
		logging.String("catalog", store.Path()),
		logging.String("cache_backend", cfg.LLMCache.Backend),
		logging.Bool("llm_enabled", normalizer != nil),
		logging.Bool("vision_configured", strings.TrimSpace(cfg.Vision.BaseURL) != "" || bo.detector != nil),
	)
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
