package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"winescan/internal/config"
	"winescan/internal/logging"
	"winescan/internal/metrics"
	"winescan/internal/recognition"
	"winescan/internal/vision"
)

const shutdownTimeout = 5 * time.Second

// CatalogCounter reports how many wines the catalog holds.
type CatalogCounter interface {
	Count(ctx context.Context) (int, error)
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Config       *config.Config
	Detector     vision.Detector
	Orchestrator *recognition.Orchestrator
	Catalog      CatalogCounter
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Server serves the scan API.
type Server struct {
	bind           string
	token          string
	debugEnabled   bool
	requestTimeout time.Duration
	maxUploadBytes int64
	llmEnabled     bool
	cacheBackend   string

	detector     vision.Detector
	orchestrator *recognition.Orchestrator
	catalog      CatalogCounter
	metrics      *metrics.Metrics
	logger       *slog.Logger

	engine   *gin.Engine
	server   *http.Server
	listener net.Listener
}

// New builds a Server and its routes. It does not start listening.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if deps.Detector == nil || deps.Orchestrator == nil {
		return nil, errors.New("server: detector and orchestrator are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		bind:           strings.TrimSpace(cfg.Server.Bind),
		token:          strings.TrimSpace(cfg.Server.APIToken),
		debugEnabled:   cfg.Server.DebugEnabled,
		requestTimeout: cfg.RequestTimeout(),
		maxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		llmEnabled:     cfg.LLM.Enabled,
		cacheBackend:   cfg.LLMCache.Backend,
		detector:       deps.Detector,
		orchestrator:   deps.Orchestrator,
		catalog:        deps.Catalog,
		metrics:        deps.Metrics,
		logger:         logging.NewComponentLogger(logger, "server"),
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = 12 << 20
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(recoveryMiddleware(s.logger))
	engine.Use(requestIDMiddleware())
	engine.Use(accessLogMiddleware(s.logger))

	engine.GET("/healthz", s.handleHealth)
	if deps.Registry != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}
	v1 := engine.Group("/v1", authMiddleware(s.token))
	v1.POST("/scan", s.handleScan)
	s.engine = engine

	s.server = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.requestTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr reports the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

// Start begins serving in the background. The server shuts down when ctx
// ends.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.token != ""),
		logging.Bool("debug_enabled", s.debugEnabled))
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
	}
}
