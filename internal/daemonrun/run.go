package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"winescan/internal/config"
	"winescan/internal/logging"
)

// ErrAlreadyRunning is returned when another service holds the data directory lock.
var ErrAlreadyRunning = errors.New("another winescan service instance is already running")

// Options configures service process behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel    string
	Development bool
	// Bind overrides server.bind when set.
	Bind string
	// Ready, when set, receives the bound address once the server listens.
	Ready func(addr string)
	// NoLogFile keeps logging on stderr only.
	NoLogFile bool
	Build     []BuildOption
}

// Run starts the scan service and blocks until cmdCtx ends or the process
// receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if opts.Bind != "" {
		cfg.Server.Bind = opts.Bind
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lock := flock.New(filepath.Join(cfg.Paths.DataDir, "winescan.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	defer func() { _ = lock.Unlock() }()

	logger, logPath, err := newServiceLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if logPath != "" {
		if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to update winescan.log link: %v\n", err)
		}
		logging.PruneLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logPath)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "winescan.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Build(signalCtx, cfg, logger, opts.Build...)
	if err != nil {
		logger.Error("service wiring failed", logging.Error(err))
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("service resources did not close cleanly", logging.Error(err))
		}
	}()

	if err := rt.Server.Start(signalCtx); err != nil {
		return err
	}
	if opts.Ready != nil {
		opts.Ready(rt.Server.Addr())
	}

	<-signalCtx.Done()
	logger.Info("winescan service shutting down")
	rt.Server.Stop()
	return nil
}

func newServiceLogger(cfg *config.Config, opts Options) (*slog.Logger, string, error) {
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logOpts := logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
		Development: opts.Development,
	}
	var logPath string
	if !opts.NoLogFile && cfg.Paths.LogDir != "" {
		runID := time.Now().UTC().Format("20060102T150405.000Z")
		logPath = filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("winescan-%s.log", runID))
		logOpts.JSONPath = logPath
	}
	logger, err := logging.New(logOpts)
	if err != nil {
		return nil, "", err
	}
	return logger, logPath, nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "winescan.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}
