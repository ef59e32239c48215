package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"winescan/internal/config"
	"winescan/internal/logging"
	"winescan/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewMirrorsJSONIntoFile(t *testing.T) {
	dir := t.TempDir()
	consolePath := filepath.Join(dir, "console.log")
	jsonPath := filepath.Join(dir, "service.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{consolePath},
		JSONPath:    jsonPath,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("service ready", logging.String("bind", "127.0.0.1:7690"))

	if content := readLog(t, consolePath); !strings.Contains(content, "INFO service ready") {
		t.Fatalf("expected console line, got %q", content)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, jsonPath))), &payload); err != nil {
		t.Fatalf("decode json mirror: %v", err)
	}
	if payload["msg"] != "service ready" || payload["bind"] != "127.0.0.1:7690" {
		t.Fatalf("unexpected json mirror payload %v", payload)
	}
}

func TestNewFromConfigUsesConfiguredLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "warn"
	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected info to be disabled at warn level")
	}
	if !logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Fatal("expected warn to be enabled")
	}
}

func TestWithMinLevelSuppressesChatter(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "quiet.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	quiet := logging.WithMinLevel(logging.NewComponentLogger(logger, "eval"), slog.LevelWarn)
	quiet.Info("bottle matched")
	quiet.Warn("llm disabled")
	// Re-applying replaces the floor rather than stacking it.
	logging.WithMinLevel(quiet, slog.LevelInfo).Info("summary")

	content := readLog(t, logPath)
	if strings.Contains(content, "bottle matched") {
		t.Fatalf("expected info to be suppressed, got %q", content)
	}
	for _, want := range []string{"WARN eval: llm disabled", "INFO eval: summary"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
}

func TestPruneLogsKeepsRecentAndProtected(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().AddDate(0, 0, -30)
	write := func(name string, mod time.Time) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
		return path
	}
	stale := write("winescan-20260101T000000.000Z.log", old)
	current := write("winescan-20260102T000000.000Z.log", old)
	fresh := write("winescan-20261018T000000.000Z.log", time.Now())
	other := write("catalog.db", old)

	if removed := logging.PruneLogs(logging.NewNop(), dir, 14, current); removed != 1 {
		t.Fatalf("expected one file pruned, got %d", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale log removed, stat err=%v", err)
	}
	for _, path := range []string{current, fresh, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
	if removed := logging.PruneLogs(nil, dir, 0); removed != 0 {
		t.Fatalf("expected zero retention to disable pruning, got %d", removed)
	}
}

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "matcher").Info("candidate selected",
		logging.String("wine", "Caymus Cabernet Sauvignon"),
		logging.Float64("composite", 0.91),
	)

	content := readLog(t, logPath)
	if !strings.Contains(content, "INFO matcher: candidate selected") {
		t.Fatalf("expected component header, got %q", content)
	}
	if !strings.Contains(content, `wine="Caymus Cabernet Sauvignon"`) {
		t.Fatalf("expected quoted string field, got %q", content)
	}
	if !strings.Contains(content, "composite=0.91") {
		t.Fatalf("expected float field, got %q", content)
	}
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("with caller")
	if content := readLog(t, logPath); !strings.Contains(content, "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithRequestID(context.Background(), "req-7")
	ctx = services.WithImageID(ctx, "img-7")
	logging.WithContext(ctx, logger).Warn("vision degraded")

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload["level"] != "warn" {
		t.Fatalf("expected lower-case level, got %v", payload["level"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", payload)
	}
	if payload[logging.FieldCorrelationID] != "req-7" || payload[logging.FieldImageID] != "img-7" {
		t.Fatalf("expected context fields, got %v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextFillsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "llm normalize failed", "llm_failure", logging.String(logging.FieldImpact, "bottle unmatched"))

	content := readLog(t, logPath)
	for _, want := range []string{"event_type=llm_failure", "error_hint=", `impact="bottle unmatched"`} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 8) {
		t.Fatal("expected nop logger to be disabled")
	}
	logging.WarnWithContext(nil, "ignored", "noop")
}
