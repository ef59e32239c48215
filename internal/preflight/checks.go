package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"winescan/internal/catalog"
	"winescan/internal/config"
	"winescan/internal/fallback"
	"winescan/internal/llm"
)

// MinFreeBytes is the free space the data directory should keep for the
// catalog, cache snapshot and logs.
const MinFreeBytes uint64 = 256 << 20

// CheckCatalog verifies the catalog opens and holds at least one wine.
func CheckCatalog(ctx context.Context, path string) Result {
	const name = "Catalog"
	if _, err := os.Stat(path); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	store, err := catalog.Open(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer store.Close()
	count, err := store.Count(ctx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if count == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (empty, run \"winescan catalog import\")", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s wines)", path, humanize.Comma(int64(count)))}
}

// CheckVision verifies the vision endpoint answers HTTP. Any response below
// 500 counts as reachable; the endpoint is not asked to analyze an image.
func CheckVision(ctx context.Context, baseURL, apiKey string) Result {
	const name = "Vision service"
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return Result{Name: name, Detail: "missing vision.base_url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("reachability check failed (%v)", err)}
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (check vision.api_key)"}
	case resp.StatusCode >= http.StatusInternalServerError:
		return Result{Name: name, Detail: fmt.Sprintf("unhealthy (%d)", resp.StatusCode)}
	default:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	}
}

// CheckLLMFromConfig evaluates the LLM fallback when it is enabled.
func CheckLLMFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "LLM fallback"
	if cfg == nil || !cfg.LLM.Enabled {
		return Result{Name: name, Skipped: true, Detail: "Disabled"}
	}
	return CheckLLM(ctx, name, llm.ConfigFrom(cfg))
}

// CheckLLM verifies the provider is configured. Providers that support it
// are also pinged with a single attempt.
func CheckLLM(ctx context.Context, name string, cfg llm.Config) Result {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	completer, err := llm.New(checkCtx, cfg, llm.WithRetryMaxAttempts(1))
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if closer, ok := completer.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	checker, ok := completer.(llm.HealthChecker)
	if !ok {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s configured (%s)", cfg.Provider, cfg.Model)}
	}
	if err := checker.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckCache verifies the configured guess cache backend responds.
func CheckCache(ctx context.Context, cfg *config.Config) Result {
	const name = "LLM cache"
	if cfg == nil || !cfg.LLM.Enabled {
		return Result{Name: name, Skipped: true, Detail: "Disabled"}
	}
	cache, closeCache, err := fallback.Open(cfg, nil)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer closeCache()
	entries, err := cache.List(ctx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s backend (%d cached guesses)", cfg.LLMCache.Backend, len(entries))}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least min bytes
// available to unprivileged users.
func CheckFreeSpace(name, path string, min uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free on %s", humanize.IBytes(free), path)
	if free < min {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %s)", detail, humanize.IBytes(min))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// summarizeLLMError produces a human-readable summary for LLM health check failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	return err.Error()
}
