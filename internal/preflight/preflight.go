package preflight

import (
	"context"

	"winescan/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name    string
	Passed  bool
	Skipped bool
	Detail  string
}

// RunAll executes every preflight check for cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckFreeSpace("Free space", cfg.Paths.DataDir, MinFreeBytes),
		CheckCatalog(ctx, cfg.Paths.CatalogPath),
		CheckVision(ctx, cfg.Vision.BaseURL, cfg.Vision.APIKey),
		CheckLLMFromConfig(ctx, cfg),
		CheckCache(ctx, cfg),
	}
}

// Failed reports whether any non-skipped result failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Skipped {
			return true
		}
	}
	return false
}
