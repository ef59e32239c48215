package preflight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"winescan/internal/llm"
	"winescan/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("free", dir, 0); !result.Passed {
		t.Fatalf("expected pass with no minimum, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("free", dir, 1<<62); result.Passed {
		t.Fatal("expected failure for an impossible minimum")
	}
	if result := CheckFreeSpace("free", filepath.Join(dir, "missing"), 0); result.Passed {
		t.Fatal("expected failure for a missing path")
	}
}

func TestCheckCatalog(t *testing.T) {
	store := testsupport.MustOpenCatalog(t)
	path := store.Path()
	_ = store.Close()

	result := CheckCatalog(context.Background(), path)
	if !result.Passed || !strings.Contains(result.Detail, "6 wines") {
		t.Fatalf("expected pass with wine count, got: %+v", result)
	}

	if result := CheckCatalog(context.Background(), filepath.Join(t.TempDir(), "missing.db")); result.Passed {
		t.Fatal("expected failure for a missing catalog")
	}
}

func TestCheckCatalog_Empty(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	empty := filepath.Join(testsupport.BaseDir(cfg), "empty.db")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckCatalog(context.Background(), empty)
	if result.Passed || !strings.Contains(result.Detail, "empty") {
		t.Fatalf("expected empty catalog failure, got: %+v", result)
	}
}

func TestCheckVision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	if result := CheckVision(context.Background(), srv.URL, "good"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckVision(context.Background(), srv.URL, "bad"); result.Passed {
		t.Fatal("expected auth failure")
	}
	if result := CheckVision(context.Background(), "", ""); result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckLLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": `{"ok":true}`}}},
		})
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "LLM", llm.Config{Provider: llm.ProviderOpenRouter, APIKey: "k", BaseURL: srv.URL, Model: "m"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckLLM(context.Background(), "LLM", llm.Config{Provider: llm.ProviderOpenRouter, Model: "m"}); result.Passed {
		t.Fatal("expected failure without an API key")
	}
	result = CheckLLM(context.Background(), "LLM", llm.Config{Provider: llm.ProviderAnthropic, APIKey: "k", Model: "claude"})
	if !result.Passed || !strings.Contains(result.Detail, "configured") {
		t.Fatalf("providers without a ping should pass on configuration, got: %+v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_SkipsDisabledFallback(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := RunAll(context.Background(), cfg)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	byName := make(map[string]Result, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	if !byName["Data directory"].Passed {
		t.Fatalf("data directory check failed: %s", byName["Data directory"].Detail)
	}
	if !byName["LLM fallback"].Skipped || !byName["LLM cache"].Skipped {
		t.Fatal("disabled fallback checks should be skipped")
	}
	if byName["Catalog"].Passed {
		t.Fatal("catalog should fail before any import")
	}
	if !Failed(results) {
		t.Fatal("Failed should report the missing catalog")
	}
	if Failed([]Result{{Passed: true}, {Skipped: true}}) {
		t.Fatal("skipped checks must not count as failures")
	}
}
