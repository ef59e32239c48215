package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"winescan/internal/api"
	"winescan/internal/catalog"
	"winescan/internal/fallback"
	"winescan/internal/recognition"
	"winescan/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLIEnv(t)

	out, _, err := runCLI(t, env.configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.cfg.Paths.CatalogPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, _, err := runCLI(t, target, "config", "validate"); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestCatalogTopAndImport(t *testing.T) {
	env := setupCLIEnv(t)

	out, _, err := runCLI(t, env.configPath, "catalog", "top", "-n", "2")
	if err != nil {
		t.Fatalf("catalog top: %v", err)
	}
	requireContains(t, out, "Penfolds Grange")
	requireContains(t, out, "Château Margaux")
	if strings.Contains(out, "Opus One") {
		t.Fatalf("expected only two wines, got:\n%s", out)
	}

	file := testsupport.WriteJSON(t, filepath.Join(env.baseDir, "more.json"), []catalog.Entry{
		{Name: "Duckhorn Merlot", Rating: 4.2, Winery: "Duckhorn"},
	})
	out, _, err = runCLI(t, env.configPath, "catalog", "import", file)
	if err != nil {
		t.Fatalf("catalog import: %v", err)
	}
	requireContains(t, out, "Imported 1 wines (7 in catalog)")

	bad := testsupport.WriteJSON(t, filepath.Join(env.baseDir, "bad.json"), []catalog.Entry{{Name: "Nameless", Rating: 9}})
	if _, _, err := runCLI(t, env.configPath, "catalog", "import", bad); err == nil {
		t.Fatal("expected out-of-range rating to be rejected")
	}
}

func TestCatalogSearchScoresCandidates(t *testing.T) {
	env := setupCLIEnv(t)

	out, _, err := runCLI(t, env.configPath, "catalog", "search", "--json", "CAYMUS", "Cabernet", "Sauvignon", "2019", "750ml")
	if err != nil {
		t.Fatalf("catalog search: %v", err)
	}
	var got searchOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode search output: %v\n%s", err, out)
	}
	if strings.Contains(got.Normalized, "2019") || strings.Contains(got.Normalized, "750") {
		t.Fatalf("expected vintage and volume stripped, got %q", got.Normalized)
	}
	if len(got.Candidates) == 0 || got.Candidates[0].ID != 1 {
		t.Fatalf("expected Caymus first, got %+v", got.Candidates)
	}
	if got.Candidates[0].Composite < 0.8 {
		t.Fatalf("expected a confident match, got %v", got.Candidates[0].Composite)
	}
	if got.Floor != 0.5 || got.BestID == nil || *got.BestID != 1 {
		t.Fatalf("expected floor 0.5 and best id 1, got floor=%v best=%v", got.Floor, got.BestID)
	}

	out, _, err = runCLI(t, env.configPath, "catalog", "search", "zzqx")
	if err != nil {
		t.Fatalf("catalog search: %v", err)
	}
	requireContains(t, out, "(floor 0.50)")
}

func TestCatalogShow(t *testing.T) {
	env := setupCLIEnv(t)

	out, _, err := runCLI(t, env.configPath, "catalog", "show", "2")
	if err != nil {
		t.Fatalf("catalog show: %v", err)
	}
	requireContains(t, out, "Opus One")
	requireContains(t, out, "Napa Valley")

	if _, _, err := runCLI(t, env.configPath, "catalog", "show", "999"); err == nil {
		t.Fatal("expected an error for an unknown id")
	}
	if _, _, err := runCLI(t, env.configPath, "catalog", "show", "opus"); err == nil {
		t.Fatal("expected an error for a non-numeric id")
	}
}

func TestRecognizeReplaysDetections(t *testing.T) {
	env := setupCLIEnv(t)
	detections := testsupport.WriteJSON(t, filepath.Join(env.baseDir, "shelf.json"), testsupport.Shelf("Opus One", "Penfolds Grange"))

	out, _, err := runCLI(t, env.configPath, "recognize", "--detections", detections, "--json")
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	var resp api.ScanResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode response: %v\n%s", err, out)
	}
	if resp.ImageID == "" || resp.Debug != nil {
		t.Fatalf("unexpected envelope %+v", resp)
	}
	if len(resp.Results) != 2 || resp.Results[0].WineName != "Opus One" || resp.Results[1].WineName != "Penfolds Grange" {
		t.Fatalf("unexpected results %+v", resp.Results)
	}
	if resp.Results[0].Rating == nil || *resp.Results[0].Rating != 4.7 {
		t.Fatalf("expected catalog rating, got %+v", resp.Results[0].Rating)
	}

	out, _, err = runCLI(t, env.configPath, "recognize", "--detections", detections, "--debug")
	if err != nil {
		t.Fatalf("recognize table: %v", err)
	}
	requireContains(t, out, "Opus One")
	requireContains(t, out, "positioned")
}

func TestRecognizeDegradesWithoutVision(t *testing.T) {
	env := setupCLIEnv(t)
	image := filepath.Join(env.baseDir, "shelf.jpg")
	testsupport.WriteJSON(t, image, "not really a jpeg")

	out, _, err := runCLI(t, env.configPath, "recognize", image, "--json")
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	var resp api.ScanResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 0 || len(resp.FallbackList) == 0 || resp.FallbackList[0].WineName != "Penfolds Grange" {
		t.Fatalf("expected top rated fallback, got %+v", resp)
	}
}

func TestRecognizeArgumentErrors(t *testing.T) {
	env := setupCLIEnv(t)
	if _, _, err := runCLI(t, env.configPath, "recognize"); err == nil {
		t.Fatal("expected error without image or detections")
	}
	detections := testsupport.WriteJSON(t, filepath.Join(env.baseDir, "shelf.json"), testsupport.Shelf("Opus One"))
	if _, _, err := runCLI(t, env.configPath, "recognize", "--detections", detections, "--unmatched", "keep"); err == nil {
		t.Fatal("expected unknown unmatched policy to fail")
	}
}

func TestCacheListForgetClear(t *testing.T) {
	env := setupCLIEnv(t, testsupport.WithCacheSnapshot())
	testsupport.WriteJSON(t, env.cfg.Paths.CachePath, []fallback.Entry{
		{Key: "cloudy bay", Guess: fallback.Guess{Name: "Cloudy Bay Sauvignon Blanc", Confidence: 0.9}, CachedAt: time.Now().Add(-time.Hour)},
		{Key: "opus", Guess: fallback.Guess{Name: "Opus One", Confidence: 0.8}, CachedAt: time.Now()},
	})

	out, _, err := runCLI(t, env.configPath, "cache", "list")
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	requireContains(t, out, "Cloudy Bay Sauvignon Blanc")
	requireContains(t, out, "Opus One")

	out, _, err = runCLI(t, env.configPath, "cache", "forget", "Cloudy", "Bay")
	if err != nil {
		t.Fatalf("cache forget: %v", err)
	}
	requireContains(t, out, `Forgot "cloudy bay"`)

	out, _, err = runCLI(t, env.configPath, "cache", "list", "--json")
	if err != nil {
		t.Fatalf("cache list json: %v", err)
	}
	var entries []fallback.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "opus" {
		t.Fatalf("expected only opus to remain, got %+v", entries)
	}

	if _, _, err := runCLI(t, env.configPath, "cache", "clear"); err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	out, _, _ = runCLI(t, env.configPath, "cache", "list")
	requireContains(t, out, "Cache is empty.")
}

func TestEvalReportsRecall(t *testing.T) {
	env := setupCLIEnv(t)
	testsupport.WriteJSON(t, filepath.Join(env.baseDir, "corpus", "caymus.json"), testsupport.Shelf("Caymus Cabernet Sauvignon"))
	inline := testsupport.Shelf("Opus One", "Penfolds Grange")
	corpus := testsupport.WriteJSON(t, filepath.Join(env.baseDir, "corpus", "corpus.json"), []evalCase{
		{Name: "napa", Detection: &inline, Expected: []string{"Opus One", "Penfolds Grange"}},
		{Name: "mixed", Detections: "caymus.json", Expected: []string{"Caymus Cabernet Sauvignon", "Cloudy Bay Sauvignon Blanc"}},
	})

	out, _, err := runCLI(t, env.configPath, "eval", corpus, "--json")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	var report evalReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.Recall != 0.75 || report.Precision != 1 {
		t.Fatalf("expected recall 0.75 precision 1, got %+v", report)
	}
	if got := report.Cases[1].Missed; len(got) != 1 || got[0] != "Cloudy Bay Sauvignon Blanc" {
		t.Fatalf("expected Cloudy Bay missed, got %v", got)
	}

	if _, _, err := runCLI(t, env.configPath, "eval", corpus, "--min-recall", "0.9"); err == nil {
		t.Fatal("expected --min-recall to fail the run")
	}
}

func TestScoreCaseFoldsNames(t *testing.T) {
	rating := 3.9
	outcome := recognition.Outcome{
		Positioned: []recognition.Result{
			{Name: "Whispering Angel Rosé", Rating: &rating},
			{Name: "Opus One"},
		},
		Fallback: []recognition.FallbackEntry{{Name: "Cloudy Bay Sauvignon Blanc"}},
	}
	score := scoreCase([]string{"whispering angel rose", "Cloudy Bay Sauvignon Blanc", "Caymus"}, outcome)
	if score.Hits != 1 || score.Predicted != 2 || score.Listed != 1 {
		t.Fatalf("unexpected score %+v", score)
	}
	if len(score.Extra) != 1 || score.Extra[0] != "Opus One" {
		t.Fatalf("expected Opus One as extra, got %v", score.Extra)
	}
	if len(score.Missed) != 2 {
		t.Fatalf("expected two missed wines, got %v", score.Missed)
	}
}

func TestDoctorReportsFailures(t *testing.T) {
	env := setupCLIEnv(t)

	out, _, err := runCLI(t, env.configPath, "doctor", "--json")
	if err == nil {
		t.Fatal("expected doctor to fail without a vision service")
	}
	var rows []doctorRow
	if jsonErr := json.Unmarshal([]byte(out), &rows); jsonErr != nil {
		t.Fatalf("decode doctor output: %v\n%s", jsonErr, out)
	}
	status := make(map[string]string, len(rows))
	for _, r := range rows {
		status[r.Check] = r.Status
	}
	if status["Vision service"] != "fail" || status["LLM fallback"] != "skip" || status["Catalog"] != "pass" {
		t.Fatalf("unexpected statuses %v", status)
	}
}
