package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"winescan/internal/catalog"
	"winescan/internal/config"
)

// SampleWines is a small catalog shared by package tests.
func SampleWines() []catalog.Entry {
	return []catalog.Entry{
		{ID: 1, Name: "Caymus Cabernet Sauvignon", Rating: 4.5, Winery: "Caymus", Varietal: "Cabernet Sauvignon", Region: "Napa Valley"},
		{ID: 2, Name: "Opus One", Rating: 4.7, Winery: "Opus One", Region: "Napa Valley"},
		{ID: 3, Name: "Whispering Angel Rosé", Rating: 3.9, Winery: "Château d'Esclans", Aliases: []string{"Whispering Angel"}},
		{ID: 4, Name: "Cloudy Bay Sauvignon Blanc", Rating: 4.1, Winery: "Cloudy Bay", Varietal: "Sauvignon Blanc", Region: "Marlborough"},
		{ID: 5, Name: "Château Margaux", Rating: 4.8, Region: "Bordeaux"},
		{ID: 6, Name: "Penfolds Grange", Rating: 4.9, Winery: "Penfolds", Varietal: "Shiraz"},
	}
}

// MustOpenCatalog opens a catalog in a temp directory, imports entries (or
// SampleWines when none are given), and registers cleanup.
func MustOpenCatalog(t testing.TB, entries ...catalog.Entry) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if len(entries) == 0 {
		entries = SampleWines()
	}
	if _, err := store.Import(context.Background(), entries, catalog.ImportOptions{}); err != nil {
		t.Fatalf("catalog import: %v", err)
	}
	return store
}

// SeedCatalog writes entries (or SampleWines) into the catalog file named by
// cfg and closes it, for code that opens the catalog itself.
func SeedCatalog(t testing.TB, cfg *config.Config, entries ...catalog.Entry) {
	t.Helper()

	store, err := catalog.Open(cfg.Paths.CatalogPath)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	defer store.Close()
	if len(entries) == 0 {
		entries = SampleWines()
	}
	if _, err := store.Import(context.Background(), entries, catalog.ImportOptions{}); err != nil {
		t.Fatalf("catalog import: %v", err)
	}
}
