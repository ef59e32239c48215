package catalog

import (
	"context"
	"math"
	"strings"
)

// MinRating and MaxRating bound every catalog rating.
const (
	MinRating = 1.0
	MaxRating = 5.0
)

// Entry is one reference wine.
type Entry struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Rating   float64  `json:"rating"`
	Varietal string   `json:"varietal,omitempty"`
	Region   string   `json:"region,omitempty"`
	Winery   string   `json:"winery,omitempty"`
	Aliases  []string `json:"aliases,omitempty"`
}

// Forms returns the canonical name followed by each alias.
func (e Entry) Forms() []string {
	forms := make([]string, 0, len(e.Aliases)+1)
	forms = append(forms, e.Name)
	forms = append(forms, e.Aliases...)
	return forms
}

// Searcher retrieves candidate entries for a normalized query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Entry, error)
}

// Reader is the read surface the recognition pipeline needs.
type Reader interface {
	Searcher
	TopRated(ctx context.Context, n int) ([]Entry, error)
}

func validRating(r float64) bool {
	return !math.IsNaN(r) && r >= MinRating && r <= MaxRating
}

func cleanAliases(name string, aliases []string) []string {
	if len(aliases) == 0 {
		return nil
	}
	seen := map[string]struct{}{strings.ToLower(strings.TrimSpace(name)): {}}
	out := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		key := strings.ToLower(alias)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, alias)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
