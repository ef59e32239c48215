package matcher

import (
	"context"
	"math"
	"sort"
	"strings"

	"winescan/internal/catalog"
	"winescan/internal/config"
	"winescan/internal/services"
	"winescan/internal/textutil"
)

// DefaultHardFloor is the composite below which no candidate is reported.
const DefaultHardFloor = 0.5

// Weights combine the similarity signals into a composite score.
type Weights struct {
	Ratio     float64
	Partial   float64
	TokenSort float64
	Phonetic  float64
}

// DefaultWeights returns the 45/30/25 split with a 0.05 phonetic bonus.
func DefaultWeights() Weights {
	return Weights{Ratio: 0.45, Partial: 0.30, TokenSort: 0.25, Phonetic: 0.05}
}

// Scores are the individual similarity signals for one candidate form.
type Scores struct {
	Ratio     float64 `json:"ratio"`
	Partial   float64 `json:"partial"`
	TokenSort float64 `json:"token_sort"`
	Phonetic  float64 `json:"phonetic"`
}

// Composite returns the weighted text similarity plus the phonetic bonus,
// clamped to [0,1]. It never decreases when any single score increases.
func Composite(s Scores, w Weights) float64 {
	total := w.Ratio + w.Partial + w.TokenSort
	if total <= 0 {
		return 0
	}
	text := (w.Ratio*s.Ratio + w.Partial*s.Partial + w.TokenSort*s.TokenSort) / total
	return clamp01(text + w.Phonetic*s.Phonetic)
}

// Candidate is a scored catalog entry.
type Candidate struct {
	Entry     catalog.Entry
	Form      string
	Scores    Scores
	Composite float64
}

// Result describes one match attempt. Best is nil when nothing clears the
// floor; Top and Scored are kept for diagnostics either way.
type Result struct {
	Query  string
	Best   *Candidate
	Top    *Candidate
	Scored []Candidate
}

// Matcher scores search results from a catalog.
type Matcher struct {
	searcher catalog.Searcher
	weights  Weights
	limit    int
	floor    float64
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithWeights overrides the composite weights.
func WithWeights(w Weights) Option {
	return func(m *Matcher) {
		m.weights = w
	}
}

// WithCandidateLimit bounds how many candidates are retrieved per query.
func WithCandidateLimit(limit int) Option {
	return func(m *Matcher) {
		if limit > 0 {
			m.limit = limit
		}
	}
}

// WithHardFloor sets the minimum composite for a reportable match.
func WithHardFloor(floor float64) Option {
	return func(m *Matcher) {
		m.floor = clamp01(floor)
	}
}

// New constructs a Matcher over the provided catalog searcher.
func New(searcher catalog.Searcher, opts ...Option) *Matcher {
	m := &Matcher{
		searcher: searcher,
		weights:  DefaultWeights(),
		limit:    catalog.DefaultSearchLimit,
		floor:    DefaultHardFloor,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// FromConfig builds a Matcher with the configured limit, floor, and weights.
func FromConfig(cfg *config.Config, searcher catalog.Searcher) *Matcher {
	if cfg == nil {
		return New(searcher)
	}
	return New(searcher,
		WithCandidateLimit(cfg.Matching.CandidateLimit),
		WithHardFloor(cfg.Matching.HardFloor),
		WithWeights(Weights{
			Ratio:     cfg.Matching.WeightRatio,
			Partial:   cfg.Matching.WeightPartial,
			TokenSort: cfg.Matching.WeightTokenSort,
			Phonetic:  cfg.Matching.WeightPhonetic,
		}),
	)
}

// Floor reports the configured hard floor.
func (m *Matcher) Floor() float64 {
	return m.floor
}

// Match scores candidates for a normalized query. An empty query yields an
// empty Result without consulting the catalog.
func (m *Matcher) Match(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	result := Result{Query: query}
	if query == "" {
		return result, nil
	}
	if m.searcher == nil {
		return result, services.Wrap(services.ErrCatalogUnavailable, "matcher", "match", "no catalog configured", nil)
	}

	entries, err := m.searcher.Search(ctx, query, m.limit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, services.Wrap(services.ErrCatalogUnavailable, "matcher", "search", query, err)
	}
	if len(entries) == 0 {
		return result, nil
	}

	folded := textutil.Fold(query)
	scored := make([]Candidate, 0, len(entries))
	for _, entry := range entries {
		scored = append(scored, m.score(folded, entry))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return ranksBefore(scored[i], scored[j])
	})

	result.Scored = scored
	top := scored[0]
	result.Top = &top
	if top.Composite >= m.floor {
		best := top
		result.Best = &best
	}
	return result, nil
}

// score keeps the best-scoring surface form; on equal scores the canonical
// name wins because it is tried first.
func (m *Matcher) score(query string, entry catalog.Entry) Candidate {
	best := Candidate{Entry: entry, Form: entry.Name, Composite: -1}
	for _, form := range entry.Forms() {
		key := textutil.Fold(form)
		if key == "" {
			continue
		}
		scores := Scores{
			Ratio:     textutil.Ratio(query, key),
			Partial:   textutil.PartialRatio(query, key),
			TokenSort: textutil.TokenSortRatio(query, key),
			Phonetic:  textutil.PhoneticOverlap(query, key),
		}
		if composite := Composite(scores, m.weights); composite > best.Composite {
			best.Form = form
			best.Scores = scores
			best.Composite = composite
		}
	}
	if best.Composite < 0 {
		best.Composite = 0
	}
	return best
}

// ranksBefore orders by composite, then higher rating, shorter canonical
// name, name and id, so equal inputs always produce the same ranking.
func ranksBefore(a, b Candidate) bool {
	if a.Composite != b.Composite {
		return a.Composite > b.Composite
	}
	if a.Entry.Rating != b.Entry.Rating {
		return a.Entry.Rating > b.Entry.Rating
	}
	la, lb := len([]rune(a.Entry.Name)), len([]rune(b.Entry.Name))
	if la != lb {
		return la < lb
	}
	if a.Entry.Name != b.Entry.Name {
		return a.Entry.Name < b.Entry.Name
	}
	return a.Entry.ID < b.Entry.ID
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
