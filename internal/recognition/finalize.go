package recognition

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"winescan/internal/logging"
	"winescan/internal/textutil"
)

var titleCaser = cases.Title(language.Und)

// resolution is a bottle's final name, rating and confidence.
type resolution struct {
	entryID    int64
	name       string
	rating     *float64
	confidence float64
	source     Source
}

func (o *Orchestrator) resolve(w *bottleWork) resolution {
	switch {
	case !w.escalate && w.match.Best != nil && !w.query.Empty():
		best := w.match.Best
		return resolution{
			entryID:    best.Entry.ID,
			name:       best.Entry.Name,
			rating:     ratingOf(best.Entry.Rating),
			confidence: best.Composite,
			source:     SourceCatalog,
		}
	case w.rematch != nil:
		w.step.enter(StateLLMMatched)
		return resolution{
			entryID:    w.rematch.Entry.ID,
			name:       w.rematch.Entry.Name,
			rating:     ratingOf(w.rematch.Entry.Rating),
			confidence: clamp01(w.guess.Confidence * w.rematch.Composite),
			source:     SourceLLM,
		}
	}

	if w.escalate {
		w.step.enter(StateUnmatched)
	}
	// A pre-escalation candidate that cleared the floor still names the
	// bottle and supplies its rating; sub-floor candidates are trace-only.
	if best := w.match.Best; best != nil {
		return resolution{
			entryID:    best.Entry.ID,
			name:       best.Entry.Name,
			rating:     ratingOf(best.Entry.Rating),
			confidence: best.Composite,
			source:     SourceNone,
		}
	}
	if o.policy == PolicyPlaceholder {
		if name := o.placeholderName(w); name != "" {
			return resolution{name: name, source: SourceNone}
		}
	}
	return resolution{source: SourceNone}
}

func (o *Orchestrator) placeholderName(w *bottleWork) string {
	if w.guess != nil {
		if name := strings.TrimSpace(w.guess.Name); name != "" {
			return name
		}
	}
	if w.query.Empty() {
		return ""
	}
	return titleCaser.String(w.query.Text)
}

// finalize partitions bottles: results need a catalog or LLM source and a
// confidence at or above the visibility threshold; everything else with a
// name goes to the fallback list, deduplicated by name and never repeating
// a positioned wine.
func (o *Orchestrator) finalize(work []*bottleWork) Outcome {
	outcome := Outcome{
		Positioned: []Result{},
		Fallback:   []FallbackEntry{},
		Steps:      make([]Step, 0, len(work)),
	}
	positioned := make(map[string]struct{})
	candidates := make([]FallbackEntry, 0, len(work))

	for _, w := range work {
		res := o.resolve(w)
		w.step.enter(StateFinalized)
		w.step.Source = res.source
		w.step.Name = res.name
		w.step.Confidence = res.confidence

		switch {
		case res.name == "":
			w.step.Placement = PlacementDropped
		case res.source != SourceNone && res.confidence >= o.visibilityThreshold:
			w.step.Placement = PlacementPositioned
			outcome.Positioned = append(outcome.Positioned, Result{
				BottleIndex: w.bottle.Index,
				EntryID:     res.entryID,
				Name:        res.name,
				Rating:      res.rating,
				Confidence:  res.confidence,
				BBox:        w.bottle.BBox,
				Source:      res.source,
			})
			positioned[textutil.Fold(res.name)] = struct{}{}
		default:
			w.step.Placement = PlacementFallback
			candidates = append(candidates, FallbackEntry{Name: res.name, Rating: res.rating, Confidence: res.confidence})
		}
		o.metrics.RecordBottle(string(res.source), string(w.step.Placement))
		outcome.Steps = append(outcome.Steps, w.step)
		o.logger.Debug("bottle finalized",
			logging.Args(append(logging.DecisionAttrs("placement", string(w.step.Placement), w.step.FailureReason),
				logging.Int(logging.FieldBottleIndex, w.bottle.Index),
				logging.String("source", string(res.source)),
				logging.Float64("confidence", res.confidence))...)...)
	}

	outcome.Fallback = dedupeFallback(candidates, positioned)
	return outcome
}

// dedupeFallback keeps the most confident entry per name, in order of first
// appearance, skipping names already positioned.
func dedupeFallback(entries []FallbackEntry, positioned map[string]struct{}) []FallbackEntry {
	out := make([]FallbackEntry, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, entry := range entries {
		key := textutil.Fold(entry.Name)
		if _, ok := positioned[key]; ok {
			continue
		}
		if i, ok := index[key]; ok {
			if entry.Confidence > out[i].Confidence {
				out[i] = entry
			}
			continue
		}
		index[key] = len(out)
		out = append(out, entry)
	}
	return out
}

// Degrade answers without per-bottle recognition, listing the catalog's
// top-rated wines. It is used when vision fails or finds no bottles.
func (o *Orchestrator) Degrade(ctx context.Context, reason string) (Outcome, error) {
	outcome := Outcome{
		Positioned:    []Result{},
		Fallback:      []FallbackEntry{},
		Steps:         []Step{},
		Degraded:      true,
		DegradeReason: reason,
	}
	o.metrics.RecordDegrade(metricLabel(reason))
	if o.topRated <= 0 {
		return outcome, nil
	}
	if o.catalog == nil {
		return outcome, nil
	}
	entries, err := o.catalog.TopRated(ctx, o.topRated)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		return Outcome{}, err
	}
	for _, e := range entries {
		outcome.Fallback = append(outcome.Fallback, FallbackEntry{Name: e.Name, Rating: ratingOf(e.Rating)})
	}
	return outcome, nil
}

func metricLabel(reason string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(reason)), " ", "_")
}

func ratingOf(r float64) *float64 {
	return &r
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
