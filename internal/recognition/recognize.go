package recognition

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"winescan/internal/fallback"
	"winescan/internal/grouping"
	"winescan/internal/logging"
	"winescan/internal/matcher"
	"winescan/internal/normalize"
	"winescan/internal/services"
	"winescan/internal/vision"
)

// bottleWork is the mutable state of one bottle during a request. Each
// goroutine only touches its own bottleWork.
type bottleWork struct {
	bottle vision.Bottle
	blob   grouping.Blob
	query  normalize.Query
	match  matcher.Result
	step   Step

	escalate bool
	guess    *fallback.Guess
	rematch  *matcher.Candidate
}

func (w *bottleWork) topComposite() float64 {
	if w.match.Top == nil {
		return 0
	}
	return w.match.Top.Composite
}

// Recognize runs the full pipeline for one image. It fails only when the
// catalog is unavailable or ctx ends; everything else degrades per bottle.
func (o *Orchestrator) Recognize(ctx context.Context, in Input) (Outcome, error) {
	if in.ImageID != "" {
		ctx = services.WithImageID(ctx, in.ImageID)
	}
	logger := logging.WithContext(ctx, o.logger)

	det := in.Detection.Sanitize()
	if len(det.Bottles) == 0 {
		logger.Info("no bottles detected, degrading to top rated list",
			logging.Args(logging.DecisionAttrs("degrade", "top_rated", "no bottles")...)...)
		return o.Degrade(ctx, "no bottles detected")
	}

	opts := o.grouping
	opts.ImageWidth, opts.ImageHeight = det.ImageWidth, det.ImageHeight
	grouped := grouping.Group(det.Fragments, det.Bottles, opts)

	work := make([]*bottleWork, len(det.Bottles))
	for i, bottle := range det.Bottles {
		work[i] = &bottleWork{
			bottle: bottle,
			blob:   grouped.Blobs[i],
			step: Step{
				BottleIndex: bottle.Index,
				BBox:        bottle.BBox,
				RawText:     grouped.Blobs[i].Text,
				Removals:    []normalize.Removal{},
				Candidates:  []CandidateScore{},
				States:      []State{StateGrouped},
			},
		}
	}
	if len(grouped.Dropped) > 0 {
		logger.Debug("fragments outside every bottle dropped", logging.Int("dropped", len(grouped.Dropped)))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxParallel)
	for _, w := range work {
		w := w
		g.Go(func() error {
			return o.matchBottle(gctx, w)
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		return Outcome{}, err
	}

	// Past this point only caller cancellation is fatal. A request deadline
	// that fires during escalation costs the bottles still waiting on the
	// LLM, not the matches already made.
	if err := o.escalate(ctx, work); err != nil {
		ctxErr := ctx.Err()
		if ctxErr == nil {
			return Outcome{}, err
		}
		if errors.Is(ctxErr, context.Canceled) {
			return Outcome{}, ctxErr
		}
	}
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return Outcome{}, err
	} else if err != nil {
		expired := markDeadline(work)
		logging.WarnWithContext(logger, "request deadline reached during llm escalation", "request_deadline_reached",
			logging.Int("bottles_cut_short", expired),
			logging.String(logging.FieldErrorHint, "raise server.request_timeout_seconds or lower llm.max_escalations"),
			logging.String(logging.FieldImpact, "bottles still waiting on the llm were left unmatched"))
	}

	outcome := o.finalize(work)
	logger.Info("image recognized",
		logging.Int("bottles", len(work)),
		logging.Int("positioned", len(outcome.Positioned)),
		logging.Int("fallback", len(outcome.Fallback)))
	return outcome, nil
}

// markDeadline records the deadline on escalated bottles that never reached a
// verdict and returns how many there were.
func markDeadline(work []*bottleWork) int {
	n := 0
	for _, w := range work {
		if !w.escalate || w.rematch != nil || w.step.FailureReason != "" {
			continue
		}
		if w.step.LLM == nil {
			w.step.LLM = &LLMRecord{}
		}
		w.step.FailureReason = ReasonDeadline
		n++
	}
	return n
}

// matchBottle normalizes and catalog-matches one bottle, then decides
// whether it is accepted or needs escalation.
func (o *Orchestrator) matchBottle(ctx context.Context, w *bottleWork) error {
	ctx = services.WithBottleIndex(ctx, w.bottle.Index)
	logger := logging.WithContext(ctx, o.logger)

	w.query = o.normalizer.Normalize(w.blob.Text)
	w.step.NormalizedText = w.query.Text
	if len(w.query.Removed) > 0 {
		w.step.Removals = w.query.Removed
	}
	w.step.enter(StateNormalized)

	match, err := o.matcher.Match(ctx, w.query.Text)
	if err != nil {
		return fmt.Errorf("bottle %d: %w", w.bottle.Index, err)
	}
	w.match = match
	w.step.enter(StateCatalogMatched)
	for _, c := range match.Scored {
		w.step.Candidates = append(w.step.Candidates, candidateScore(c))
	}
	w.step.Composite = w.topComposite()

	switch {
	case w.query.Empty():
		w.step.enter(StateUnmatched)
		w.step.FailureReason = ReasonNoText
		logger.Debug("bottle has no text", logging.Args(logging.DecisionAttrs("escalation", "skip", ReasonNoText)...)...)
	case match.Best != nil && match.Best.Composite >= o.escalationThreshold:
		w.step.enter(StateAccepted)
		logger.Debug("catalog match accepted",
			logging.Args(append(logging.DecisionAttrs("escalation", "accept", "composite at or above threshold"),
				logging.String("wine", match.Best.Entry.Name),
				logging.Float64("composite", match.Best.Composite))...)...)
	default:
		w.escalate = true
		w.step.enter(StateEscalated)
		logger.Debug("catalog match below escalation threshold",
			logging.Args(append(logging.DecisionAttrs("escalation", "escalate", "composite below threshold"),
				logging.Float64("composite", w.topComposite()),
				logging.Float64("threshold", o.escalationThreshold))...)...)
	}
	return nil
}
