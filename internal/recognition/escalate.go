package recognition

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"winescan/internal/fallback"
	"winescan/internal/logging"
	"winescan/internal/services"
	"winescan/internal/textutil"
)

// finalizeReserve is the share of the request deadline kept back from the LLM
// phase for rematching and assembling the response.
const finalizeReserve = 250 * time.Millisecond

// escalate resolves every bottle that needs the LLM tier. Cached guesses are
// used first and do not count against the budget; the remaining bottles are
// granted calls by descending composite, then bottle index, so the same
// request always spends its budget the same way.
func (o *Orchestrator) escalate(ctx context.Context, work []*bottleWork) error {
	var pending []*bottleWork
	for _, w := range work {
		if !w.escalate {
			continue
		}
		w.step.LLM = &LLMRecord{}
		if o.fallback == nil && o.cache == nil {
			w.step.FailureReason = ReasonLLMDisabled
			o.metrics.RecordEscalation("disabled")
			continue
		}
		hit, err := o.fromCache(ctx, w)
		if err != nil {
			return err
		}
		if !hit {
			pending = append(pending, w)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	if o.fallback == nil {
		for _, w := range pending {
			w.step.FailureReason = ReasonLLMDisabled
			o.metrics.RecordEscalation("disabled")
		}
		return nil
	}

	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i].topComposite(), pending[j].topComposite()
		if a != b {
			return a > b
		}
		return pending[i].bottle.Index < pending[j].bottle.Index
	})

	granted := pending
	if len(granted) > o.maxEscalations {
		granted = pending[:o.maxEscalations]
		for _, w := range pending[o.maxEscalations:] {
			w.step.FailureReason = ReasonBudgetExhausted
			w.step.LLM.Error = ReasonBudgetExhausted
			o.metrics.RecordEscalation("budget_exhausted")
		}
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "llm escalation budget exhausted", "llm_budget_exhausted",
			logging.Int("requested", len(pending)),
			logging.Int("granted", o.maxEscalations),
			logging.String(logging.FieldErrorHint, "raise llm.max_escalations if latency allows"),
			logging.String(logging.FieldImpact, "lowest scoring bottles were left unmatched"))
	}
	if len(granted) == 0 {
		return nil
	}

	phaseCtx, cancel := o.escalationContext(ctx)
	defer cancel()
	sem := semaphore.NewWeighted(int64(o.maxConcurrent))
	g, gctx := errgroup.WithContext(phaseCtx)
	for _, w := range granted {
		w := w
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return o.llmNotRun(ctx, gctx, w)
			}
			defer sem.Release(1)
			return o.callLLM(ctx, gctx, w)
		})
	}
	return g.Wait()
}

// escalationContext ends the LLM phase early enough that rematching and
// finalizing still fit inside the request deadline. Without a deadline only
// the per-call timeout applies.
func (o *Orchestrator) escalationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	reserve := finalizeReserve
	if remaining := time.Until(deadline); remaining/4 < reserve {
		reserve = remaining / 4
	}
	return context.WithDeadline(ctx, deadline.Add(-reserve))
}

// llmNotRun records a granted escalation that never got a concurrency slot.
func (o *Orchestrator) llmNotRun(ctx, phaseCtx context.Context, w *bottleWork) error {
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(phaseCtx.Err(), context.DeadlineExceeded) {
		w.step.FailureReason = ReasonDeadline
		w.step.LLM.Error = ReasonDeadline
		o.metrics.RecordEscalation("deadline")
	}
	return nil
}

// fromCache applies a cached guess. Cache read failures count as misses.
func (o *Orchestrator) fromCache(ctx context.Context, w *bottleWork) (bool, error) {
	if o.cache == nil {
		return false, nil
	}
	guess, ok, err := o.cache.Get(ctx, fallback.Key(w.query.Text))
	if err != nil {
		logging.WarnWithContext(logging.WithContext(services.WithBottleIndex(ctx, w.bottle.Index), o.logger),
			"llm cache read failed", "llm_cache_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the llm cache backend"),
			logging.String(logging.FieldImpact, "guess will be requested from the llm again"))
		return false, nil
	}
	if !ok {
		return false, nil
	}
	w.step.LLM.CacheHit = true
	w.guess = &guess
	w.step.LLM.Guess = &guess
	o.metrics.RecordEscalation("cache_hit")
	return true, o.rematch(ctx, w)
}

// callLLM performs one granted escalation under phaseCtx. Provider failures
// and the phase deadline stay on the bottle; only catalog failures and caller
// cancellation of ctx are returned.
func (o *Orchestrator) callLLM(ctx, phaseCtx context.Context, w *bottleWork) error {
	ctx = services.WithBottleIndex(ctx, w.bottle.Index)
	logger := logging.WithContext(ctx, o.logger)

	callCtx, cancel := context.WithTimeout(phaseCtx, o.llmTimeout)
	start := time.Now()
	guess, err := o.fallback.Normalize(callCtx, w.blob.Text, w.query.Text)
	cancel()
	w.step.LLM.Attempted = true
	w.step.LLM.DurationMS = elapsedMS(start)
	o.metrics.ObserveLLM(time.Since(start))

	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return ctxErr
		}
		w.step.LLM.Error = err.Error()
		w.step.FailureReason = "llm failed"
		if errors.Is(err, services.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			w.step.FailureReason = "llm timed out"
		}
		if errors.Is(phaseCtx.Err(), context.DeadlineExceeded) {
			w.step.FailureReason = ReasonDeadline
		} else if phaseCtx.Err() != nil {
			// a sibling failed; its error is what the phase returns
			return nil
		}
		o.metrics.RecordEscalation("failed")
		logging.WarnWithContext(logger, "llm fallback failed", "llm_fallback_failed",
			logging.Error(err),
			logging.String("normalized", w.query.Text),
			logging.String(logging.FieldErrorHint, "check llm provider credentials and latency"),
			logging.String(logging.FieldImpact, "bottle keeps its catalog-only outcome"))
		return nil
	}

	w.guess = &guess
	w.step.LLM.Guess = &guess
	if ctx.Err() == nil && o.cache != nil {
		if err := o.cache.Put(ctx, fallback.Key(w.query.Text), guess); err != nil {
			logger.Debug("llm cache write failed", logging.Error(err))
		}
	}
	if err := o.rematch(ctx, w); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			w.step.FailureReason = ReasonDeadline
			return nil
		}
		return err
	}
	return nil
}

// rematch submits the guess back to the catalog.
func (o *Orchestrator) rematch(ctx context.Context, w *bottleWork) error {
	if w.guess == nil {
		return nil
	}
	res, err := o.matcher.Match(ctx, w.guess.Name)
	if err != nil {
		return err
	}
	matched := res.Best != nil
	logging.WithContext(ctx, o.logger).Debug("llm guess rematched",
		logging.Args(append(logging.DecisionAttrs("rematch",
			textutil.Ternary(matched, "matched", "unmatched"),
			textutil.Ternary(matched, "guess cleared catalog floor", "guess below catalog floor")),
			logging.String("guess", w.guess.Name))...)...)
	if !matched {
		w.step.FailureReason = ReasonNoRematch
		o.metrics.RecordEscalation("no_rematch")
		return nil
	}
	best := *res.Best
	w.rematch = &best
	score := candidateScore(best)
	w.step.LLM.Rematch = &score
	w.step.FailureReason = ""
	o.metrics.RecordEscalation("matched")
	return nil
}
