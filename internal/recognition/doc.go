// Package recognition turns one image's detection into wine results.
//
// Each bottle moves through grouped, normalized and catalog-matched states.
// A composite at or above the escalation threshold is accepted from the
// catalog; anything lower escalates to the LLM fallback, whose guess must
// re-match the catalog before it counts. Bottles are matched in parallel,
// then escalations are resolved under a per-request budget. Finalized
// bottles are partitioned into positioned results and a name-only fallback
// list.
//
// A rating is only ever copied from a catalog entry; the pipeline never
// invents one.
package recognition
