package retry

import (
	"github.com/bookforge/pipeline/internal/schema"
)

// Decision is the skip/resume/retry/fail verdict for one phase invocation
// (spec.md §4.4).
type Decision string

const (
	DecisionSkip  Decision = "skip"
	DecisionResume Decision = "resume"
	DecisionFresh Decision = "fresh"
	DecisionRetry Decision = "retry"
	DecisionFail  Decision = "fail"
)

// CanReuse abstracts the state store's reuse check so this package does not
// depend on internal/statestore directly (spec.md §9: "narrow methods
// rather than being held by advisor" — the same one-way-dependency
// discipline applies here).
type CanReuse func(phase schema.PhaseLabel, inputsHash string) bool

// Engine decides skip/resume/fresh for an initial invocation and
// retry/fail after a failed attempt, enforcing per-phase budgets.
type Engine struct {
	Budgets Budgets
	Backoff BackoffConfig
}

// NewEngine returns an Engine with the given budgets and the default
// backoff configuration.
func NewEngine(budgets Budgets) *Engine {
	return &Engine{Budgets: budgets, Backoff: DefaultBackoffConfig()}
}

// Initial decides whether to skip, resume, or freshly run phase, given the
// current block (nil if the phase has never been attempted), whether a
// forced rerun was requested, and the state store's reuse check.
func (e *Engine) Initial(phase schema.PhaseLabel, block *schema.PhaseBlock, inputsHash string, forced bool, reuse CanReuse) Decision {
	if !forced && reuse(phase, inputsHash) {
		return DecisionSkip
	}
	if block != nil && len(block.Chunks) > 0 {
		hasSuccess := false
		hasIncomplete := false
		for _, c := range block.Chunks {
			if c == nil {
				continue
			}
			switch c.Status {
			case schema.ChunkSuccess, schema.ChunkRepaired:
				hasSuccess = true
			default:
				hasIncomplete = true
			}
		}
		if hasSuccess && hasIncomplete {
			return DecisionResume
		}
	}
	return DecisionFresh
}

// AfterFailure decides whether to retry or fail after an attempt, per the
// category's retriability (spec.md §7) and the phase's remaining budget
// (P9). Retrying increments attempt in the caller's patch; AfterFailure
// itself is a pure decision function with no side effects.
func (e *Engine) AfterFailure(phase schema.PhaseLabel, category schema.FailureCategory, attempt int) Decision {
	if !category.Retriable() {
		return DecisionFail
	}
	if e.Budgets.Exhausted(phase, attempt) {
		return DecisionFail
	}
	return DecisionRetry
}
