package retry

import "github.com/bookforge/pipeline/internal/schema"

// DefaultBudget is the per-phase retry budget applied when no override is
// configured (spec.md §4.4: "default small single-digit counts").
const DefaultBudget = 3

// Budgets maps a phase label to its configured maximum retry attempts.
// Unconfigured phases fall back to DefaultBudget.
type Budgets map[schema.PhaseLabel]int

// For returns the configured budget for phase, or DefaultBudget if unset.
func (b Budgets) For(phase schema.PhaseLabel) int {
	if n, ok := b[phase]; ok && n > 0 {
		return n
	}
	return DefaultBudget
}

// Exhausted reports whether attempt has consumed the full budget for phase
// (spec.md P9: "number of attempts in one invocation <= configured budget").
func (b Budgets) Exhausted(phase schema.PhaseLabel, attempt int) bool {
	return attempt >= b.For(phase)
}
