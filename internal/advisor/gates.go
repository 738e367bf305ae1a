package advisor

import (
	"fmt"
)

// SafetyGate mirrors the teacher's PhaseGate pattern (internal/
// orchestrator/gates.go: Name + Check returning a pass/fail verdict),
// generalized from build-verification gates to policy safety gates. All
// gates must pass before a recommendation may be applied under supervised
// or autonomous mode (spec.md §4.6).
type SafetyGate interface {
	Name() string
	Check(window TelemetryWindow, rec Recommendation) (ok bool, reason string)
}

// ReadinessGate requires at least MinRuns successful runs in
// window.RecentRuns (spec.md §4.6: "e.g., 5"). Runs are not filtered by
// schema version: RunSummary carries none.
type ReadinessGate struct {
	MinRuns int
}

func (g ReadinessGate) Name() string { return "readiness" }

func (g ReadinessGate) Check(window TelemetryWindow, _ Recommendation) (bool, string) {
	min := g.MinRuns
	if min <= 0 {
		min = 5
	}
	successes := 0
	for _, run := range window.RecentRuns {
		if run.Success {
			successes++
		}
	}
	if successes < min {
		return false, "readiness"
	}
	return true, ""
}

// StabilityGate requires the rolling failure rate to stay below
// MaxFailureRate (spec.md §4.6: "e.g., 35%").
type StabilityGate struct {
	MaxFailureRate float64
}

func (g StabilityGate) Name() string { return "stability" }

func (g StabilityGate) Check(window TelemetryWindow, _ Recommendation) (bool, string) {
	max := g.MaxFailureRate
	if max <= 0 {
		max = 0.35
	}
	if len(window.RecentRuns) == 0 {
		return false, "stability"
	}
	failures := 0
	for _, run := range window.RecentRuns {
		if !run.Success {
			failures++
		}
	}
	rate := float64(failures) / float64(len(window.RecentRuns))
	if rate >= max {
		return false, "stability"
	}
	return true, ""
}

// DriftBoundGate requires a proposed numeric parameter delta to stay
// within MaxFraction of the baseline (spec.md §4.6: "e.g., +-25%").
type DriftBoundGate struct {
	MaxFraction float64
}

func (g DriftBoundGate) Name() string { return "drift_bound" }

func (g DriftBoundGate) Check(_ TelemetryWindow, rec Recommendation) (bool, string) {
	max := g.MaxFraction
	if max <= 0 {
		max = 0.25
	}
	baseline, ok1 := toFloat(rec.BaselineValue)
	proposed, ok2 := toFloat(rec.ProposedValue)
	if !ok1 || !ok2 || baseline == 0 {
		return true, "" // non-numeric parameters (e.g. engine name) are not bounded by drift
	}
	delta := (proposed - baseline) / baseline
	if delta < 0 {
		delta = -delta
	}
	if delta > max {
		return false, "drift_bound"
	}
	return true, ""
}

// BudgetGate bounds cumulative parameter drift over a window to prevent
// runaway adjustments (spec.md §4.6: "Budget").
type BudgetGate struct {
	MaxCumulativeDrift float64
	spentByParameter   map[string]float64
}

func (g *BudgetGate) Name() string { return "budget" }

func (g *BudgetGate) Check(_ TelemetryWindow, rec Recommendation) (bool, string) {
	if g.spentByParameter == nil {
		g.spentByParameter = map[string]float64{}
	}
	baseline, ok1 := toFloat(rec.BaselineValue)
	proposed, ok2 := toFloat(rec.ProposedValue)
	if !ok1 || !ok2 {
		return true, ""
	}
	key := fmt.Sprintf("%s.%s", rec.Phase, rec.Parameter)
	delta := proposed - baseline
	if delta < 0 {
		delta = -delta
	}
	max := g.MaxCumulativeDrift
	if max <= 0 {
		max = 1.0
	}
	if g.spentByParameter[key]+delta > max {
		return false, "budget"
	}
	g.spentByParameter[key] += delta
	return true, ""
}

// DefaultGates returns the four safety gates from spec.md §4.6 with their
// documented default thresholds.
func DefaultGates() []SafetyGate {
	return []SafetyGate{
		ReadinessGate{MinRuns: 5},
		StabilityGate{MaxFailureRate: 0.35},
		DriftBoundGate{MaxFraction: 0.25},
		&BudgetGate{MaxCumulativeDrift: 1.0},
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
