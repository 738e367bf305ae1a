package advisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bookforge/pipeline/internal/schema"
)

func runs(successes, failures int) []RunSummary {
	var out []RunSummary
	for i := 0; i < successes; i++ {
		out = append(out, RunSummary{Success: true, CompletedAt: time.Now()})
	}
	for i := 0; i < failures; i++ {
		out = append(out, RunSummary{Success: false, CompletedAt: time.Now()})
	}
	return out
}

func TestReadinessGate_BlocksBelowMinimum(t *testing.T) {
	gate := ReadinessGate{MinRuns: 5}
	window := TelemetryWindow{RecentRuns: runs(2, 0)}

	ok, reason := gate.Check(window, Recommendation{})
	assert.False(t, ok)
	assert.Equal(t, "readiness", reason)
}

func TestReadinessGate_PassesAtMinimum(t *testing.T) {
	gate := ReadinessGate{MinRuns: 5}
	window := TelemetryWindow{RecentRuns: runs(5, 0)}

	ok, _ := gate.Check(window, Recommendation{})
	assert.True(t, ok)
}

func TestStabilityGate_BlocksHighFailureRate(t *testing.T) {
	gate := StabilityGate{MaxFailureRate: 0.35}
	window := TelemetryWindow{RecentRuns: runs(5, 5)}

	ok, reason := gate.Check(window, Recommendation{})
	assert.False(t, ok)
	assert.Equal(t, "stability", reason)
}

func TestStabilityGate_PassesBelowThreshold(t *testing.T) {
	gate := StabilityGate{MaxFailureRate: 0.35}
	window := TelemetryWindow{RecentRuns: runs(9, 1)}

	ok, _ := gate.Check(window, Recommendation{})
	assert.True(t, ok)
}

func TestDriftBoundGate_BlocksExcessiveDelta(t *testing.T) {
	gate := DriftBoundGate{MaxFraction: 0.25}
	rec := Recommendation{BaselineValue: 100.0, ProposedValue: 200.0}

	ok, reason := gate.Check(TelemetryWindow{}, rec)
	assert.False(t, ok)
	assert.Equal(t, "drift_bound", reason)
}

func TestDriftBoundGate_PassesWithinBound(t *testing.T) {
	gate := DriftBoundGate{MaxFraction: 0.25}
	rec := Recommendation{BaselineValue: 100.0, ProposedValue: 110.0}

	ok, _ := gate.Check(TelemetryWindow{}, rec)
	assert.True(t, ok)
}

func TestDriftBoundGate_IgnoresNonNumericParameters(t *testing.T) {
	gate := DriftBoundGate{MaxFraction: 0.25}
	rec := Recommendation{BaselineValue: schema.EngineName("engine-a"), ProposedValue: schema.EngineName("engine-b")}

	ok, _ := gate.Check(TelemetryWindow{}, rec)
	assert.True(t, ok)
}

func TestBudgetGate_BlocksAfterCumulativeDriftExceedsMax(t *testing.T) {
	gate := &BudgetGate{MaxCumulativeDrift: 1.0}
	rec := Recommendation{Phase: schema.PhaseSynthesis, Parameter: "chunk_size", BaselineValue: 10.0, ProposedValue: 10.6}

	ok1, _ := gate.Check(TelemetryWindow{}, rec)
	assert.True(t, ok1)

	ok2, reason := gate.Check(TelemetryWindow{}, rec)
	assert.False(t, ok2)
	assert.Equal(t, "budget", reason)
}

func TestDecide_ObserveModeNeverApplies(t *testing.T) {
	a := New(ModeObserve)
	window := TelemetryWindow{RecentRuns: runs(10, 0)}
	rec := Recommendation{Phase: schema.PhaseSynthesis, Parameter: "chunk_size", BaselineValue: 10.0, ProposedValue: 11.0}

	override, blockedBy := a.Decide(window, rec)
	assert.Nil(t, override)
	assert.Empty(t, blockedBy)
}

func TestDecide_SupervisedModeBlockedByReadinessWithFewRuns(t *testing.T) {
	a := New(ModeSupervised)
	window := TelemetryWindow{RecentRuns: runs(2, 0)}
	rec := Recommendation{Phase: schema.PhaseSynthesis, Parameter: "chunk_size", BaselineValue: 10.0, ProposedValue: 11.0}

	override, blockedBy := a.Decide(window, rec)
	assert.Nil(t, override)
	assert.Equal(t, "readiness", blockedBy)
}

func TestDecide_SupervisedModeAppliesSingleRunOverrideWhenGatesPass(t *testing.T) {
	a := New(ModeSupervised)
	window := TelemetryWindow{RecentRuns: runs(8, 0)}
	rec := Recommendation{Phase: schema.PhaseSynthesis, Parameter: "chunk_size", BaselineValue: 10.0, ProposedValue: 11.0, Rationale: "duration trending high"}

	override, blockedBy := a.Decide(window, rec)
	assert.Empty(t, blockedBy)
	if assert.NotNil(t, override) {
		assert.Equal(t, schema.TTLSingleRun, override.TTL)
		assert.Equal(t, schema.SourceAdvisor, override.Source)
	}
}

func TestDecide_AutonomousModeAppliesPersistentOverride(t *testing.T) {
	a := New(ModeAutonomous)
	window := TelemetryWindow{RecentRuns: runs(8, 0)}
	rec := Recommendation{Phase: schema.PhaseSynthesis, Parameter: "chunk_size", BaselineValue: 10.0, ProposedValue: 11.0}

	override, _ := a.Decide(window, rec)
	if assert.NotNil(t, override) {
		assert.Equal(t, schema.TTLPersistent, override.TTL)
	}
}
