// Package advisor implements the Policy Engine (C6): it consumes rolling
// telemetry, emits recommendations, journals decisions, and applies
// bounded overrides subject to learning mode and safety gates (spec.md
// §4.6).
package advisor

import (
	"time"

	"github.com/bookforge/pipeline/internal/schema"
)

// Recommendation is one proposed parameter change for a phase (spec.md
// §4.6: "{parameter, proposed_value, rationale, confidence}").
type Recommendation struct {
	Phase         schema.PhaseLabel
	Parameter     string
	ProposedValue interface{}
	BaselineValue interface{}
	Rationale     string
	Confidence    float64
}

// TelemetryWindow is the read-only rolling view the advisor consumes
// (spec.md §4.6 "Inputs"). It is computed by C8/the orchestrator and
// handed to the advisor as a pure value, per spec.md §9's one-way
// dependency design note (advisor never holds telemetry storage itself).
type TelemetryWindow struct {
	FileID                 string
	SchemaVersion          int
	RecentRuns             []RunSummary
	PerPhaseDurations      map[schema.PhaseLabel][]time.Duration
	PerEngineSuccessRate   map[schema.EngineName]float64
	ChunkFailureCategories map[schema.FailureCategory]int
}

// RunSummary is one historical run's terminal outcome, the unit the
// readiness/stability gates count over.
type RunSummary struct {
	CompletedAt time.Time
	Success     bool
	Reward      float64
}

// Advisor computes recommendations from a telemetry window and decides,
// per learning mode and safety gates, whether to surface them only or
// apply them as overrides.
type Advisor struct {
	Mode    LearningMode
	Gates   []SafetyGate
	Weights RewardWeights
}

// New returns an Advisor in the given learning mode with the default
// safety gate set and reward weights.
func New(mode LearningMode) *Advisor {
	return &Advisor{
		Mode:    mode,
		Gates:   DefaultGates(),
		Weights: DefaultRewardWeights(),
	}
}

// Recommend produces recommendations from window. This is pure: it never
// mutates state or telemetry, matching the teacher's gate-check pattern of
// returning a value for the caller to act on.
func (a *Advisor) Recommend(window TelemetryWindow) []Recommendation {
	var recs []Recommendation

	for phase, durations := range window.PerPhaseDurations {
		if len(durations) < 3 {
			continue
		}
		if rec, ok := chunkSizeRecommendation(phase, durations); ok {
			recs = append(recs, rec)
		}
	}

	if rec, ok := engineRecommendation(window.PerEngineSuccessRate); ok {
		recs = append(recs, rec)
	}

	return recs
}

// Decide applies a recommendation's fate given the advisor's mode and
// safety gates (spec.md §4.6 learning modes table). It returns the applied
// override (nil if none) and, when blocked, the name of the gate that
// blocked it.
func (a *Advisor) Decide(window TelemetryWindow, rec Recommendation) (override *schema.OverrideEntry, blockedBy string) {
	switch a.Mode {
	case ModeObserve:
		return nil, ""
	case ModeRecommend:
		return nil, ""
	case ModeSupervised, ModeAutonomous:
		for _, gate := range a.Gates {
			if ok, reason := gate.Check(window, rec); !ok {
				return nil, reason
			}
		}
		ttl := schema.TTLSingleRun
		if a.Mode == ModeAutonomous {
			ttl = schema.TTLPersistent
		}
		return &schema.OverrideEntry{
			TargetPhase: rec.Phase,
			Parameter:   rec.Parameter,
			Value:       rec.ProposedValue,
			Source:      schema.SourceAdvisor,
			Reason:      rec.Rationale,
			TTL:         ttl,
		}, ""
	default:
		return nil, "unknown_mode"
	}
}

// baselineChunkSize is the default chunk_size parameter (characters) a
// phase's command template is invoked with absent any override.
const baselineChunkSize = 1000.0

// chunkSizeTarget is the per-chunk duration the advisor treats as the
// upper bound of "on target"; averages beyond it trigger a reduction
// recommendation (spec.md §4.6 / S6: "chunk-size delta of -15%").
const chunkSizeTarget = 2 * time.Minute

func chunkSizeRecommendation(phase schema.PhaseLabel, durations []time.Duration) (Recommendation, bool) {
	if len(durations) == 0 {
		return Recommendation{}, false
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	avg := total / time.Duration(len(durations))
	if avg < chunkSizeTarget {
		return Recommendation{}, false
	}
	// Proportional reduction: the more the average overshoots the target,
	// the larger the cut, bounded to -25% so a single recommendation never
	// exceeds the drift-bound gate's default fraction on its own.
	overshoot := float64(avg-chunkSizeTarget) / float64(chunkSizeTarget)
	cut := 0.15 + 0.05*overshoot
	if cut > 0.25 {
		cut = 0.25
	}
	proposed := baselineChunkSize * (1 - cut)
	return Recommendation{
		Phase:         phase,
		Parameter:     "chunk_size",
		BaselineValue: baselineChunkSize,
		ProposedValue: proposed,
		Rationale:     "rolling average phase duration exceeds target window",
		Confidence:    0.6,
	}, true
}

func engineRecommendation(rates map[schema.EngineName]float64) (Recommendation, bool) {
	var best schema.EngineName
	var bestRate float64 = -1
	for engine, rate := range rates {
		if rate > bestRate {
			bestRate = rate
			best = engine
		}
	}
	if bestRate < 0 {
		return Recommendation{}, false
	}
	return Recommendation{
		Phase:         schema.PhaseSynthesis,
		Parameter:     "engine",
		ProposedValue: best,
		Rationale:     "highest rolling success rate among observed engines",
		Confidence:    bestRate,
	}, true
}
