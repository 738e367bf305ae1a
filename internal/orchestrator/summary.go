package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bookforge/pipeline/internal/advisor"
	"github.com/bookforge/pipeline/internal/schema"
)

// RunSummary is the structured terminal report emitted on every run
// (spec.md §4.7 "Run summary"): per-phase durations, chunk statistics,
// applied overrides, advisor recommendations, reward value, artifacts
// produced.
type RunSummary struct {
	FileID          string                             `json:"file_id"`
	Outcome         RunOutcome                         `json:"outcome"`
	StartedAt       time.Time                          `json:"started_at"`
	EndedAt         time.Time                          `json:"ended_at,omitempty"`
	PhaseDurations  map[schema.PhaseLabel]time.Duration `json:"phase_durations"`
	CompletedPhases []schema.PhaseLabel                `json:"completed_phases"`
	FailureCategory schema.FailureCategory             `json:"failure_category,omitempty"`
	FailureMessage  string                             `json:"failure_message,omitempty"`

	// ChunkStats aggregates chunk outcomes across every chunked phase the
	// run touched.
	ChunkStats ChunkStats `json:"chunk_stats"`

	// AppliedOverrides records every OverrideEntry the advisor actually
	// attached to state.Overrides during this run (spec.md §4.6).
	AppliedOverrides []schema.OverrideEntry `json:"applied_overrides,omitempty"`

	// AdvisorRecommendations records every recommendation the advisor
	// surfaced, whether or not a safety gate allowed it to become an
	// override.
	AdvisorRecommendations []advisor.Recommendation `json:"advisor_recommendations,omitempty"`

	// ArtifactsProduced lists every artifact recorded against a phase by
	// the end of the run.
	ArtifactsProduced []schema.ArtifactRef `json:"artifacts_produced,omitempty"`

	Reward *float64 `json:"reward,omitempty"`
}

// ChunkStats summarizes chunk-level outcomes across a run.
type ChunkStats struct {
	Total    int `json:"total"`
	Success  int `json:"success"`
	Failed   int `json:"failed"`
	Repaired int `json:"repaired"`
}

// chunkStatsFromState walks every chunked phase block in state and tallies
// chunk outcomes for the run summary.
func chunkStatsFromState(state *schema.PipelineState) ChunkStats {
	var stats ChunkStats
	if state == nil {
		return stats
	}
	for _, block := range state.Phases {
		if block == nil {
			continue
		}
		for _, chunk := range block.Chunks {
			if chunk == nil {
				continue
			}
			stats.Total++
			switch chunk.Status {
			case schema.ChunkSuccess:
				stats.Success++
			case schema.ChunkFailed:
				stats.Failed++
			case schema.ChunkRepaired:
				stats.Repaired++
			}
		}
	}
	return stats
}

// artifactsFromState collects every artifact recorded against any phase
// block, in phase order.
func artifactsFromState(state *schema.PipelineState) []schema.ArtifactRef {
	if state == nil {
		return nil
	}
	var artifacts []schema.ArtifactRef
	for _, phase := range schema.OrderedPhases() {
		block := state.Phases[phase]
		if block == nil {
			continue
		}
		artifacts = append(artifacts, block.Artifacts...)
	}
	return artifacts
}

// TotalDuration is the wall-clock span of the run.
func (s *RunSummary) TotalDuration() time.Duration {
	if s.EndedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// FormatPhaseDuration renders a phase duration the way a terminal report
// should read: seconds to one decimal place under a minute, "Xm Ys"
// beyond it. Mirrors
// the coarse, reader-facing rounding the teacher's monitor package applies
// to latency and duration figures.
func FormatPhaseDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) - minutes*60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// String renders the structured terminal report from spec.md §4.7: outcome
// and total duration, per-phase durations, the categorized cause on
// failure, chunk statistics, applied overrides, advisor recommendations,
// the artifact count and the reward when set. This is the text a CLI
// entrypoint prints on a terminal outcome;
// the struct itself remains the machine-readable form.
func (s *RunSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "file_id=%s outcome=%s duration=%s\n", s.FileID, s.Outcome, FormatPhaseDuration(s.TotalDuration()))

	phases := make([]schema.PhaseLabel, 0, len(s.PhaseDurations))
	for p := range s.PhaseDurations {
		phases = append(phases, p)
	}
	sort.Slice(phases, func(i, j int) bool { return phases[i] < phases[j] })
	for _, p := range phases {
		fmt.Fprintf(&b, "  %-10s %s\n", p, FormatPhaseDuration(s.PhaseDurations[p]))
	}

	if s.Outcome == OutcomeFailed {
		fmt.Fprintf(&b, "failed: %s: %s\n", s.FailureCategory, s.FailureMessage)
	}

	if s.ChunkStats.Total > 0 {
		fmt.Fprintf(&b, "chunks: total=%d success=%d failed=%d repaired=%d\n",
			s.ChunkStats.Total, s.ChunkStats.Success, s.ChunkStats.Failed, s.ChunkStats.Repaired)
	}

	for _, ov := range s.AppliedOverrides {
		fmt.Fprintf(&b, "override applied: %s.%s=%v (%s)\n", ov.TargetPhase, ov.Parameter, ov.Value, ov.Source)
	}

	for _, rec := range s.AdvisorRecommendations {
		fmt.Fprintf(&b, "advisor: %s.%s -> %v (confidence=%.2f)\n", rec.Phase, rec.Parameter, rec.ProposedValue, rec.Confidence)
	}

	if len(s.ArtifactsProduced) > 0 {
		fmt.Fprintf(&b, "artifacts: %d produced\n", len(s.ArtifactsProduced))
	}

	if s.Reward != nil {
		fmt.Fprintf(&b, "reward=%.3f\n", *s.Reward)
	}
	return b.String()
}
