package advisor

import "github.com/bookforge/pipeline/internal/schema"

// LearningMode controls how far the advisor may act on its own
// recommendations (spec.md §4.6).
type LearningMode = schema.LearningMode

const (
	// ModeObserve writes recommendations to telemetry, never alters overrides.
	ModeObserve = schema.ModeObserve
	// ModeRecommend surfaces recommendations in the run report for human approval.
	ModeRecommend = schema.ModeRecommend
	// ModeSupervised applies recommendations as single-run overrides subject to safety gates.
	ModeSupervised = schema.ModeSupervised
	// ModeAutonomous behaves as supervised but may also persist accepted recommendations.
	ModeAutonomous = schema.ModeAutonomous
)
