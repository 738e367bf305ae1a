package orchestrator

import (
	"context"
	"time"

	"github.com/bookforge/pipeline/internal/schema"
)

// RunConfig configures one orchestrator invocation against a single book,
// mirroring the CLI surface in spec.md §6.4.
type RunConfig struct {
	// InputPath is the source file to process.
	InputPath string

	// PipelineJSONPath is the target state document path. pipelinectl
	// sets it, defaulting to pipeline.json beside InputPath.
	PipelineJSONPath string

	// Phases restricts execution to a subset, in dependency order. Empty
	// means all phases.
	Phases []schema.PhaseLabel

	// Resume forces resume behavior when non-nil; nil defers to the
	// retry engine's decision.
	Resume *bool

	// VoiceOverride and EngineOverride apply a user-supplied parameter
	// override ahead of any the advisor would propose.
	VoiceOverride string
	EngineOverride schema.EngineName

	// MaxRetriesOverride replaces the default per-phase retry budget
	// when non-zero.
	MaxRetriesOverride int

	// LearningMode controls how far the advisor may act on its own
	// recommendations.
	LearningMode schema.LearningMode

	// RepairOnFailure opts into scheduling the chunk repair loop on
	// chunk-level failures.
	RepairOnFailure bool
}

// DefaultRunConfig returns a RunConfig with the spec's documented
// defaults: all phases, auto resume, observe-only learning.
func DefaultRunConfig(inputPath string) RunConfig {
	return RunConfig{
		InputPath:    inputPath,
		LearningMode: schema.ModeObserve,
	}
}

// PhaseCommandSpec names the external command a phase is invoked as
// (spec.md §6.2).
type PhaseCommandSpec struct {
	Command string
	Args    []string
}

// RunOutcome is the terminal disposition of one orchestrator invocation.
type RunOutcome string

const (
	OutcomeSuccess   RunOutcome = "success"
	OutcomeFailed    RunOutcome = "failed"
	OutcomeCancelled RunOutcome = "cancelled"
)

// PreflightViolation is a problem detected before any phase runs.
type PreflightViolation struct {
	Check       string    `json:"check"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	DetectedAt  time.Time `json:"detected_at"`
}

// Severity indicates how serious a preflight violation is.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// PreflightCheck validates one precondition (disk space, CPU headroom,
// model cache presence) before the lifecycle begins.
type PreflightCheck interface {
	Name() string
	Check(ctx context.Context, cfg RunConfig) (*PreflightViolation, error)
}

// Hook runs after a phase completes. Hooks never block pipeline
// progress: a hook error is discarded without being logged, and its
// outputs (if any) are additive to the run, never required by it.
type Hook interface {
	Name() string
	Run(ctx context.Context, fileID string, phase schema.PhaseLabel, state *schema.PipelineState) error
}

// hasCriticalViolation reports whether any preflight violation should
// abort the run outright.
func hasCriticalViolation(violations []PreflightViolation) bool {
	for _, v := range violations {
		if v.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
