package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bookforge/pipeline/internal/advisor"
	"github.com/bookforge/pipeline/internal/phaserunner"
	"github.com/bookforge/pipeline/internal/repair"
	"github.com/bookforge/pipeline/internal/retry"
	"github.com/bookforge/pipeline/internal/schema"
	"github.com/bookforge/pipeline/internal/statestore"
	"github.com/bookforge/pipeline/internal/telemetrylog"
)

// ProgressCallback receives a human-readable progress line as the
// orchestrator moves through phases.
type ProgressCallback func(phase schema.PhaseLabel, status schema.PhaseStatus, message string)

// Orchestrator drives one book through its full lifecycle, coordinating
// the state store (C1), phase runner (C3), retry engine (C4), repair loop
// (C5), advisor (C6), and telemetry log (C8). It owns the run context;
// none of those components hold a reference back to it (spec.md §9).
type Orchestrator struct {
	Store       *statestore.Store
	Runner      *phaserunner.Runner
	RetryEngine *retry.Engine
	Advisor     *advisor.Advisor
	RepairLoop  *repair.Loop // nil disables repair scheduling
	Telemetry   *telemetrylog.Sink
	Journal     *advisor.Journal
	Commands    map[schema.PhaseLabel]PhaseCommandSpec
	Preflight   []PreflightCheck
	Hooks       []Hook

	progress ProgressCallback
	rng      *rand.Rand

	cancelRequested atomic.Bool
	mu              sync.Mutex
	cancelFn        context.CancelFunc
}

// New returns an Orchestrator wired with the given collaborators.
func New(store *statestore.Store, runner *phaserunner.Runner, retryEngine *retry.Engine, adv *advisor.Advisor, commands map[schema.PhaseLabel]PhaseCommandSpec) *Orchestrator {
	return &Orchestrator{
		Store:       store,
		Runner:      runner,
		RetryEngine: retryEngine,
		Advisor:     adv,
		Commands:    commands,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// OnProgress installs a progress callback.
func (o *Orchestrator) OnProgress(cb ProgressCallback) { o.progress = cb }

func (o *Orchestrator) report(phase schema.PhaseLabel, status schema.PhaseStatus, message string) {
	if o.progress != nil {
		o.progress(phase, status, message)
	}
}

// Cancel requests graceful termination of the in-flight phase, if any, and
// marks the run for cancellation at the next phase boundary.
func (o *Orchestrator) Cancel() {
	o.cancelRequested.Store(true)
	o.mu.Lock()
	cancel := o.cancelFn
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run drives fileID through every phase in cfg.Phases (or all phases when
// empty), returning a terminal RunSummary.
func (o *Orchestrator) Run(ctx context.Context, fileID string, cfg RunConfig) (*RunSummary, error) {
	if violations, err := runPreflight(ctx, o.Preflight, cfg); err != nil {
		return nil, fmt.Errorf("preflight: %w", err)
	} else if hasCriticalViolation(violations) {
		return nil, fmt.Errorf("preflight blocked: %s", violations[0].Description)
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancelFn = cancel
	o.mu.Unlock()
	defer cancel()

	phases := cfg.Phases
	if len(phases) == 0 {
		phases = schema.OrderedPhases()
	}

	start := time.Now()
	summary := &RunSummary{FileID: fileID, StartedAt: start, PhaseDurations: map[schema.PhaseLabel]time.Duration{}}

	o.emit(fileID, schema.TelemetryRecord{Event: schema.EventStart})

	for _, phase := range phases {
		if o.cancelRequested.Load() {
			o.handleCancellation(runCtx, fileID, phase)
			summary.Outcome = OutcomeCancelled
			if state, err := o.Store.Read(); err == nil {
				summary.ChunkStats = chunkStatsFromState(state)
				summary.ArtifactsProduced = artifactsFromState(state)
			}
			return summary, nil
		}

		phaseStart := time.Now()
		outcome, err := o.runPhaseWithRetry(runCtx, fileID, phase, cfg, summary)
		summary.PhaseDurations[phase] = time.Since(phaseStart)

		if o.cancelRequested.Load() && (err != nil || !outcome.Success) {
			// runCtx is already cancelled; persist through the parent ctx.
			o.handleCancellation(ctx, fileID, phase)
			summary.Outcome = OutcomeCancelled
			if state, rerr := o.Store.Read(); rerr == nil {
				summary.ChunkStats = chunkStatsFromState(state)
				summary.ArtifactsProduced = artifactsFromState(state)
			}
			return summary, nil
		}

		if err != nil {
			summary.Outcome = OutcomeFailed
			o.finalizeRun(runCtx, fileID, phase, summary)
			return summary, err
		}
		if !outcome.Success {
			summary.Outcome = OutcomeFailed
			summary.FailureCategory = outcome.Category
			summary.FailureMessage = outcome.Message
			o.emit(fileID, schema.TelemetryRecord{Phase: phase, Event: schema.EventFailure, Message: outcome.Message})
			o.persistTerminalFailure(runCtx, fileID, phase, outcome)
			o.finalizeRun(runCtx, fileID, phase, summary)
			return summary, nil
		}

		o.runHooks(runCtx, fileID, phase)
		summary.CompletedPhases = append(summary.CompletedPhases, phase)
	}

	summary.Outcome = OutcomeSuccess
	summary.EndedAt = time.Now()
	o.emit(fileID, schema.TelemetryRecord{Event: schema.EventEnd, DurationMS: time.Since(start).Milliseconds()})
	if len(phases) > 0 {
		o.finalizeRun(runCtx, fileID, phases[len(phases)-1], summary)
	}
	return summary, nil
}

// finalizeRun clears single-run overrides, attaches chunk/artifact
// statistics from final state, and computes the run's reward scalar. It is
// the one place invariant 5/P5 ("transient overrides do not leak") is
// enforced on the normal (non-cancelled) termination paths; handleCancellation
// enforces the same invariant on the cancellation path.
func (o *Orchestrator) finalizeRun(ctx context.Context, fileID string, phase schema.PhaseLabel, summary *RunSummary) {
	state, err := o.clearSingleRunOverrides(ctx, phase)
	if err != nil || state == nil {
		return
	}

	summary.ChunkStats = chunkStatsFromState(state)
	summary.ArtifactsProduced = artifactsFromState(state)

	if o.Advisor == nil {
		return
	}
	metrics := advisor.RunMetrics{
		Success:           summary.Outcome == OutcomeSuccess,
		DurationRatio:     durationRatio(summary),
		ChunkFailureRate:  chunkFailureRate(summary.ChunkStats),
		RepairSuccessRate: repairSuccessRate(summary.ChunkStats),
	}
	reward := advisor.Reward(advisor.DefaultRewardWeights(), metrics)
	summary.Reward = &reward
}

// nominalPhaseDuration is the expected wall-clock cost of one phase used to
// normalize DurationRatio for the reward calculation; it is a coarse
// baseline, not a retry/drift bound (those live in the advisor's gates).
const nominalPhaseDuration = 3 * time.Minute

func durationRatio(summary *RunSummary) float64 {
	completed := len(summary.CompletedPhases)
	if completed == 0 {
		return 1.0
	}
	baseline := nominalPhaseDuration * time.Duration(completed)
	return summary.TotalDuration().Seconds() / baseline.Seconds()
}

func chunkFailureRate(stats ChunkStats) float64 {
	if stats.Total == 0 {
		return 0
	}
	return float64(stats.Failed) / float64(stats.Total)
}

func repairSuccessRate(stats ChunkStats) float64 {
	attempted := stats.Repaired + stats.Failed
	if attempted == 0 {
		return 0
	}
	return float64(stats.Repaired) / float64(attempted)
}

// clearSingleRunOverrides drops every state.Overrides entry whose TTL is
// single_run, satisfying spec.md §4.6's "clear at run end" lifecycle step
// for learning modes that never persist overrides past the run that
// created them.
func (o *Orchestrator) clearSingleRunOverrides(ctx context.Context, phase schema.PhaseLabel) (*schema.PipelineState, error) {
	return o.Store.Apply(ctx, phase, "clear_single_run_overrides", func(state *schema.PipelineState) error {
		retained := state.Overrides[:0]
		for _, ov := range state.Overrides {
			if ov.TTL != schema.TTLSingleRun {
				retained = append(retained, ov)
			}
		}
		state.Overrides = retained
		return nil
	})
}

// runPhaseWithRetry executes phase to completion: an initial skip/resume/
// fresh decision, then as many retry attempts as the budget allows.
func (o *Orchestrator) runPhaseWithRetry(ctx context.Context, fileID string, phase schema.PhaseLabel, cfg RunConfig, summary *RunSummary) (phaserunner.Outcome, error) {
	state, err := o.Store.Read()
	if err != nil {
		return phaserunner.Outcome{}, fmt.Errorf("read state: %w", err)
	}

	block := state.Phases[phase]
	inputsHash := inputsHashFor(state, phase)
	forced := cfg.Resume != nil && !*cfg.Resume

	decision := o.RetryEngine.Initial(phase, block, inputsHash, forced, func(p schema.PhaseLabel, hash string) bool {
		return o.Store.CanReuse(state, p, hash)
	})

	if decision == retry.DecisionSkip {
		o.report(phase, schema.StatusSkipped, "reusing prior successful output")
		return phaserunner.Outcome{Success: true}, nil
	}

	resume := decision == retry.DecisionResume
	if cfg.Resume != nil {
		resume = *cfg.Resume
	}

	rec, override := o.consultAdvisor(ctx, fileID, phase, cfg)
	if rec != nil {
		summary.AdvisorRecommendations = append(summary.AdvisorRecommendations, *rec)
	}
	if override != nil {
		summary.AppliedOverrides = append(summary.AppliedOverrides, *override)
	}

	attempt := 1
	if block != nil {
		attempt = block.Attempt + 1
	}

	for {
		o.report(phase, schema.StatusRunning, fmt.Sprintf("attempt %d", attempt))

		inv := o.buildInvocation(fileID, state, phase, cfg, resume, override, attempt)
		result, err := o.Runner.Run(ctx, inv, nil)
		if err != nil {
			return phaserunner.Outcome{}, fmt.Errorf("run phase %s: %w", phase, err)
		}

		state, err = o.Store.Read()
		if err != nil {
			return phaserunner.Outcome{}, fmt.Errorf("re-read state after phase %s: %w", phase, err)
		}
		block = state.Phases[phase]

		expectedChunks := 0
		if block != nil {
			expectedChunks = len(block.Chunks)
		}
		outcome := phaserunner.Classify(result.ExitCode, phase, block, expectedChunks)
		if result.StructuredResult == nil && !outcome.Success {
			phaserunner.LogDegraded(ctx, string(outcome.Category))
		}

		o.commitPhaseOutcome(ctx, fileID, phase, attempt, outcome)

		if outcome.Success {
			if rec != nil && o.Journal != nil {
				_ = o.Journal.RecordDecision(fileID, o.Advisor.Mode, *rec, override, "")
			}
			return outcome, nil
		}

		engine := *o.RetryEngine
		if cfg.MaxRetriesOverride > 0 {
			engine.Budgets = retry.Budgets{phase: cfg.MaxRetriesOverride}
		}
		next := engine.AfterFailure(phase, outcome.Category, attempt)
		o.emit(fileID, schema.TelemetryRecord{Phase: phase, Event: schema.EventRetry, Message: string(next)})

		switch next {
		case retry.DecisionRetry:
			if err := o.RetryEngine.Backoff.Sleep(ctx, attempt, o.rng); err != nil {
				return outcome, nil
			}
			attempt++
			resume = true
			continue
		default:
			if cfg.RepairOnFailure && outcome.Category == schema.CategoryChunkFailure && o.RepairLoop != nil {
				o.scheduleRepair(ctx, fileID, phase, block)
			}
			return outcome, nil
		}
	}
}

func (o *Orchestrator) buildInvocation(fileID string, state *schema.PipelineState, phase schema.PhaseLabel, cfg RunConfig, resume bool, override *schema.OverrideEntry, attempt int) phaserunner.Invocation {
	spec := o.Commands[phase]

	inv := phaserunner.Invocation{
		Phase:      phase,
		FileID:     fileID,
		StatePath:  o.Store.Path(),
		Command:    spec.Command,
		Args:       spec.Args,
		Resume:     resume,
		Voice:      cfg.VoiceOverride,
		Engine:     cfg.EngineOverride,
		MaxRetries: cfg.MaxRetriesOverride,
	}

	if override != nil {
		switch override.Parameter {
		case "engine":
			if name, ok := override.Value.(schema.EngineName); ok {
				inv.Engine = name
			}
		default:
			// Parameters without a dedicated CLI flag (e.g. chunk_size) are
			// injected as environment variables per the phase's declared
			// surface (spec.md §4.3 step 2).
			if inv.Env == nil {
				inv.Env = map[string]string{}
			}
			inv.Env[override.Parameter] = fmt.Sprintf("%v", override.Value)
		}
	}

	return inv
}

func (o *Orchestrator) consultAdvisor(ctx context.Context, fileID string, phase schema.PhaseLabel, cfg RunConfig) (*advisor.Recommendation, *schema.OverrideEntry) {
	if o.Advisor == nil {
		return nil, nil
	}
	window := advisor.TelemetryWindow{FileID: fileID}
	for _, rec := range o.Advisor.Recommend(window) {
		if rec.Phase != phase {
			continue
		}
		override, blockedBy := o.Advisor.Decide(window, rec)
		if blockedBy != "" {
			o.emit(fileID, schema.TelemetryRecord{Phase: phase, Event: schema.EventSafetyBlocked, Message: blockedBy})
			if o.Journal != nil {
				_ = o.Journal.RecordDecision(fileID, cfg.LearningMode, rec, nil, blockedBy)
			}
			continue
		}
		if override != nil {
			o.attachOverride(ctx, phase, *override)
			o.emit(fileID, schema.TelemetryRecord{Phase: phase, Event: schema.EventOverrideApplied, Message: rec.Parameter})
		}
		return &rec, override
	}
	return nil, nil
}

// attachOverride writes an advisor-approved OverrideEntry into
// state.Overrides (spec.md §4.6: "write into state.overrides"), the
// materialize/attach step of the override lifecycle. The entry is cleared
// again at run end by clearSingleRunOverrides unless its TTL is persistent.
func (o *Orchestrator) attachOverride(ctx context.Context, phase schema.PhaseLabel, override schema.OverrideEntry) {
	_, _ = o.Store.Apply(ctx, phase, "attach_override", func(state *schema.PipelineState) error {
		state.Overrides = append(state.Overrides, override)
		return nil
	})
}

func (o *Orchestrator) commitPhaseOutcome(ctx context.Context, fileID string, phase schema.PhaseLabel, attempt int, outcome phaserunner.Outcome) {
	_, _ = o.Store.Apply(ctx, phase, "commit_outcome", func(state *schema.PipelineState) error {
		block, ok := state.Phases[phase]
		if !ok || block == nil {
			block = &schema.PhaseBlock{}
			state.Phases[phase] = block
		}
		block.Attempt = attempt
		block.EndedAt = time.Now()
		if outcome.Success {
			block.Status = schema.StatusSuccess
		} else {
			block.Status = schema.StatusFailed
			block.LastError = &schema.ErrorDetail{Category: outcome.Category, Message: outcome.Message}
			state.Runtime.LastError = block.LastError
		}
		return nil
	})
}

func (o *Orchestrator) persistTerminalFailure(ctx context.Context, fileID string, phase schema.PhaseLabel, outcome phaserunner.Outcome) {
	_, _ = o.Store.Apply(ctx, phase, "terminal_failure", func(state *schema.PipelineState) error {
		state.Runtime.LastError = &schema.ErrorDetail{Category: outcome.Category, Message: outcome.Message}
		return nil
	})
}

func (o *Orchestrator) handleCancellation(ctx context.Context, fileID string, phase schema.PhaseLabel) {
	_, _ = o.Store.Apply(ctx, phase, "cancel", func(state *schema.PipelineState) error {
		if block, ok := state.Phases[phase]; ok && block != nil {
			block.Status = schema.StatusCancelled
		}
		state.Runtime.CancelRequested = false
		return nil
	})
	_, _ = o.clearSingleRunOverrides(ctx, phase)
	o.emit(fileID, schema.TelemetryRecord{Phase: phase, Event: schema.EventEnd, Status: schema.StatusCancelled})
}

func (o *Orchestrator) scheduleRepair(ctx context.Context, fileID string, phase schema.PhaseLabel, block *schema.PhaseBlock) {
	if block == nil {
		return
	}
	resolve := func(key repair.Key) (repair.ChunkInput, bool) {
		chunk, ok := block.Chunks[key.ChunkID]
		if !ok || chunk == nil {
			return repair.ChunkInput{}, false
		}
		return repair.ChunkInput{FileID: fileID, Phase: phase, ChunkID: key.ChunkID, OriginalArtifact: chunk.ArtifactPath}, true
	}
	outcomes, err := o.RepairLoop.Run(ctx, fileID, resolve)
	if err != nil {
		return
	}
	_, _ = o.Store.Apply(ctx, phase, "apply_repairs", func(state *schema.PipelineState) error {
		b := state.Phases[phase]
		if b == nil {
			return nil
		}
		for _, outcome := range outcomes {
			if outcome.Repaired {
				repair.ApplyToState(b, outcome)
			}
		}
		return nil
	})
}

func (o *Orchestrator) runHooks(ctx context.Context, fileID string, phase schema.PhaseLabel) {
	if len(o.Hooks) == 0 {
		return
	}
	state, err := o.Store.Read()
	if err != nil {
		return
	}
	for _, hook := range o.Hooks {
		// Hooks never block progress: errors are swallowed here rather
		// than propagated, matching spec.md §4.7's "outputs are additive".
		_ = hook.Run(ctx, fileID, phase, state)
	}
}

func (o *Orchestrator) emit(fileID string, record schema.TelemetryRecord) {
	if o.Telemetry == nil {
		return
	}
	record.FileID = fileID
	_ = o.Telemetry.Append(record)
}

// inputsHashFor derives a stable hash of the inputs that determine whether
// a phase's prior output can be reused: its label, the book's file id and
// the book's source hash. Upstream phases' inputs_hash and outputs are not
// included, so re-running an earlier phase does not by itself change it.
func inputsHashFor(state *schema.PipelineState, phase schema.PhaseLabel) string {
	h := sha256.New()
	h.Write([]byte(phase))
	h.Write([]byte(state.FileID))
	h.Write([]byte(state.Source.Hash))
	return hex.EncodeToString(h.Sum(nil))
}
