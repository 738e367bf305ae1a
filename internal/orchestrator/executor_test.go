package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookforge/pipeline/internal/advisor"
	"github.com/bookforge/pipeline/internal/phaserunner"
	"github.com/bookforge/pipeline/internal/retry"
	"github.com/bookforge/pipeline/internal/schema"
	"github.com/bookforge/pipeline/internal/statestore"
)

func writeTestFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0o644)
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *statestore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	statePath := filepath.Join(dir, "pipeline.json")
	store := statestore.Open(statePath)

	require.NoError(t, store.Create(context.Background(), schema.NewPipelineState("file-1", schema.Source{Hash: "abc"})))

	budgets := retry.Budgets{schema.PhaseExtraction: 1}
	o := New(store, phaserunner.New(filepath.Join(dir, "logs")), retry.NewEngine(budgets), advisor.New(schema.ModeObserve), map[schema.PhaseLabel]PhaseCommandSpec{})
	return o, store, dir
}

func TestRun_SkipsPhaseWhenOutputIsReusable(t *testing.T) {
	o, store, dir := newTestOrchestrator(t)
	artifact := filepath.Join(dir, "out.wav")
	require.NoError(t, writeTestFile(artifact))

	_, err := store.Apply(context.Background(), schema.PhaseExtraction, "seed", func(state *schema.PipelineState) error {
		state.Phases[schema.PhaseExtraction] = &schema.PhaseBlock{
			Status:     schema.StatusSuccess,
			InputsHash: inputsHashFor(state, schema.PhaseExtraction),
			Artifacts:  []schema.ArtifactRef{{Path: artifact, Size: 1}},
		}
		return nil
	})
	require.NoError(t, err)

	cfg := RunConfig{Phases: []schema.PhaseLabel{schema.PhaseExtraction}}
	var skipped bool
	o.OnProgress(func(phase schema.PhaseLabel, status schema.PhaseStatus, message string) {
		if status == schema.StatusSkipped {
			skipped = true
		}
	})

	summary, err := o.Run(context.Background(), "file-1", cfg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, summary.Outcome)
	assert.True(t, skipped)
}

func TestRun_FailsWhenPhaseWritesNoStateBlock(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.Commands[schema.PhaseExtraction] = PhaseCommandSpec{Command: "true"}

	cfg := RunConfig{Phases: []schema.PhaseLabel{schema.PhaseExtraction}, Resume: boolPtr(false)}
	summary, err := o.Run(context.Background(), "file-1", cfg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, summary.Outcome)
	assert.Equal(t, schema.CategoryArtifactMissing, summary.FailureCategory)
}

func TestRun_CancellationBeforeFirstPhaseSkipsExecution(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.Commands[schema.PhaseExtraction] = PhaseCommandSpec{Command: "true"}
	o.Cancel()

	cfg := RunConfig{Phases: []schema.PhaseLabel{schema.PhaseExtraction}}
	summary, err := o.Run(context.Background(), "file-1", cfg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, summary.Outcome)
}

func TestBatchRunner_RunsIndependentJobsConcurrently(t *testing.T) {
	runner := NewBatchRunner(2)
	jobs := []BatchJob{
		{FileID: "a", Run: func(ctx context.Context, fileID string, cfg RunConfig) (*RunSummary, error) {
			return &RunSummary{FileID: fileID, Outcome: OutcomeSuccess}, nil
		}},
		{FileID: "b", Run: func(ctx context.Context, fileID string, cfg RunConfig) (*RunSummary, error) {
			return &RunSummary{FileID: fileID, Outcome: OutcomeSuccess}, nil
		}},
	}

	results := runner.Run(context.Background(), jobs)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, OutcomeSuccess, r.Summary.Outcome)
	}
}

func boolPtr(b bool) *bool { return &b }

// TestConsultAdvisor_AttachesOverrideToState verifies that an advisor
// override approved by Decide is actually written into state.Overrides,
// not just handed to the phase invocation (spec.md §4.6's "write into
// state.overrides" lifecycle step).
func TestConsultAdvisor_AttachesOverrideToState(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	o.Advisor = &advisor.Advisor{Mode: schema.ModeSupervised, Gates: nil, Weights: advisor.DefaultRewardWeights()}

	durations := []time.Duration{3 * time.Minute, 3 * time.Minute, 3 * time.Minute}

	// consultAdvisor reads PerPhaseDurations from the window the caller
	// builds; drive it directly with a window carrying a slow-phase history.
	window := advisor.TelemetryWindow{
		FileID:            "file-1",
		PerPhaseDurations: map[schema.PhaseLabel][]time.Duration{schema.PhaseSynthesis: durations},
	}
	recs := o.Advisor.Recommend(window)
	require.Len(t, recs, 1)
	rec := recs[0]
	override, blockedBy := o.Advisor.Decide(window, rec)
	require.Empty(t, blockedBy)
	require.NotNil(t, override)

	o.attachOverride(context.Background(), rec.Phase, *override)

	state, err := store.Read()
	require.NoError(t, err)
	require.Len(t, state.Overrides, 1)
	assert.Equal(t, "chunk_size", state.Overrides[0].Parameter)
	assert.Equal(t, schema.TTLSingleRun, state.Overrides[0].TTL)
}

// TestClearSingleRunOverrides_DropsSingleRunKeepsPersistent verifies the
// run-end lifecycle step: single_run overrides are removed, persistent
// ones survive (invariant 5/P5).
func TestClearSingleRunOverrides_DropsSingleRunKeepsPersistent(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)

	_, err := store.Apply(context.Background(), schema.PhaseSynthesis, "seed_overrides", func(state *schema.PipelineState) error {
		state.Overrides = []schema.OverrideEntry{
			{TargetPhase: schema.PhaseSynthesis, Parameter: "chunk_size", Value: 850.0, Source: schema.SourceAdvisor, TTL: schema.TTLSingleRun},
			{TargetPhase: schema.PhaseSynthesis, Parameter: "engine", Value: schema.EngineName("engine-b"), Source: schema.SourceAdvisor, TTL: schema.TTLPersistent},
		}
		return nil
	})
	require.NoError(t, err)

	state, err := o.clearSingleRunOverrides(context.Background(), schema.PhaseSynthesis)
	require.NoError(t, err)
	require.Len(t, state.Overrides, 1)
	assert.Equal(t, "engine", state.Overrides[0].Parameter)
}

// TestRunSummary_ChunkStatsAndRewardFromState verifies RunSummary's
// chunk-statistics and reward wiring reads real chunk outcomes out of
// state rather than leaving Reward permanently nil (spec.md §4.7).
func TestRunSummary_ChunkStatsAndRewardFromState(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)

	_, err := store.Apply(context.Background(), schema.PhaseSynthesis, "seed_chunks", func(state *schema.PipelineState) error {
		state.Phases[schema.PhaseSynthesis] = &schema.PhaseBlock{
			Status: schema.StatusSuccess,
			Chunks: map[int]*schema.ChunkRecord{
				1: {ChunkID: 1, Status: schema.ChunkSuccess},
				2: {ChunkID: 2, Status: schema.ChunkFailed},
				3: {ChunkID: 3, Status: schema.ChunkRepaired},
			},
			Artifacts: []schema.ArtifactRef{{Path: "out.wav", Size: 10}},
		}
		return nil
	})
	require.NoError(t, err)

	summary := &RunSummary{FileID: "file-1", Outcome: OutcomeSuccess, CompletedPhases: []schema.PhaseLabel{schema.PhaseSynthesis}}
	o.finalizeRun(context.Background(), "file-1", schema.PhaseSynthesis, summary)

	assert.Equal(t, 3, summary.ChunkStats.Total)
	assert.Equal(t, 1, summary.ChunkStats.Success)
	assert.Equal(t, 1, summary.ChunkStats.Failed)
	assert.Equal(t, 1, summary.ChunkStats.Repaired)
	require.Len(t, summary.ArtifactsProduced, 1)
	require.NotNil(t, summary.Reward)
}
