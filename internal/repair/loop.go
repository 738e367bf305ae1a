package repair

import (
	"context"
	"fmt"

	"github.com/bookforge/pipeline/internal/schema"
)

// Loop runs the opt-in post-run repair loop (spec.md §4.5): for each failed
// chunk, strategies are tried in order, stopping at the first success whose
// confidence clears the threshold.
type Loop struct {
	Registry   *Registry
	Strategies []Strategy
	Weights    ConfidenceWeights
	Threshold  float64
	Workdir    string
}

// ChunkOutcome is the result of running the repair loop on a single chunk.
type ChunkOutcome struct {
	Key        Key
	Repaired   bool
	Manifest   *Manifest
	Attempts   []Attempt
}

// Run attempts repair for every chunk the registry reports as failed for
// fileID. It never mutates or deletes original artifacts; substitution is
// only recorded in the returned manifests for the orchestrator to apply to
// the state document.
func (l *Loop) Run(ctx context.Context, fileID string, resolveInput func(Key) (ChunkInput, bool)) ([]ChunkOutcome, error) {
	failed, err := l.Registry.Failed(fileID)
	if err != nil {
		return nil, fmt.Errorf("load failed chunks: %w", err)
	}

	var outcomes []ChunkOutcome
	for key := range failed {
		input, ok := resolveInput(key)
		if !ok {
			continue
		}
		outcomes = append(outcomes, l.repairOne(ctx, key, input))
	}
	return outcomes, nil
}

func (l *Loop) repairOne(ctx context.Context, key Key, input ChunkInput) ChunkOutcome {
	outcome := ChunkOutcome{Key: key}

	for _, strategy := range l.Strategies {
		attempt := strategy.Attempt(ctx, input)
		outcome.Attempts = append(outcome.Attempts, attempt)
		if attempt.Err != nil || attempt.ReplacementArtifact == "" {
			continue
		}

		confidence := Score(l.Weights, attempt.Metrics["duration_ratio"], attempt.Metrics["spectral_score"])
		manifest := Manifest{
			ChunkID:             key.ChunkID,
			Strategy:            attempt.Strategy,
			OriginalArtifact:    input.OriginalArtifact,
			ReplacementArtifact: attempt.ReplacementArtifact,
			Confidence:          confidence,
		}
		if !manifest.Eligible(l.threshold()) {
			continue
		}

		path, err := WriteManifest(l.Workdir, key.Phase, manifest)
		if err != nil {
			continue
		}
		_ = path
		outcome.Repaired = true
		outcome.Manifest = &manifest
		return outcome
	}

	return outcome
}

func (l *Loop) threshold() float64 {
	if l.Threshold > 0 {
		return l.Threshold
	}
	return DefaultThreshold
}

// ApplyToState marks the chunk as repaired and points its artifact at the
// replacement, leaving the original artifact path recorded in
// RepairedFrom (spec.md invariant 7: non-destructive repair).
func ApplyToState(block *schema.PhaseBlock, outcome ChunkOutcome) {
	if !outcome.Repaired || outcome.Manifest == nil {
		return
	}
	chunk, ok := block.Chunks[outcome.Key.ChunkID]
	if !ok || chunk == nil {
		return
	}
	chunk.RepairedFrom = chunk.ArtifactPath
	chunk.ArtifactPath = outcome.Manifest.ReplacementArtifact
	chunk.Status = schema.ChunkRepaired
}
