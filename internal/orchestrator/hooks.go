package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/bookforge/pipeline/internal/schema"
)

// VerdictCheckHook writes a small post-phase verdict note under
// .pipeline/hooks/ for later inspection. Purely additive: a write
// failure here never fails the pipeline.
type VerdictCheckHook struct {
	Workdir string
}

func (h VerdictCheckHook) Name() string { return "verdict-check" }

func (h VerdictCheckHook) Run(ctx context.Context, fileID string, phase schema.PhaseLabel, state *schema.PipelineState) error {
	block := state.Phases[phase]
	if block == nil {
		return nil
	}
	dir := filepath.Join(h.Workdir, ".pipeline", "hooks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fileID+"-"+string(phase)+"-verdict.txt")
	note := string(block.Status) + " at " + time.Now().Format(time.RFC3339) + "\n"
	return os.WriteFile(path, []byte(note), 0o644)
}

// ASRSpotCheckHook is a no-op placeholder for automatic speech recognition
// spot-checking of synthesized audio after the enhancement phase; wiring
// a real ASR model is out of scope here, but the hook point exists so the
// pipeline need not change shape when one is added.
type ASRSpotCheckHook struct{}

func (h ASRSpotCheckHook) Name() string { return "asr-spot-check" }

func (h ASRSpotCheckHook) Run(ctx context.Context, fileID string, phase schema.PhaseLabel, state *schema.PipelineState) error {
	if phase != schema.PhaseEnhancement {
		return nil
	}
	return nil
}

// MetadataGenerationHook writes a small sidecar text file,
// .pipeline/metadata/<file_id>.txt holding one "file_id=<id>" line, after
// the finalize phase; again additive, never required for Done.
type MetadataGenerationHook struct {
	Workdir string
}

func (h MetadataGenerationHook) Name() string { return "metadata-generation" }

func (h MetadataGenerationHook) Run(ctx context.Context, fileID string, phase schema.PhaseLabel, state *schema.PipelineState) error {
	if phase != schema.PhaseFinalize {
		return nil
	}
	dir := filepath.Join(h.Workdir, ".pipeline", "metadata")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fileID+".txt")
	return os.WriteFile(path, []byte("file_id="+fileID+"\n"), 0o644)
}

// DefaultHooks returns the standard optional hook set (spec.md §4.7).
func DefaultHooks(workdir string) []Hook {
	return []Hook{
		VerdictCheckHook{Workdir: workdir},
		ASRSpotCheckHook{},
		MetadataGenerationHook{Workdir: workdir},
	}
}
