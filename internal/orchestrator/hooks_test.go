package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookforge/pipeline/internal/schema"
)

func TestVerdictCheckHook_WritesNoteForKnownPhase(t *testing.T) {
	dir := t.TempDir()
	hook := VerdictCheckHook{Workdir: dir}
	state := schema.NewPipelineState("file-1", schema.Source{})
	state.Phases[schema.PhaseExtraction] = &schema.PhaseBlock{Status: schema.StatusSuccess}

	require.NoError(t, hook.Run(context.Background(), "file-1", schema.PhaseExtraction, state))

	_, err := os.Stat(filepath.Join(dir, ".pipeline", "hooks", "file-1-phase1-verdict.txt"))
	assert.NoError(t, err)
}

func TestMetadataGenerationHook_OnlyWritesOnFinalize(t *testing.T) {
	dir := t.TempDir()
	hook := MetadataGenerationHook{Workdir: dir}
	state := schema.NewPipelineState("file-1", schema.Source{})

	require.NoError(t, hook.Run(context.Background(), "file-1", schema.PhaseExtraction, state))
	_, err := os.Stat(filepath.Join(dir, ".pipeline", "metadata", "file-1.txt"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, hook.Run(context.Background(), "file-1", schema.PhaseFinalize, state))
	_, err = os.Stat(filepath.Join(dir, ".pipeline", "metadata", "file-1.txt"))
	assert.NoError(t, err)
}
