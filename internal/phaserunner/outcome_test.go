package phaserunner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bookforge/pipeline/internal/schema"
)

func TestClassify_ExitCodeNonZeroAlwaysFails(t *testing.T) {
	block := &schema.PhaseBlock{Status: schema.StatusSuccess}
	outcome := Classify(1, schema.PhaseSynthesis, block, 0)
	assert.False(t, outcome.Success)
	assert.Equal(t, schema.CategoryChildExit, outcome.Category)
}

func TestClassify_ExitZeroButBlockNotSuccess(t *testing.T) {
	block := &schema.PhaseBlock{Status: schema.StatusFailed}
	outcome := Classify(0, schema.PhaseSynthesis, block, 0)
	assert.False(t, outcome.Success, "exit code 0 alone must never be sufficient")
}

func TestClassify_ChunkCountMismatch(t *testing.T) {
	block := &schema.PhaseBlock{
		Status: schema.StatusSuccess,
		Chunks: map[int]*schema.ChunkRecord{
			1: {ChunkID: 1, Status: schema.ChunkSuccess},
		},
	}
	outcome := Classify(0, schema.PhaseSynthesis, block, 2)
	assert.False(t, outcome.Success)
	assert.Equal(t, schema.CategoryChunkFailure, outcome.Category)
}

func TestClassify_MissingArtifact(t *testing.T) {
	block := &schema.PhaseBlock{
		Status:    schema.StatusSuccess,
		Artifacts: []schema.ArtifactRef{{Path: "/nonexistent/path.wav", Size: 10}},
	}
	outcome := Classify(0, schema.PhaseSynthesis, block, 0)
	assert.False(t, outcome.Success)
	assert.Equal(t, schema.CategoryArtifactMissing, outcome.Category)
}

func TestClassify_EmptyArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.wav")
	require := os.WriteFile(path, []byte{}, 0o644)
	assert.NoError(t, require)

	block := &schema.PhaseBlock{
		Status:    schema.StatusSuccess,
		Artifacts: []schema.ArtifactRef{{Path: path, Size: 0}},
	}
	outcome := Classify(0, schema.PhaseSynthesis, block, 0)
	assert.False(t, outcome.Success)
	assert.Equal(t, schema.CategoryArtifactMissing, outcome.Category)
}

func TestClassify_FullSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunk1.wav")
	assert.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))

	block := &schema.PhaseBlock{
		Status: schema.StatusSuccess,
		Chunks: map[int]*schema.ChunkRecord{
			1: {ChunkID: 1, Status: schema.ChunkSuccess},
		},
		Artifacts: []schema.ArtifactRef{{Path: path, Size: 5}},
	}
	outcome := Classify(0, schema.PhaseSynthesis, block, 1)
	assert.True(t, outcome.Success)
}

func TestClassify_RepairedChunkCountsAsSuccess(t *testing.T) {
	block := &schema.PhaseBlock{
		Status: schema.StatusSuccess,
		Chunks: map[int]*schema.ChunkRecord{
			1: {ChunkID: 1, Status: schema.ChunkRepaired},
		},
	}
	outcome := Classify(0, schema.PhaseSynthesis, block, 1)
	assert.True(t, outcome.Success)
}

func TestInvocation_BuildArgs(t *testing.T) {
	chunkID := 7
	inv := Invocation{
		FileID:    "file-1",
		StatePath: "/work/pipeline.json",
		Resume:    true,
		Voice:     "ava",
		Engine:    "kokoro",
		ChunkID:   &chunkID,
		MaxRetries: 3,
	}
	args := inv.BuildArgs()

	assert.Contains(t, args, "--file_id=file-1")
	assert.Contains(t, args, "--json_path=/work/pipeline.json")
	assert.Contains(t, args, "--resume")
	assert.Contains(t, args, "--voice=ava")
	assert.Contains(t, args, "--engine=kokoro")
	assert.Contains(t, args, "--chunk_id=7")
	assert.Contains(t, args, "--max-retries=3")
}

func TestInvocation_BuildArgs_OmitsUnsetOptionals(t *testing.T) {
	inv := Invocation{FileID: "file-1", StatePath: "/work/pipeline.json"}
	args := inv.BuildArgs()

	assert.NotContains(t, args, "--resume")
	for _, a := range args {
		assert.NotContains(t, a, "--voice=")
		assert.NotContains(t, a, "--engine=")
	}
}
