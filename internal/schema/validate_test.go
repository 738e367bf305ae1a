package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validState() *PipelineState {
	s := NewPipelineState("file-001", Source{Path: "book.epub"})
	s.Phases[PhaseExtraction] = &PhaseBlock{Status: StatusSuccess, Attempt: 1}
	s.Phases[PhaseChunking] = &PhaseBlock{Status: StatusSuccess, Attempt: 1}
	return s
}

func TestValidate_MinimalValidState(t *testing.T) {
	s := validState()
	assert.NoError(t, Validate(s))
}

func TestValidate_MissingFileID(t *testing.T) {
	s := validState()
	s.FileID = ""
	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file_id is required")
}

func TestValidate_UnknownPhaseLabel(t *testing.T) {
	s := validState()
	s.Phases["phase99"] = &PhaseBlock{Status: StatusSuccess}
	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a recognized phase label")
}

func TestValidate_OneBasedChunkViolation(t *testing.T) {
	s := validState()
	s.Phases[PhaseSynthesis] = &PhaseBlock{
		Status: StatusRunning,
		Chunks: map[int]*ChunkRecord{0: {ChunkID: 0, Status: ChunkPending}},
	}
	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "one-based but has chunk id 0")
}

func TestValidate_ChunkKeyMismatch(t *testing.T) {
	s := validState()
	s.Phases[PhaseEnhancement] = &PhaseBlock{
		Status: StatusRunning,
		Chunks: map[int]*ChunkRecord{2: {ChunkID: 7, Status: ChunkPending}},
	}
	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match ChunkID")
}

func TestStrictValidate_UpstreamNotComplete(t *testing.T) {
	s := NewPipelineState("file-001", Source{Path: "book.epub"})
	s.Phases[PhaseChunking] = &PhaseBlock{Status: StatusSuccess, Attempt: 1}
	// phase1 (extraction) never ran, but phase2 claims success
	err := StrictValidate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream phase")
}

func TestStrictValidate_IncompleteChunksUnderSuccess(t *testing.T) {
	s := validState()
	s.Phases[PhaseSynthesis] = &PhaseBlock{
		Status: StatusSuccess,
		Attempt: 1,
		Chunks: map[int]*ChunkRecord{
			1: {ChunkID: 1, Status: ChunkSuccess},
			2: {ChunkID: 2, Status: ChunkFailed},
		},
	}
	err := StrictValidate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not success/repaired")
}

func TestStrictValidate_RepairedChunkSatisfiesSuccess(t *testing.T) {
	s := validState()
	s.Phases[PhaseVoiceSelect] = &PhaseBlock{Status: StatusSuccess, Attempt: 1}
	s.Phases[PhaseSynthesis] = &PhaseBlock{
		Status: StatusSuccess,
		Attempt: 1,
		Chunks: map[int]*ChunkRecord{
			1: {ChunkID: 1, Status: ChunkRepaired},
		},
	}
	assert.NoError(t, StrictValidate(s))
}
