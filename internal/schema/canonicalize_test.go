package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_V1Document(t *testing.T) {
	raw := map[string]interface{}{
		"book_id": "legacy-42",
		"source":  map[string]interface{}{"path": "old.pdf"},
	}

	s, err := Canonicalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "legacy-42", s.FileID)
	assert.Equal(t, CurrentVersion, s.SchemaVersion)
	assert.Equal(t, "legacy-42", s.Legacy["book_id"], "original key preserved under legacy, never dropped")
}

func TestCanonicalize_V2Document_MovesRuntimeFields(t *testing.T) {
	raw := map[string]interface{}{
		"schema_version": float64(2),
		"file_id":        "file-7",
		"source":         map[string]interface{}{"path": "book.epub"},
		"current_phase":  "phase3",
		"pid":            float64(4242),
	}

	s, err := Canonicalize(raw)
	require.NoError(t, err)
	assert.Equal(t, PhaseLabel("phase3"), s.Runtime.CurrentPhase)
	assert.Equal(t, 4242, s.Runtime.PID)
}

func TestCanonicalize_CurrentVersionRoundTrips(t *testing.T) {
	original := NewPipelineState("file-9", Source{Path: "book.epub"})
	original.Phases[PhaseExtraction] = &PhaseBlock{Status: StatusSuccess, Attempt: 1}

	raw, err := Decanonicalize(original)
	require.NoError(t, err)

	roundTripped, err := Canonicalize(raw)
	require.NoError(t, err)

	assert.Equal(t, original.FileID, roundTripped.FileID)
	assert.Equal(t, original.SchemaVersion, roundTripped.SchemaVersion)
	assert.Equal(t, StatusSuccess, roundTripped.Phases[PhaseExtraction].Status)
}

func TestCanonicalize_IsIdempotent(t *testing.T) {
	raw := map[string]interface{}{
		"book_id": "legacy-1",
		"source":  map[string]interface{}{"path": "old.pdf"},
	}

	once, err := Canonicalize(raw)
	require.NoError(t, err)

	reRaw, err := Decanonicalize(once)
	require.NoError(t, err)

	twice, err := Canonicalize(reRaw)
	require.NoError(t, err)

	assert.Equal(t, once.FileID, twice.FileID)
	assert.Equal(t, once.Legacy, twice.Legacy)
}

func TestCanonicalize_UnknownFutureVersionRejected(t *testing.T) {
	raw := map[string]interface{}{
		"schema_version": float64(99),
		"file_id":        "file-1",
	}
	_, err := Canonicalize(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than this build supports")
}

func TestCanonicalize_PreservesUnknownTopLevelKey(t *testing.T) {
	raw := map[string]interface{}{
		"schema_version":    float64(3),
		"file_id":           "file-1",
		"source":            map[string]interface{}{"path": "book.epub"},
		"experimental_flag": true,
	}

	s, err := Canonicalize(raw)
	require.NoError(t, err)
	assert.Equal(t, true, s.Legacy["experimental_flag"])
}
