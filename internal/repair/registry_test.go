package repair

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookforge/pipeline/internal/schema"
)

func TestRegistry_RecordAndFailed(t *testing.T) {
	dir := t.TempDir()
	reg := Open(dir)

	key := Key{FileID: "file-1", Phase: schema.PhaseSynthesis, ChunkID: 42}
	rec := schema.FailureRecord{Category: schema.CategoryChunkFailure, Attempt: 1, Timestamp: time.Now(), Message: "validation failed"}

	require.NoError(t, reg.Record(key, rec))

	failed, err := reg.Failed("file-1")
	require.NoError(t, err)
	require.Contains(t, failed, key)
	assert.Len(t, failed[key], 1)
}

func TestRegistry_DeduplicatesByAttempt(t *testing.T) {
	dir := t.TempDir()
	reg := Open(dir)
	key := Key{FileID: "file-1", Phase: schema.PhaseSynthesis, ChunkID: 1}

	rec := schema.FailureRecord{Category: schema.CategoryChunkFailure, Attempt: 1, Timestamp: time.Now()}
	require.NoError(t, reg.Record(key, rec))
	require.NoError(t, reg.Record(key, rec)) // same attempt, must not duplicate

	failed, err := reg.Failed("file-1")
	require.NoError(t, err)
	assert.Len(t, failed[key], 1)
}

func TestRegistry_MultipleAttemptsAccumulate(t *testing.T) {
	dir := t.TempDir()
	reg := Open(dir)
	key := Key{FileID: "file-1", Phase: schema.PhaseSynthesis, ChunkID: 1}

	require.NoError(t, reg.Record(key, schema.FailureRecord{Attempt: 1, Category: schema.CategoryChunkFailure}))
	require.NoError(t, reg.Record(key, schema.FailureRecord{Attempt: 2, Category: schema.CategoryChunkFailure}))

	failed, err := reg.Failed("file-1")
	require.NoError(t, err)
	assert.Len(t, failed[key], 2)
}

func TestRegistry_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	key := Key{FileID: "file-1", Phase: schema.PhaseSynthesis, ChunkID: 1}

	require.NoError(t, Open(dir).Record(key, schema.FailureRecord{Attempt: 1, Category: schema.CategoryChunkFailure}))

	reloaded, err := Open(dir).Failed("file-1")
	require.NoError(t, err)
	assert.Contains(t, reloaded, key)
}
