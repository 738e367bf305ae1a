package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskSpaceGate_PassesWithLowRequirement(t *testing.T) {
	dir := t.TempDir()
	gate := NewDiskSpaceGate(1)

	v, err := gate.Check(context.Background(), RunConfig{PipelineJSONPath: filepath.Join(dir, "pipeline.json")})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDiskSpaceGate_FlagsImpossibleRequirement(t *testing.T) {
	dir := t.TempDir()
	gate := NewDiskSpaceGate(^uint64(0)) // max uint64, no filesystem has this much free

	v, err := gate.Check(context.Background(), RunConfig{PipelineJSONPath: filepath.Join(dir, "pipeline.json")})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, SeverityCritical, v.Severity)
}

func TestCPUHeadroomGate_WarnsBelowMinimum(t *testing.T) {
	gate := NewCPUHeadroomGate(1 << 20)
	v, err := gate.Check(context.Background(), RunConfig{})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, SeverityWarning, v.Severity)
}

func TestModelCacheGate_FlagsMissingDirectory(t *testing.T) {
	gate := NewModelCacheGate(filepath.Join(t.TempDir(), "does-not-exist"))
	v, err := gate.Check(context.Background(), RunConfig{})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, SeverityCritical, v.Severity)
}

func TestModelCacheGate_PassesWithPopulatedCache(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeTestFile(filepath.Join(dir, "model.bin")))

	gate := NewModelCacheGate(dir)
	v, err := gate.Check(context.Background(), RunConfig{})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRunPreflight_AggregatesViolationsAcrossChecks(t *testing.T) {
	checks := []PreflightCheck{
		NewCPUHeadroomGate(1 << 20),
		NewModelCacheGate(filepath.Join(t.TempDir(), "missing")),
	}
	violations, err := runPreflight(context.Background(), checks, RunConfig{})
	require.NoError(t, err)
	assert.Len(t, violations, 2)
}
