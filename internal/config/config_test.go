package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookforge/pipeline/internal/schema"
)

func TestLoad_Defaults(t *testing.T) {
	originalEnv := saveEnv()
	defer restoreEnv(originalEnv)
	os.Clearenv()

	cfg := Load()
	require.NotNil(t, cfg)

	assert.Equal(t, ".pipeline", cfg.StateStore.Workdir)
	assert.Equal(t, 30*time.Second, cfg.StateStore.LockTimeout)
	assert.Equal(t, 5, cfg.StateStore.MaxBackups)

	assert.False(t, cfg.Observability.EnableTelemetry)
	assert.Equal(t, "pipeline", cfg.Observability.ServiceName)

	assert.Equal(t, string(schema.ModeObserve), cfg.Learning.Mode)

	assert.Equal(t, time.Second, cfg.Retry.InitialBackoff)
	assert.Equal(t, 2*time.Minute, cfg.Retry.MaxBackoff)
	assert.Equal(t, 2.0, cfg.Retry.BackoffMultiplier)
	assert.Equal(t, 0.2, cfg.Retry.Jitter)

	assert.True(t, cfg.Hooks.VerdictCheck)
	assert.False(t, cfg.Hooks.ASRSpotCheck)
	assert.True(t, cfg.Hooks.MetadataGeneration)

	assert.Equal(t, uint64(1<<30), cfg.Preflight.MinFreeDiskBytes)
	assert.Equal(t, 2, cfg.Preflight.MinLogicalCPUs)

	assert.NotEmpty(t, cfg.Phases.Commands)
	assert.Equal(t, "pipeline-extract", cfg.Phases.Commands[string(schema.PhaseExtraction)].Command)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	originalEnv := saveEnv()
	defer restoreEnv(originalEnv)
	os.Clearenv()

	os.Setenv("PIPELINE_WORKDIR", "/tmp/custom-pipeline")
	os.Setenv("PIPELINE_LOCK_TIMEOUT", "5s")
	os.Setenv("PIPELINE_MAX_BACKUPS", "10")
	os.Setenv("PIPELINE_LEARNING_MODE", "autonomous")
	os.Setenv("OTEL_ENABLE", "true")
	os.Setenv("OTEL_SERVICE_NAME", "pipeline-test")

	cfg := Load()
	require.NotNil(t, cfg)

	assert.Equal(t, "/tmp/custom-pipeline", cfg.StateStore.Workdir)
	assert.Equal(t, 5*time.Second, cfg.StateStore.LockTimeout)
	assert.Equal(t, 10, cfg.StateStore.MaxBackups)
	assert.Equal(t, "autonomous", cfg.Learning.Mode)
	assert.True(t, cfg.Observability.EnableTelemetry)
	assert.Equal(t, "pipeline-test", cfg.Observability.ServiceName)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := Load()
		return cfg
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("negative lock timeout rejected", func(t *testing.T) {
		cfg := valid()
		cfg.StateStore.LockTimeout = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero max backups rejected", func(t *testing.T) {
		cfg := valid()
		cfg.StateStore.MaxBackups = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid learning mode rejected", func(t *testing.T) {
		cfg := valid()
		cfg.Learning.Mode = "omniscient"
		assert.Error(t, cfg.Validate())
	})

	t.Run("empty service name with telemetry enabled rejected", func(t *testing.T) {
		cfg := valid()
		cfg.Observability.EnableTelemetry = true
		cfg.Observability.ServiceName = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("traversal in workdir rejected", func(t *testing.T) {
		cfg := valid()
		cfg.StateStore.Workdir = "/data/../../../etc"
		assert.Error(t, cfg.Validate())
	})
}

func TestDefaultPhaseCommands_CoversAllPhases(t *testing.T) {
	commands := DefaultPhaseCommands()
	for _, phase := range []schema.PhaseLabel{
		schema.PhaseExtraction, schema.PhaseChunking, schema.PhaseVoiceSelect,
		schema.PhaseSynthesis, schema.PhaseEnhancement, schema.PhaseASRCheck,
		schema.PhaseMastering, schema.PhaseFinalize,
	} {
		_, ok := commands[string(phase)]
		assert.True(t, ok, "missing default command for phase %s", phase)
	}
}

// Helper functions to save/restore environment
func saveEnv() map[string]string {
	env := make(map[string]string)
	for _, e := range os.Environ() {
		env[e] = os.Getenv(e)
	}
	return env
}

func restoreEnv(env map[string]string) {
	os.Clearenv()
	for k, v := range env {
		os.Setenv(k, v)
	}
}
