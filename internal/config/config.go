// Package config provides configuration loading for the pipeline orchestrator.
//
// Configuration is loaded from environment variables with sensible defaults,
// or from a layered YAML file plus environment overrides via LoadWithFile.
// This package covers state store, retry, learning-mode, phase command, and
// observability settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bookforge/pipeline/internal/schema"
)

// Config holds the complete pipeline orchestrator configuration.
type Config struct {
	Production    ProductionConfig
	Observability ObservabilityConfig
	StateStore    StateStoreConfig
	Retry         RetryConfig
	Learning      LearningConfig
	Phases        PhasesConfig
	Hooks         HooksConfig
	Preflight     PreflightConfig
}

// StateStoreConfig holds settings for the pipeline state document store.
type StateStoreConfig struct {
	// Workdir is a state-store directory setting. Default: ".pipeline".
	// Validate checks it for path traversal; pipelinectl does not read it:
	// the state document's location comes from --pipeline-json or the
	// input file's directory.
	Workdir string `koanf:"workdir"`

	// LockTimeout bounds how long a write attempt waits for the advisory
	// lock before giving up. Default: 30s.
	LockTimeout time.Duration `koanf:"lock_timeout"`

	// MaxBackups is the number of successful state snapshots retained.
	// Default: 5.
	MaxBackups int `koanf:"max_backups"`
}

// RetryConfig holds per-phase retry budgets and backoff tuning.
type RetryConfig struct {
	// Budgets maps a phase label (e.g. "phase1") to its maximum attempt
	// count. Phases absent from the map use DefaultBudget.
	Budgets map[string]int `koanf:"budgets"`

	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
	Jitter            float64       `koanf:"jitter"`
}

// LearningConfig holds the policy advisor's operating mode.
type LearningConfig struct {
	// Mode is one of "observe", "recommend", "supervised", "autonomous".
	// Default: "observe".
	Mode string `koanf:"mode"`
}

// PhaseCommandConfig names the external command invoked for a phase.
type PhaseCommandConfig struct {
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`
}

// PhasesConfig maps phase labels to the external command that implements
// them.
type PhasesConfig struct {
	Commands map[string]PhaseCommandConfig `koanf:"commands"`
}

// HooksConfig toggles the non-blocking post-phase hooks.
type HooksConfig struct {
	VerdictCheck       bool `koanf:"verdict_check"`
	ASRSpotCheck       bool `koanf:"asr_spot_check"`
	MetadataGeneration bool `koanf:"metadata_generation"`
}

// PreflightConfig holds thresholds for the preflight resource checks run
// before a file enters the pipeline.
type PreflightConfig struct {
	MinFreeDiskBytes uint64 `koanf:"min_free_disk_bytes"`
	MinLogicalCPUs   int    `koanf:"min_logical_cpus"`
	ModelCacheDir    string `koanf:"model_cache_dir"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry   bool   `koanf:"enable_telemetry"`
	ServiceName       string `koanf:"service_name"`
	OTLPEndpoint      string `koanf:"otlp_endpoint"`        // OTLP endpoint (default: localhost:4317)
	OTLPProtocol      string `koanf:"otlp_protocol"`        // "grpc" or "http/protobuf" (default: grpc)
	OTLPInsecure      bool   `koanf:"otlp_insecure"`        // Use insecure connection (default: true for localhost)
	OTLPTLSSkipVerify bool   `koanf:"otlp_tls_skip_verify"` // Skip TLS verification for internal CAs
}

// ProductionConfig holds production deployment configuration.
type ProductionConfig struct {
	// Enabled indicates whether production mode is active.
	// Set via PIPELINE_PRODUCTION_MODE=1 environment variable.
	Enabled bool `koanf:"enabled"`

	// LocalModeAcknowledged allows development features in production mode.
	// Set via PIPELINE_LOCAL_MODE=1 environment variable.
	// Use only for local development/testing.
	LocalModeAcknowledged bool `koanf:"local_mode_acknowledged"`

	// RequireTLS enforces TLS for external services (the OTLP collector).
	RequireTLS bool `koanf:"require_tls"`
}

// IsProduction returns true if running in production mode.
func (c *ProductionConfig) IsProduction() bool {
	return c.Enabled
}

// IsLocal returns true if local mode is acknowledged.
func (c *ProductionConfig) IsLocal() bool {
	return c.LocalModeAcknowledged
}

// Validate checks production configuration for security issues.
func (c *ProductionConfig) Validate() error {
	if !c.Enabled {
		return nil // Not in production, skip validation
	}
	if c.RequireTLS && os.Getenv("PIPELINE_OTLP_INSECURE") == "1" {
		return errors.New("SECURITY: RequireTLS enabled but OTLP insecure override is set")
	}
	return nil
}

// DefaultPhaseCommands returns the baseline external command bound to each
// phase. Deployments override individual entries via YAML or env vars;
// any phase absent from the map has no command and Run fails immediately
// on reaching it.
func DefaultPhaseCommands() map[string]PhaseCommandConfig {
	return map[string]PhaseCommandConfig{
		string(schema.PhaseExtraction):  {Command: "pipeline-extract"},
		string(schema.PhaseChunking):    {Command: "pipeline-chunk"},
		string(schema.PhaseVoiceSelect): {Command: "pipeline-select-voice"},
		string(schema.PhaseSynthesis):   {Command: "pipeline-synthesize"},
		string(schema.PhaseEnhancement): {Command: "pipeline-enhance"},
		string(schema.PhaseASRCheck):    {Command: "pipeline-asr-check"},
		string(schema.PhaseMastering):   {Command: "pipeline-master"},
		string(schema.PhaseFinalize):    {Command: "pipeline-finalize"},
	}
}

// Load loads configuration from environment variables with defaults.
//
// All environment variables:
//
// Production:
//   - PIPELINE_PRODUCTION_MODE: Enable production safety checks (default: false)
//   - PIPELINE_LOCAL_MODE: Acknowledge local/dev overrides (default: false)
//   - PIPELINE_REQUIRE_TLS: Require TLS for the OTLP collector (default: false)
//
// State store:
//   - PIPELINE_WORKDIR: State-store workdir setting, validated only (default: .pipeline)
//   - PIPELINE_LOCK_TIMEOUT: Advisory lock acquisition timeout (default: 30s)
//   - PIPELINE_MAX_BACKUPS: Retained state snapshots (default: 5)
//
// Retry:
//   - PIPELINE_RETRY_INITIAL_BACKOFF: First retry delay (default: 1s)
//   - PIPELINE_RETRY_MAX_BACKOFF: Retry delay ceiling (default: 2m)
//   - PIPELINE_RETRY_BACKOFF_MULTIPLIER: Exponential multiplier (default: 2.0)
//   - PIPELINE_RETRY_JITTER: Jitter fraction (default: 0.2)
//
// Learning:
//   - PIPELINE_LEARNING_MODE: observe|recommend|supervised|autonomous (default: observe)
//
// Preflight:
//   - PIPELINE_MIN_FREE_DISK_BYTES: Minimum free disk space (default: 1 GiB)
//   - PIPELINE_MIN_LOGICAL_CPUS: Minimum logical CPUs (default: 2)
//   - PIPELINE_MODEL_CACHE_DIR: Directory holding cached model weights (default: "")
//
// Hooks:
//   - PIPELINE_HOOK_VERDICT_CHECK: Enable the verdict-check hook (default: true)
//   - PIPELINE_HOOK_ASR_SPOT_CHECK: Enable the ASR spot-check hook (default: false)
//   - PIPELINE_HOOK_METADATA_GENERATION: Enable the metadata-generation hook (default: true)
//
// Telemetry:
//   - OTEL_ENABLE: Enable OpenTelemetry (default: false, requires OTEL collector)
//   - OTEL_SERVICE_NAME: Service name for traces (default: pipeline)
//
// Example:
//
//	cfg := config.Load()
//	fmt.Println("workdir:", cfg.StateStore.Workdir)
func Load() *Config {
	cfg := &Config{
		Production: ProductionConfig{
			Enabled:               getEnvBool("PIPELINE_PRODUCTION_MODE", false),
			LocalModeAcknowledged: getEnvBool("PIPELINE_LOCAL_MODE", false),
			RequireTLS:            getEnvBool("PIPELINE_REQUIRE_TLS", false),
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: getEnvBool("OTEL_ENABLE", false),
			ServiceName:     getEnvString("OTEL_SERVICE_NAME", "pipeline"),
		},
		StateStore: StateStoreConfig{
			Workdir:     getEnvString("PIPELINE_WORKDIR", ".pipeline"),
			LockTimeout: getEnvDuration("PIPELINE_LOCK_TIMEOUT", 30*time.Second),
			MaxBackups:  getEnvInt("PIPELINE_MAX_BACKUPS", 5),
		},
		Retry: RetryConfig{
			Budgets:           map[string]int{},
			InitialBackoff:    getEnvDuration("PIPELINE_RETRY_INITIAL_BACKOFF", time.Second),
			MaxBackoff:        getEnvDuration("PIPELINE_RETRY_MAX_BACKOFF", 2*time.Minute),
			BackoffMultiplier: getEnvFloat("PIPELINE_RETRY_BACKOFF_MULTIPLIER", 2.0),
			Jitter:            getEnvFloat("PIPELINE_RETRY_JITTER", 0.2),
		},
		Learning: LearningConfig{
			Mode: getEnvString("PIPELINE_LEARNING_MODE", string(schema.ModeObserve)),
		},
		Phases: PhasesConfig{
			Commands: DefaultPhaseCommands(),
		},
		Hooks: HooksConfig{
			VerdictCheck:       getEnvBool("PIPELINE_HOOK_VERDICT_CHECK", true),
			ASRSpotCheck:       getEnvBool("PIPELINE_HOOK_ASR_SPOT_CHECK", false),
			MetadataGeneration: getEnvBool("PIPELINE_HOOK_METADATA_GENERATION", true),
		},
		Preflight: PreflightConfig{
			MinFreeDiskBytes: uint64(getEnvInt("PIPELINE_MIN_FREE_DISK_BYTES", 1<<30)),
			MinLogicalCPUs:   getEnvInt("PIPELINE_MIN_LOGICAL_CPUS", 2),
			ModelCacheDir:    getEnvString("PIPELINE_MODEL_CACHE_DIR", ""),
		},
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StateStore.LockTimeout < 0 {
		return errors.New("state store lock timeout must not be negative")
	}
	if c.StateStore.MaxBackups < 1 {
		return errors.New("state store max backups must be at least 1")
	}

	switch schema.LearningMode(c.Learning.Mode) {
	case schema.ModeObserve, schema.ModeRecommend, schema.ModeSupervised, schema.ModeAutonomous:
	default:
		return fmt.Errorf("invalid PIPELINE_LEARNING_MODE: %q", c.Learning.Mode)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	if c.Preflight.ModelCacheDir != "" {
		if err := validatePath(c.Preflight.ModelCacheDir); err != nil {
			return fmt.Errorf("invalid PIPELINE_MODEL_CACHE_DIR: %w", err)
		}
	}

	if err := validatePath(c.StateStore.Workdir); err != nil {
		return fmt.Errorf("invalid PIPELINE_WORKDIR: %w", err)
	}

	if err := c.Production.Validate(); err != nil {
		return fmt.Errorf("production config validation failed: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// validatePath checks if a path is safe (no path traversal)
func validatePath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}

	if filepath.IsAbs(path) {
		clean := filepath.Clean(path)
		origDepth := strings.Count(path, string(filepath.Separator))
		cleanDepth := strings.Count(clean, string(filepath.Separator))

		if cleanDepth < origDepth-1 {
			return fmt.Errorf("path traversal detected: %s (resolves to %s)", path, clean)
		}
	}

	return nil
}
