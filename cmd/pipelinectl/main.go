// Command pipelinectl drives one book (or, in batch mode, several) through
// the audiobook production pipeline: text extraction, chunking, speech
// synthesis, audio enhancement, and mastering. It is the orchestrator's
// (C7) sole entrypoint, wiring the state store (C1), phase runner (C3),
// retry engine (C4), repair loop (C5), policy advisor (C6), and telemetry
// log (C8) behind the CLI surface described in spec.md §6.4.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookforge/pipeline/internal/config"
	"github.com/bookforge/pipeline/internal/logging"
	"github.com/bookforge/pipeline/internal/telemetry"
)

// Exit codes from spec.md §6.4.
const (
	exitSuccess       = 0
	exitFailure       = 1
	exitBadArgs       = 2
	exitBusy          = 3
	exitSchemaInvalid = 4
	exitCancelled     = 5
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return exitCodeFor(err)
	}
	return lastExitCode
}

// lastExitCode lets RunE functions report a specific spec §6.4 exit code
// without cobra's default "any error -> 1" collapsing it. Commands that
// complete without a Go error set this explicitly.
var lastExitCode = exitSuccess

var rootCmd = &cobra.Command{
	Use:     "pipelinectl <input-path>",
	Short:   "Drive an audiobook through the production pipeline",
	Version: version,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runRun,
}

func init() {
	rootCmd.Flags().String("pipeline-json", "", "target state document (default derived from input path)")
	rootCmd.Flags().String("phases", "", "comma-separated subset of phases to run (default: all)")
	rootCmd.Flags().Bool("resume", false, "force resume behavior")
	rootCmd.Flags().Bool("no-resume", false, "force a fresh run, ignoring existing chunk progress")
	rootCmd.Flags().String("voice", "", "user override: voice name for applicable phases")
	rootCmd.Flags().String("engine", "", "user override: engine name for applicable phases")
	rootCmd.Flags().Int("max-retries", 0, "override the default per-phase retry budget")
	rootCmd.Flags().String("learning-mode", "", "observe|recommend|supervised|autonomous (default: observe, or PIPELINE_LEARNING_MODE)")
	rootCmd.Flags().Bool("repair", false, "enable the opt-in post-run chunk repair loop")
	rootCmd.Flags().Bool("cancel", false, "signal cancellation to a running instance using the same state document")
	rootCmd.Flags().String("config", "", "path to a YAML config file (layered over env and defaults)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(batchCmd)
}

// loadConfig resolves the layered configuration (defaults <- file <- env),
// the same precedence internal/config documents for every other entrypoint
// that depends on this package.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadWithFile(configPath)
	}
	return config.Load(), nil
}

// bootstrap wires the logger and telemetry provider every subcommand
// needs, mirroring cmd/contextd/main.go's initLogger/initDependencies
// split.
func bootstrap(ctx context.Context, cfg *config.Config) (*logging.Logger, *telemetry.Telemetry, error) {
	logCfg := logging.NewDefaultConfig()
	logCfg.Output.OTEL = cfg.Observability.EnableTelemetry

	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = cfg.Observability.EnableTelemetry
	telCfg.ServiceName = cfg.Observability.ServiceName
	if cfg.Observability.OTLPEndpoint != "" {
		telCfg.Endpoint = cfg.Observability.OTLPEndpoint
		telCfg.Insecure = cfg.Observability.OTLPInsecure
	}
	telCfg.Protocol = cfg.Observability.OTLPProtocol
	telCfg.TLSSkipVerify = cfg.Observability.OTLPTLSSkipVerify

	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init telemetry: %w", err)
	}

	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	logger.Info(ctx, "pipelinectl starting",
		zap.String("version", version),
		zap.Bool("telemetry_enabled", tel.IsEnabled()))

	return logger, tel, nil
}

func exitCodeFor(err error) int {
	if ce, ok := err.(*cliError); ok {
		return ce.code
	}
	return exitFailure
}

// cliError pairs an error with the spec §6.4 exit code it should produce.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func badArgs(format string, args ...interface{}) error {
	return &cliError{code: exitBadArgs, err: fmt.Errorf(format, args...)}
}
