package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/bookforge/pipeline/internal/advisor"
	"github.com/bookforge/pipeline/internal/config"
	"github.com/bookforge/pipeline/internal/logging"
	"github.com/bookforge/pipeline/internal/orchestrator"
	"github.com/bookforge/pipeline/internal/phaserunner"
	"github.com/bookforge/pipeline/internal/repair"
	"github.com/bookforge/pipeline/internal/retry"
	"github.com/bookforge/pipeline/internal/schema"
	"github.com/bookforge/pipeline/internal/statestore"
	"github.com/bookforge/pipeline/internal/telemetrylog"
)

func runRun(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	cancel, _ := flags.GetBool("cancel")
	pipelineJSON, _ := flags.GetString("pipeline-json")

	if cancel {
		return runCancel(cmd.Context(), args, pipelineJSON)
	}

	if len(args) != 1 {
		return badArgs("pipelinectl requires exactly one <input-path> argument")
	}
	inputPath := args[0]

	if pipelineJSON == "" {
		pipelineJSON = filepath.Join(filepath.Dir(inputPath), "pipeline.json")
	}

	configPath, _ := flags.GetString("config")
	cfg, err := loadConfig(configPath)
	if err != nil {
		return badArgs("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return badArgs("invalid configuration: %v", err)
	}

	ctx := cmd.Context()
	logger, tel, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = tel.Shutdown(ctx)
		_ = logger.Sync()
	}()

	runCfg, err := buildRunConfig(flags, cfg)
	if err != nil {
		return badArgs("%v", err)
	}
	runCfg.PipelineJSONPath = pipelineJSON

	store := statestore.Open(pipelineJSON,
		statestore.WithMaxBackups(cfg.StateStore.MaxBackups),
		statestore.WithLockTimeout(cfg.StateStore.LockTimeout),
	)

	fileID, err := ensureState(ctx, store, inputPath)
	if err != nil {
		if statestore.IsBusy(err) {
			return &cliError{code: exitBusy, err: err}
		}
		return &cliError{code: exitSchemaInvalid, err: err}
	}

	orc := buildOrchestrator(cfg, store, logger)
	orc.OnProgress(func(phase schema.PhaseLabel, status schema.PhaseStatus, message string) {
		logger.Info(ctx, "phase progress", zap.String("phase", string(phase)), zap.String("status", string(status)), zap.String("message", message))
	})

	stopCancelWatch := watchForCancellation(ctx, store, orc)
	defer stopCancelWatch()

	summary, err := orc.Run(ctx, fileID, runCfg)
	if err != nil {
		return &cliError{code: exitFailure, err: err}
	}

	fmt.Print(summary.String())

	switch summary.Outcome {
	case orchestrator.OutcomeSuccess:
		lastExitCode = exitSuccess
	case orchestrator.OutcomeCancelled:
		lastExitCode = exitCancelled
	default:
		lastExitCode = exitFailure
	}
	return nil
}

// buildRunConfig translates the CLI flags into an orchestrator.RunConfig,
// the same shape as spec.md §6.4 documents.
func buildRunConfig(flags *pflag.FlagSet, cfg *config.Config) (orchestrator.RunConfig, error) {
	phasesRaw, _ := flags.GetString("phases")
	voice, _ := flags.GetString("voice")
	engine, _ := flags.GetString("engine")
	maxRetries, _ := flags.GetInt("max-retries")
	learningModeRaw, _ := flags.GetString("learning-mode")
	repairFlag, _ := flags.GetBool("repair")
	resumeFlag, _ := flags.GetBool("resume")
	noResumeFlag, _ := flags.GetBool("no-resume")

	rc := orchestrator.RunConfig{
		VoiceOverride:      voice,
		EngineOverride:     schema.EngineName(engine),
		MaxRetriesOverride: maxRetries,
		RepairOnFailure:    repairFlag,
	}

	if phasesRaw != "" {
		for _, p := range strings.Split(phasesRaw, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			rc.Phases = append(rc.Phases, schema.PhaseLabel(p))
		}
	}

	switch {
	case resumeFlag && noResumeFlag:
		return rc, fmt.Errorf("--resume and --no-resume are mutually exclusive")
	case resumeFlag:
		t := true
		rc.Resume = &t
	case noResumeFlag:
		f := false
		rc.Resume = &f
	}

	mode := learningModeRaw
	if mode == "" {
		mode = cfg.Learning.Mode
	}
	switch schema.LearningMode(mode) {
	case schema.ModeObserve, schema.ModeRecommend, schema.ModeSupervised, schema.ModeAutonomous:
		rc.LearningMode = schema.LearningMode(mode)
	default:
		return rc, fmt.Errorf("unknown learning mode %q", mode)
	}

	return rc, nil
}

// ensureState loads the book's state document, creating it on first sight
// of inputPath per spec.md §3.3 ("PipelineState is created on first
// successful validation of an input").
func ensureState(ctx context.Context, store *statestore.Store, inputPath string) (string, error) {
	state, err := store.Read()
	switch {
	case err == nil:
		return state.FileID, nil
	case os.IsNotExist(err):
		fileID, src, derr := deriveSource(inputPath)
		if derr != nil {
			return "", fmt.Errorf("derive source for %s: %w", inputPath, derr)
		}
		state := schema.NewPipelineState(fileID, src)
		if cerr := store.Create(ctx, state); cerr != nil {
			return "", cerr
		}
		return fileID, nil
	default:
		return "", err
	}
}

// buildOrchestrator wires the full C1/C3/C4/C5/C6/C8 collaborator set
// behind a single Orchestrator, the way cmd/contextd/main.go's
// initDependencies/initServices split wires its own service graph.
func buildOrchestrator(cfg *config.Config, store *statestore.Store, logger *logging.Logger) *orchestrator.Orchestrator {
	workdir := filepath.Dir(store.Path())

	runner := phaserunner.New(filepath.Join(workdir, ".pipeline", "logs"))

	budgets := retry.Budgets{}
	for phase, n := range cfg.Retry.Budgets {
		budgets[schema.PhaseLabel(phase)] = n
	}
	retryEngine := retry.NewEngine(budgets)
	retryEngine.Backoff = retry.BackoffConfig{
		InitialBackoff:    cfg.Retry.InitialBackoff,
		MaxBackoff:        cfg.Retry.MaxBackoff,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		Jitter:            cfg.Retry.Jitter,
	}

	adv := advisor.New(schema.LearningMode(cfg.Learning.Mode))

	commands := make(map[schema.PhaseLabel]orchestrator.PhaseCommandSpec, len(cfg.Phases.Commands))
	for phase, spec := range cfg.Phases.Commands {
		commands[schema.PhaseLabel(phase)] = orchestrator.PhaseCommandSpec{Command: spec.Command, Args: spec.Args}
	}

	orc := orchestrator.New(store, runner, retryEngine, adv, commands)
	orc.Telemetry = telemetrylog.Open(workdir)
	orc.Journal = advisor.OpenJournal(workdir)
	orc.RepairLoop = buildRepairLoop(workdir, runner, store, commands)

	var preflight []orchestrator.PreflightCheck
	preflight = append(preflight, orchestrator.NewDiskSpaceGate(cfg.Preflight.MinFreeDiskBytes))
	preflight = append(preflight, orchestrator.NewCPUHeadroomGate(cfg.Preflight.MinLogicalCPUs))
	if cfg.Preflight.ModelCacheDir != "" {
		preflight = append(preflight, orchestrator.NewModelCacheGate(cfg.Preflight.ModelCacheDir))
	}
	orc.Preflight = preflight

	var hooks []orchestrator.Hook
	if cfg.Hooks.VerdictCheck {
		hooks = append(hooks, orchestrator.VerdictCheckHook{Workdir: workdir})
	}
	if cfg.Hooks.ASRSpotCheck {
		hooks = append(hooks, orchestrator.ASRSpotCheckHook{})
	}
	if cfg.Hooks.MetadataGeneration {
		hooks = append(hooks, orchestrator.MetadataGenerationHook{Workdir: workdir})
	}
	orc.Hooks = hooks

	return orc
}

// buildRepairLoop wires C5's post-run repair loop. Its strategies
// re-invoke the phase's own external command for a single chunk
// (spec.md §6.2's `--chunk_id=<n>` contract) rather than performing
// synthesis in-process: the pipeline core never speaks the TTS/DSP
// engines' native APIs directly.
func buildRepairLoop(workdir string, runner *phaserunner.Runner, store *statestore.Store, commands map[schema.PhaseLabel]orchestrator.PhaseCommandSpec) *repair.Loop {
	registry := repair.Open(workdir)

	subSplit := repair.SubSplit{Synthesize: func(ctx context.Context, in repair.ChunkInput) (string, map[string]float64, error) {
		return reSynthesizeChunk(ctx, runner, store, commands, in, in.Phase, in.Engine)
	}}

	engineSwitch := repair.EngineSwitch{
		AlternateEngines: alternateEngines,
		Synthesize: func(ctx context.Context, in repair.ChunkInput, engine schema.EngineName) (string, map[string]float64, error) {
			return reSynthesizeChunk(ctx, runner, store, commands, in, in.Phase, engine)
		},
	}

	textRewrite := repair.TextRewrite{
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "text-rewriter"}),
		Rewrite: externalRewrite,
		Synthesize: func(ctx context.Context, in repair.ChunkInput) (string, map[string]float64, error) {
			return reSynthesizeChunk(ctx, runner, store, commands, in, in.Phase, in.Engine)
		},
	}

	simplify := repair.Simplify{
		Strip: stripEditorialAnnotations,
		Synthesize: func(ctx context.Context, in repair.ChunkInput) (string, map[string]float64, error) {
			return reSynthesizeChunk(ctx, runner, store, commands, in, in.Phase, in.Engine)
		},
	}

	return &repair.Loop{
		Registry:   registry,
		Strategies: repair.DefaultOrder(subSplit, engineSwitch, textRewrite, simplify),
		Weights:    repair.DefaultConfidenceWeights(),
		Threshold:  repair.DefaultThreshold,
		Workdir:    workdir,
	}
}

// watchForCancellation polls the state document for an externally
// requested cancellation (written by a sibling `pipelinectl --cancel`
// invocation) and forwards it to orc.Cancel, since the two run as
// separate processes with no shared memory (spec.md §5 "Cancellation
// semantics").
func watchForCancellation(ctx context.Context, store *statestore.Store, orc *orchestrator.Orchestrator) func() {
	ticker := time.NewTicker(2 * time.Second)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				state, err := store.Read()
				if err != nil {
					continue
				}
				if state.Runtime.CancelRequested {
					orc.Cancel()
					return
				}
			}
		}
	}()

	return func() { close(done) }
}
