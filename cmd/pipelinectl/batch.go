package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bookforge/pipeline/internal/orchestrator"
	"github.com/bookforge/pipeline/internal/schema"
	"github.com/bookforge/pipeline/internal/statestore"
)

var batchCmd = &cobra.Command{
	Use:   "batch <input-path>...",
	Short: "Process several independent books with bounded host-capacity parallelism",
	Long: `batch drives each listed book through its own orchestrator and state
document, honoring spec.md §5's "Batch mode": books run with bounded
parallelism sized to host capacity, coordinated only by a shared semaphore
and the append-only telemetry log. Each book's own state document keeps
its own lock.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().Int64("max-concurrent", 2, "maximum books processed at once")
	batchCmd.Flags().String("learning-mode", "", "observe|recommend|supervised|autonomous (default: observe, or PIPELINE_LEARNING_MODE)")
	batchCmd.Flags().Bool("repair", false, "enable the opt-in post-run chunk repair loop for every book")
	batchCmd.Flags().String("config", "", "path to a YAML config file (layered over env and defaults)")
}

func runBatch(cmd *cobra.Command, inputPaths []string) error {
	flags := cmd.Flags()
	maxConcurrent, _ := flags.GetInt64("max-concurrent")
	repairFlag, _ := flags.GetBool("repair")
	learningModeRaw, _ := flags.GetString("learning-mode")
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

	mode := learningModeRaw
	if mode == "" {
		mode = cfg.Learning.Mode
	}

	jobs := make([]orchestrator.BatchJob, 0, len(inputPaths))
	for _, inputPath := range inputPaths {
		pipelineJSON := filepath.Join(filepath.Dir(inputPath), "pipeline.json")
		store := statestore.Open(pipelineJSON,
			statestore.WithMaxBackups(cfg.StateStore.MaxBackups),
			statestore.WithLockTimeout(cfg.StateStore.LockTimeout),
		)

		fileID, err := ensureState(ctx, store, inputPath)
		if err != nil {
			fmt.Printf("%s: failed to prepare state: %v\n", inputPath, err)
			continue
		}

		orc := buildOrchestrator(cfg, store, logger)
		runCfg := orchestrator.RunConfig{
			LearningMode:    schema.LearningMode(mode),
			RepairOnFailure: repairFlag,
		}

		jobs = append(jobs, orchestrator.BatchJob{
			FileID: fileID,
			Config: runCfg,
			Run:    orc.Run,
		})
	}

	runner := orchestrator.NewBatchRunner(maxConcurrent)
	results := runner.Run(ctx, jobs)

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			fmt.Printf("%s: error: %v\n", r.FileID, r.Err)
			continue
		}
		fmt.Print(r.Summary.String())
		if r.Summary.Outcome != orchestrator.OutcomeSuccess {
			failures++
		}
	}

	if failures > 0 {
		lastExitCode = exitFailure
	} else {
		lastExitCode = exitSuccess
	}
	return nil
}
