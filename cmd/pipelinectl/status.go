package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bookforge/pipeline/internal/schema"
	"github.com/bookforge/pipeline/internal/statestore"
)

var statusCmd = &cobra.Command{
	Use:   "status <pipeline-json>",
	Short: "Print a book's current phase status without taking the write lock",
	Long: `status reads the state document directly (no write lock is taken, per
spec.md §9's "lock-free status reads" design note) and prints each phase's
status and chunk progress.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	store := statestore.Open(args[0])
	state, err := store.Read()
	if err != nil {
		return &cliError{code: exitSchemaInvalid, err: err}
	}

	fmt.Printf("file_id=%s schema_version=%d\n", state.FileID, state.SchemaVersion)
	for _, phase := range schema.OrderedPhases() {
		block := state.Phases[phase]
		if block == nil {
			fmt.Printf("  %-10s %s\n", phase, schema.StatusPending)
			continue
		}
		if len(block.Chunks) > 0 {
			succeeded := 0
			for _, c := range block.Chunks {
				if c != nil && (c.Status == schema.ChunkSuccess || c.Status == schema.ChunkRepaired) {
					succeeded++
				}
			}
			fmt.Printf("  %-10s %s (chunks %d/%d, attempt %d)\n", phase, block.Status, succeeded, len(block.Chunks), block.Attempt)
			continue
		}
		fmt.Printf("  %-10s %s (attempt %d)\n", phase, block.Status, block.Attempt)
	}

	if state.Runtime.LastError != nil {
		fmt.Printf("last_error: %s: %s\n", state.Runtime.LastError.Category, state.Runtime.LastError.Message)
	}
	lastExitCode = exitSuccess
	return nil
}
