package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bookforge/pipeline/internal/schema"
	"github.com/bookforge/pipeline/internal/statestore"
)

// runCancel implements `--cancel`: it writes a cancellation request into
// the state document for a sibling orchestrator process to observe at its
// next poll (run.go's watchForCancellation), per spec.md §6.4 and
// §5's cross-process cancellation semantics. It never holds the write lock
// longer than the single patch application.
func runCancel(ctx context.Context, args []string, pipelineJSON string) error {
	if pipelineJSON == "" {
		if len(args) != 1 {
			return badArgs("--cancel requires --pipeline-json=<path> or a single <input-path> argument")
		}
		pipelineJSON = filepath.Join(filepath.Dir(args[0]), "pipeline.json")
	}

	store := statestore.Open(pipelineJSON)
	state, err := store.Read()
	if err != nil {
		if os.IsNotExist(err) {
			return badArgs("no state document at %s to cancel", pipelineJSON)
		}
		if statestore.IsBusy(err) {
			return &cliError{code: exitBusy, err: err}
		}
		return &cliError{code: exitSchemaInvalid, err: err}
	}

	_, err = store.Apply(ctx, state.Runtime.CurrentPhase, "cancel_request", func(s *schema.PipelineState) error {
		s.Runtime.CancelRequested = true
		return nil
	})
	if err != nil {
		if statestore.IsBusy(err) {
			return &cliError{code: exitBusy, err: err}
		}
		return &cliError{code: exitFailure, err: err}
	}

	fmt.Printf("cancellation requested for %s\n", pipelineJSON)
	lastExitCode = exitSuccess
	return nil
}
