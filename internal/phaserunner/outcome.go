package phaserunner

import (
	"os"

	"github.com/bookforge/pipeline/internal/schema"
)

// Outcome is the classified result of one phase attempt.
type Outcome struct {
	Success   bool
	Category  schema.FailureCategory
	Message   string
	ExitCode  int
}

// Classify implements the "robust check" from spec.md §4.3: a phase is
// successful iff all of (a) exit code 0, (b) its block reports status ==
// success, (c) successful-chunk count equals the expected total, (d) every
// referenced artifact exists with non-zero size. Exit code 0 alone is never
// sufficient — this function is the one place that guard lives.
func Classify(exitCode int, phase schema.PhaseLabel, block *schema.PhaseBlock, expectedChunks int) Outcome {
	if exitCode != 0 {
		return Outcome{
			Success:  false,
			Category: schema.CategoryChildExit,
			Message:  "phase process exited non-zero",
			ExitCode: exitCode,
		}
	}
	if block == nil {
		return Outcome{
			Success:  false,
			Category: schema.CategoryArtifactMissing,
			Message:  "phase exited 0 but produced no state block",
			ExitCode: exitCode,
		}
	}
	if block.Status != schema.StatusSuccess {
		return Outcome{
			Success:  false,
			Category: categoryForBlockStatus(block),
			Message:  "phase block status is not success",
			ExitCode: exitCode,
		}
	}

	successCount := 0
	var failedChunks []int
	for id, chunk := range block.Chunks {
		if chunk != nil && (chunk.Status == schema.ChunkSuccess || chunk.Status == schema.ChunkRepaired) {
			successCount++
		} else {
			failedChunks = append(failedChunks, id)
		}
	}
	if expectedChunks > 0 && successCount != expectedChunks {
		return Outcome{
			Success:  false,
			Category: schema.CategoryChunkFailure,
			Message:  "successful chunk count does not match expected total",
			ExitCode: exitCode,
		}
	}

	for _, artifact := range block.Artifacts {
		info, err := os.Stat(artifact.Path)
		if err != nil {
			return Outcome{
				Success:  false,
				Category: schema.CategoryArtifactMissing,
				Message:  "declared artifact does not exist: " + artifact.Path,
				ExitCode: exitCode,
			}
		}
		if info.Size() == 0 {
			return Outcome{
				Success:  false,
				Category: schema.CategoryArtifactMissing,
				Message:  "declared artifact is empty: " + artifact.Path,
				ExitCode: exitCode,
			}
		}
	}

	return Outcome{Success: true, ExitCode: exitCode}
}

func categoryForBlockStatus(block *schema.PhaseBlock) schema.FailureCategory {
	if block.LastError != nil {
		return block.LastError.Category
	}
	return schema.CategoryChildExit
}

// Result is the structured exit channel a phase may write alongside its
// artifacts (spec.md §9 "failure categorization from child output"):
// `result.json` with {status, category, message}. The runner parses it
// into RunResult.StructuredResult; Classify does not use its fields, and
// the orchestrator only checks whether it is nil.
type Result struct {
	Status   string `json:"status"`
	Category string `json:"category"`
	Message  string `json:"message"`
}
