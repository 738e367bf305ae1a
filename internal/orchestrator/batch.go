package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchJob is one book to process in a batch invocation.
type BatchJob struct {
	FileID string
	Config RunConfig
	Run    func(ctx context.Context, fileID string, cfg RunConfig) (*RunSummary, error)
}

// BatchRunner drives independent books with bounded parallelism, sized to
// host capacity (spec.md §5 "Batch mode"). Cross-book coordination is
// limited to this semaphore and the shared append-only telemetry log;
// each book's own state document has its own lock.
type BatchRunner struct {
	sem *semaphore.Weighted
}

// NewBatchRunner returns a BatchRunner allowing up to maxConcurrent books
// to run at once.
func NewBatchRunner(maxConcurrent int64) *BatchRunner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &BatchRunner{sem: semaphore.NewWeighted(maxConcurrent)}
}

// BatchResult pairs a job's file id with its outcome.
type BatchResult struct {
	FileID  string
	Summary *RunSummary
	Err     error
}

// Run executes every job, blocking until all have completed or ctx is
// cancelled. Acquiring the semaphore is itself cancellable: a job that
// never gets a slot before ctx is done is reported with ctx.Err().
func (b *BatchRunner) Run(ctx context.Context, jobs []BatchJob) []BatchResult {
	results := make([]BatchResult, len(jobs))
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job BatchJob) {
			defer wg.Done()

			if err := b.sem.Acquire(ctx, 1); err != nil {
				results[i] = BatchResult{FileID: job.FileID, Err: err}
				return
			}
			defer b.sem.Release(1)

			summary, err := job.Run(ctx, job.FileID, job.Config)
			results[i] = BatchResult{FileID: job.FileID, Summary: summary, Err: err}
		}(i, job)
	}

	wg.Wait()
	return results
}
