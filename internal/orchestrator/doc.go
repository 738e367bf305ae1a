// Package orchestrator is the top-level sequencer (C7): per-file
// lifecycle, phase sequencing, hook invocation, run summary.
//
// # Architecture
//
// Each book moves through a fixed lifecycle:
//
//	Initialized → Phase1 → Phase2 → Phase3 → Phase4 → Phase5 → [Phase5.5] → Phase6 → Phase7 → Done | Failed
//
// For each phase the orchestrator:
//
//  1. Reads the state document without taking the write lock.
//  2. Asks the retry engine for a skip/resume/fresh decision; a skipped
//     phase ends here.
//  3. Consults the advisor for overrides, checks them against the safety
//     gates, and writes an approved override into state.
//  4. Invokes the phase runner; no lock is held while the child runs.
//  5. Re-reads state, classifies the outcome, commits it, and asks the
//     retry engine whether to retry.
//  6. On chunk-level failures, optionally schedules the repair loop.
//  7. Emits telemetry records along the way.
//
// Each state write takes the write lock for that write only. The lock is
// not held across these steps, so another writer can change the document
// between them.
//
// # Hooks
//
// Hooks run after a phase completes: post-phase verdict checks, ASR
// spot-checks, metadata generation. Hooks never block pipeline progress;
// their outputs are additive only.
//
// # Cancellation
//
// A cancellation signal causes the orchestrator to request graceful
// termination of the running child phase, persist a cancelled phase
// status, clear single-run overrides, and release all locks. A cancelled
// run resumes at chunk granularity on the next invocation.
package orchestrator
