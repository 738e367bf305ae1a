// Package logging provides structured logging for the pipeline orchestrator
// and its phase runners, with OpenTelemetry log bridging.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry log bridge)
//   - Automatic context field injection (trace_id, file_id, phase, run.id)
//   - Defense-in-depth secret redaction (API keys, credentials in phase config)
//   - Level-aware sampling (errors never sampled — a dropped failure log
//     can hide the one clue a repair policy needed)
//
// A production run walks a book through seven phases, any of which may
// retry, fail, or hand off to the repair flow. Every log line written
// while a book is in flight is tagged with enough context — file_id,
// phase, run.id, attempt.id — to reconstruct what happened to that book
// without cross-referencing pipeline.json by timestamp.
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx := logging.WithBook(ctx, &logging.Book{FileID: "f_0001", Phase: schema.PhaseSynthesis})
//	ctx = logging.WithRunID(ctx, "run_7f3a")
//	logger.Info(ctx, "phase completed", zap.Duration("duration", d))
//
// Output includes automatic correlation:
//
//	{
//	  "ts": "2026-07-31T10:15:30Z",
//	  "level": "info",
//	  "msg": "phase completed",
//	  "trace_id": "abc123",
//	  "file_id": "f_0001",
//	  "phase": "phase4",
//	  "run.id": "run_7f3a",
//	  "duration": "45ms"
//	}
//
// # Configuration
//
// pipelinectl builds the logging Config from NewDefaultConfig. It is not
// read from the YAML config file or from environment variables.
//
// # Secret Redaction
//
// Phase invocations carry engine API keys and storage credentials through
// their environment; those never belong in a log line. Secrets are
// redacted at multiple layers:
//  1. Domain primitives (config.Secret type)
//  2. Encoder-level field name filtering
//  3. Encoder-level pattern matching
//
// Use helpers for manual redaction:
//
//	logger.Info(ctx, "engine invocation prepared",
//	    logging.RedactedString("api_key", key))
//
// # Sampling
//
// A batch run can drive hundreds of chunks through phase3/phase4 at once;
// level-aware sampling keeps per-chunk logging from drowning the terminal
// report without hiding failures. One sampler covers every level below
// Error and uses the Info entry of Sampling.Levels (by default the first
// 100 entries per tick, then 1 every 10); the Trace, Debug and Warn
// entries are not read. Error and above are never sampled.
//
// Disable for debugging a single book end-to-end:
//
//	cfg.Sampling.Enabled = false
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//	tl.AssertNoSecrets(t)
//
// # Concurrency Safety
//
// Logger is safe for concurrent use. Child loggers (With, Named) are
// independent and do not affect parent or siblings — needed when the
// batch runner drives several books through phaserunner concurrently.
//
// # Performance
//
// Logging overhead: <1ms per entry in hot paths.
// A disabled Trace call returns before building context fields; Debug
// through Fatal build the field slice before zap's level check.
// Sampling reduces volume by ~90% in high-chunk-count batch runs.
package logging
