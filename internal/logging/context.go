// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bookforge/pipeline/internal/schema"
)

// ContextFields extracts correlation data from context. Every log line
// written while a book is in flight carries enough of these to join it
// back to a pipeline.json document and a telemetry record without
// grepping timestamps.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 8)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	// Book/run context
	if book := BookFromContext(ctx); book != nil {
		fields = append(fields,
			zap.String("file_id", book.FileID),
			zap.String("phase", string(book.Phase)),
		)
		if book.BatchID != "" {
			fields = append(fields, zap.String("batch_id", book.BatchID))
		}
	}

	// Run ID (one orchestrator Run invocation)
	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}

	// Phase attempt ID (one phaserunner.Run invocation)
	if attemptID := AttemptIDFromContext(ctx); attemptID != "" {
		fields = append(fields, zap.String("attempt.id", attemptID))
	}

	return fields
}

// Context key types
type bookCtxKey struct{}
type runCtxKey struct{}
type attemptCtxKey struct{}

// Book identifies which book a log line or span belongs to: its file_id,
// the phase currently executing, and — when the run was launched by the
// batch runner (spec.md §5) — the batch invocation it is part of.
type Book struct {
	FileID  string
	Phase   schema.PhaseLabel
	BatchID string
}

// Validation constants
const (
	maxBookFieldLen = 64
	maxIDLen        = 128
)

var (
	// bookFieldPattern allows alphanumeric, hyphen, underscore, and dot
	// (phase labels include "phase5.5").
	bookFieldPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	// idPattern allows alphanumeric, hyphen, underscore with optional prefix
	idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// validateBookField validates a book field (file_id, phase, batch_id).
func validateBookField(field, name string) error {
	if field == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(field) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(field) > maxBookFieldLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxBookFieldLen)
	}
	if !bookFieldPattern.MatchString(field) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore, dot)", name)
	}
	return nil
}

// validateID validates a run or attempt ID.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// BookFromContext extracts the book (file_id/phase/batch_id) from context.
func BookFromContext(ctx context.Context) *Book {
	if b, ok := ctx.Value(bookCtxKey{}).(*Book); ok {
		return b
	}
	return nil
}

// WithBook adds book context to ctx.
// Panics if book is nil or contains invalid field values. BatchID is
// optional (empty outside batch mode) and is not validated when absent.
func WithBook(ctx context.Context, book *Book) context.Context {
	if book == nil {
		panic("logging: book cannot be nil")
	}
	if err := validateBookField(book.FileID, "book.FileID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	if err := validateBookField(string(book.Phase), "book.Phase"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	if book.BatchID != "" {
		if err := validateBookField(book.BatchID, "book.BatchID"); err != nil {
			panic(fmt.Sprintf("logging: %v", err))
		}
	}
	return context.WithValue(ctx, bookCtxKey{}, book)
}

// RunIDFromContext extracts the orchestrator run ID from context — the
// correlation id for one Orchestrator.Run invocation from start through
// its terminal RunSummary.
func RunIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(runCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithRunID adds the orchestrator run ID to context.
// Panics if runID is empty or contains invalid characters.
func WithRunID(ctx context.Context, runID string) context.Context {
	if err := validateID(runID, "runID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// AttemptIDFromContext extracts the phase attempt ID from context — the
// correlation id for one phaserunner.Runner.Run child-process invocation.
func AttemptIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(attemptCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithAttemptID adds the phase attempt ID to context.
// Panics if attemptID is empty or contains invalid characters.
func WithAttemptID(ctx context.Context, attemptID string) context.Context {
	if err := validateID(attemptID, "attemptID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, attemptCtxKey{}, attemptID)
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
