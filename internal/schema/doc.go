// Package schema defines the canonical on-disk state document for a single
// book's audiobook production run: its phase blocks, chunk records, failure
// provenance, and the versioned structural/strict validation that every
// phase and the orchestrator read and write through.
package schema
