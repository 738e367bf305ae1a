// Package statestore implements the atomic, schema-validated state document
// that every phase and the orchestrator read and write: load/save/patch,
// cross-process advisory locking, transaction logging, and backup rotation.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/bookforge/pipeline/internal/schema"
)

// Store owns a single book's pipeline.json document and its co-located
// lock, transaction log, and backup directory. It exposes the narrow
// surface called for by the design notes (§9: "state store exposes narrow
// methods rather than being held by advisor").
type Store struct {
	path        string
	lockPath    string
	backupDir   string
	txnLogPath  string
	maxBackups  int
	lockTimeout time.Duration
	clock       func() time.Time

	lock *flock.Flock
}

// Option configures a Store at Open time.
type Option func(*Store)

// WithMaxBackups overrides DefaultMaxBackups.
func WithMaxBackups(n int) Option {
	return func(s *Store) { s.maxBackups = n }
}

// WithLockTimeout overrides the default write-lock acquisition timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// Open returns a Store rooted at path (typically <workdir>/pipeline.json).
// It does not read or create the document; call Read to load it.
func Open(path string, opts ...Option) *Store {
	dir := filepath.Dir(path)
	pipelineDir := filepath.Join(dir, ".pipeline")

	s := &Store{
		path:        path,
		lockPath:    path + ".lock",
		backupDir:   filepath.Join(pipelineDir, "backups"),
		txnLogPath:  filepath.Join(pipelineDir, "transactions.log"),
		maxBackups:  DefaultMaxBackups,
		lockTimeout: 30 * time.Second,
		clock:       defaultClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lock = flock.New(s.lockPath)
	return s
}

// Path returns the document path this store manages.
func (s *Store) Path() string { return s.path }

// Read loads and canonicalizes the current document. If the document does
// not exist, it returns (nil, os.ErrNotExist). If the document is corrupt
// even after canonicalization, Read attempts recovery from the most recent
// backup before giving up with ErrCorruptState, per spec §4.1.
//
// Read does not require the write lock: spec §9 calls for lock-free status
// reads so a sibling batch worker or a `pipelinectl status` invocation is
// never blocked behind a long-running phase.
func (s *Store) Read() (*schema.PipelineState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, newErr(schema.CategoryIoError, "read", err)
	}

	state, err := decodeAndValidate(data)
	if err == nil {
		return state, nil
	}

	backupData, backupName, backupErr := s.latestBackup()
	if backupErr != nil || backupData == nil {
		return nil, newErr(schema.CategoryCorruptState, "read", fmt.Errorf("%w: %v (no usable backup)", ErrCorruptState, err))
	}
	recovered, recoverErr := decodeAndValidate(backupData)
	if recoverErr != nil {
		return nil, newErr(schema.CategoryCorruptState, "read", fmt.Errorf("%w: primary invalid (%v), backup %s also invalid (%v)", ErrCorruptState, err, backupName, recoverErr))
	}
	return recovered, nil
}

func decodeAndValidate(data []byte) (*schema.PipelineState, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	state, err := schema.Canonicalize(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	if err := schema.Validate(state); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return state, nil
}

// Patch mutates a PipelineState in place and returns an error to abort the
// write (the prior on-disk state is left untouched).
type Patch func(*schema.PipelineState) error

// WithWriteLock acquires the advisory file lock, invokes fn, and releases
// the lock unconditionally. Per spec §9, callers must keep fn's critical
// section short: phase execution (C3) must happen outside any WithWriteLock
// call, never inside one.
func (s *Store) WithWriteLock(ctx context.Context, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil || !locked {
		return newErr(schema.CategoryBusy, "acquire_lock", ErrBusy)
	}
	defer s.lock.Unlock()

	return fn()
}

// Apply performs the read → modify → write-temp → fsync → atomic-rename →
// append-txn-log sequence (spec §4.1) for a single patch, under the write
// lock. It fails if the document does not exist; Create writes the first
// version.
func (s *Store) Apply(ctx context.Context, phase schema.PhaseLabel, op string, patch Patch) (*schema.PipelineState, error) {
	var result *schema.PipelineState

	err := s.WithWriteLock(ctx, func() error {
		current, err := s.loadForPatch()
		if err != nil {
			return err
		}

		before, err := json.Marshal(current)
		if err != nil {
			return newErr(schema.CategoryIoError, "marshal_before", err)
		}

		if err := patch(current); err != nil {
			return newErr(schema.CategoryInvalidPatch, "patch", err)
		}

		if err := schema.Validate(current); err != nil {
			return newErr(schema.CategoryInvalidPatch, "validate", err)
		}

		after, err := json.MarshalIndent(current, "", "  ")
		if err != nil {
			return newErr(schema.CategoryIoError, "marshal_after", err)
		}

		if err := writeAtomic(s.path, after); err != nil {
			return newErr(schema.CategoryIoError, "write", err)
		}

		if err := s.AppendTransaction(TransactionEntry{
			Timestamp:  s.clock(),
			Phase:      phase,
			Op:         op,
			BeforeHash: hashDocument(before),
			AfterHash:  hashDocument(after),
		}); err != nil {
			// The write already committed; a lost transaction log line is a
			// diagnostics gap, not a correctness violation, so the error is
			// returned alongside the committed state rather than rolled back.
			result = current
			return fmt.Errorf("append transaction log: %w", err)
		}

		if isTerminalSuccessPatch(current, phase) {
			if err := s.rotateBackup(after); err != nil {
				result = current
				return fmt.Errorf("rotate backup: %w", err)
			}
		}

		result = current
		return nil
	})

	return result, err
}

func (s *Store) loadForPatch() (*schema.PipelineState, error) {
	state, err := s.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newErr(schema.CategoryIoError, "load_for_patch", fmt.Errorf("document does not exist, use Create first: %w", err))
		}
		return nil, err
	}
	return state, nil
}

// Create writes an initial document for a book that has never been seen
// before. It fails if a document already exists at Path().
func (s *Store) Create(ctx context.Context, state *schema.PipelineState) error {
	return s.WithWriteLock(ctx, func() error {
		if _, err := os.Stat(s.path); err == nil {
			return newErr(schema.CategoryInvalidPatch, "create", fmt.Errorf("document already exists at %s", s.path))
		}
		if err := schema.Validate(state); err != nil {
			return newErr(schema.CategoryInvalidPatch, "create", err)
		}
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return newErr(schema.CategoryIoError, "marshal", err)
		}
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return newErr(schema.CategoryIoError, "mkdir", err)
		}
		if err := writeAtomic(s.path, data); err != nil {
			return newErr(schema.CategoryIoError, "write", err)
		}
		return s.AppendTransaction(TransactionEntry{
			Timestamp:  s.clock(),
			Op:         "create",
			BeforeHash: "",
			AfterHash:  hashDocument(data),
		})
	})
}

// CanReuse reports whether phase may be skipped for the given inputsHash:
// the phase's prior block is success/reused with a matching inputs_hash and
// every referenced artifact still exists and hash-matches (spec §4.1, P7).
func (s *Store) CanReuse(state *schema.PipelineState, phase schema.PhaseLabel, inputsHash string) bool {
	block, ok := state.Phases[phase]
	if !ok || block == nil {
		return false
	}
	if block.Status != schema.StatusSuccess && block.Status != schema.StatusReused {
		return false
	}
	if block.InputsHash != inputsHash {
		return false
	}
	for _, artifact := range block.Artifacts {
		info, err := os.Stat(artifact.Path)
		if err != nil || info.Size() == 0 {
			return false
		}
		if artifact.Hash != "" {
			data, err := os.ReadFile(artifact.Path)
			if err != nil || hashDocument(data) != artifact.Hash {
				return false
			}
		}
	}
	return true
}

// isTerminalSuccessPatch reports whether phase's block is in success state
// after the patch, the trigger point for backup rotation. Every such write
// rotates a backup, not only the one that made the phase succeed (spec §4.1: "a
// rotating set of the last N successful documents is retained as backups").
func isTerminalSuccessPatch(state *schema.PipelineState, phase schema.PhaseLabel) bool {
	block, ok := state.Phases[phase]
	return ok && block != nil && block.Status == schema.StatusSuccess
}
