package statestore

import (
	"errors"
	"fmt"

	"github.com/bookforge/pipeline/internal/schema"
)

// Error wraps a failure with the schema.FailureCategory taxonomy from §7,
// mirroring the teacher's WorkflowError (operation + severity + cause).
type Error struct {
	Category  schema.FailureCategory
	Operation string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("statestore: %s (%s)", e.Operation, e.Category)
	}
	return fmt.Sprintf("statestore: %s (%s): %v", e.Operation, e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(category schema.FailureCategory, op string, err error) *Error {
	return &Error{Category: category, Operation: op, Err: err}
}

// ErrBusy is returned when the write lock could not be acquired before the
// configured timeout.
var ErrBusy = errors.New("state document lock busy")

// ErrCorruptState is returned when a document fails validation even after
// canonicalization and no backup restores a valid document.
var ErrCorruptState = errors.New("state document corrupt and unrecoverable from backups")

// IsBusy reports whether err (or a wrapped cause) indicates lock contention.
func IsBusy(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Category == schema.CategoryBusy
	}
	return errors.Is(err, ErrBusy)
}

// IsInvalidPatch reports whether err indicates a rejected schema-invalid
// write.
func IsInvalidPatch(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Category == schema.CategoryInvalidPatch
	}
	return false
}
