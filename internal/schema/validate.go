package schema

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError collects every structural or strict violation found in a
// single pass, instead of failing on the first one, so callers can report
// a complete diagnosis in one shot.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("state document invalid: %s", strings.Join(e.Problems, "; "))
}

func (e *ValidationError) add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ValidationError) nilIfEmpty() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// Validate performs structural validation: required fields are present,
// enums hold known values, and chunk ids match their map keys and respect
// the phase's id base. Phase ordering is checked only by StrictValidate.
// This is the check every read and write path applies unconditionally.
func Validate(s *PipelineState) error {
	errs := &ValidationError{}

	if s == nil {
		errs.add("state document is nil")
		return errs.nilIfEmpty()
	}
	if s.FileID == "" {
		errs.add("file_id is required")
	}
	if s.SchemaVersion <= 0 {
		errs.add("schema_version must be positive, got %d", s.SchemaVersion)
	}
	if s.Source.Path == "" {
		errs.add("source.path is required")
	}

	validPhase := map[PhaseLabel]bool{}
	for _, p := range OrderedPhases() {
		validPhase[p] = true
	}

	for label, block := range s.Phases {
		if !validPhase[label] {
			errs.add("phase %q is not a recognized phase label", label)
			continue
		}
		if block == nil {
			errs.add("phase %q has a nil block", label)
			continue
		}
		if !isKnownPhaseStatus(block.Status) {
			errs.add("phase %q has unknown status %q", label, block.Status)
		}
		if block.Attempt < 0 {
			errs.add("phase %q has negative attempt count %d", label, block.Attempt)
		}
		base := ChunkIDBaseForPhase(label)
		for id, chunk := range block.Chunks {
			if chunk == nil {
				errs.add("phase %q chunk %d is nil", label, id)
				continue
			}
			if chunk.ChunkID != id {
				errs.add("phase %q chunk map key %d does not match ChunkID %d", label, id, chunk.ChunkID)
			}
			if int(base) == 1 && id < 1 {
				errs.add("phase %q is one-based but has chunk id %d", label, id)
			}
			if int(base) == 0 && id < 0 {
				errs.add("phase %q has negative chunk id %d", label, id)
			}
			if !isKnownChunkStatus(chunk.Status) {
				errs.add("phase %q chunk %d has unknown status %q", label, id, chunk.Status)
			}
			for i, f := range chunk.Failures {
				if f.Attempt < 1 {
					errs.add("phase %q chunk %d failure[%d] has non-positive attempt %d", label, id, i, f.Attempt)
				}
			}
		}
	}

	for i, o := range s.Overrides {
		if !validPhase[o.TargetPhase] {
			errs.add("override[%d] targets unrecognized phase %q", i, o.TargetPhase)
		}
		if o.Parameter == "" {
			errs.add("override[%d] has empty parameter name", i)
		}
		if o.TTL != TTLSingleRun && o.TTL != TTLPersistent {
			errs.add("override[%d] has unknown ttl %q", i, o.TTL)
		}
	}

	return errs.nilIfEmpty()
}

// StrictValidate runs Validate and additionally enforces the stronger
// invariants that only hold once a run is considered authoritative: phase
// prerequisites are respected (no phase marked success while an upstream
// phase is not success/reused/skipped), and chunk completeness within a
// phase marked success.
func StrictValidate(s *PipelineState) error {
	if err := Validate(s); err != nil {
		return err
	}

	errs := &ValidationError{}
	ordered := OrderedPhases()

	satisfied := func(status PhaseStatus) bool {
		return status == StatusSuccess || status == StatusReused || status == StatusSkipped
	}

	for i, label := range ordered {
		block, ok := s.Phases[label]
		if !ok || block.Status == StatusPending {
			continue
		}
		if !satisfied(block.Status) {
			continue
		}
		for j := 0; j < i; j++ {
			upstream, ok := s.Phases[ordered[j]]
			if !ok || !satisfied(upstream.Status) {
				errs.add("phase %q is %s but upstream phase %q is not complete", label, block.Status, ordered[j])
			}
		}
		if block.Status == StatusSuccess {
			var failedChunks []int
			for id, chunk := range block.Chunks {
				if chunk.Status != ChunkSuccess && chunk.Status != ChunkRepaired {
					failedChunks = append(failedChunks, id)
				}
			}
			if len(failedChunks) > 0 {
				sort.Ints(failedChunks)
				errs.add("phase %q marked success but chunks %v are not success/repaired", label, failedChunks)
			}
		}
	}

	return errs.nilIfEmpty()
}

func isKnownPhaseStatus(s PhaseStatus) bool {
	switch s {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailed, StatusSkipped, StatusReused, StatusCancelled:
		return true
	default:
		return false
	}
}

func isKnownChunkStatus(s ChunkStatus) bool {
	switch s {
	case ChunkPending, ChunkSuccess, ChunkFailed, ChunkRepaired:
		return true
	default:
		return false
	}
}
