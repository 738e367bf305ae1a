package advisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bookforge/pipeline/internal/schema"
)

// JournalEntry is one line of the advisor's daily policy log: every
// recommendation produced and whatever became of it (spec.md §4.6
// "Journaling": every recommendation and applied override, with
// rationale and resulting reward").
type JournalEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	FileID     string            `json:"file_id"`
	Mode       LearningMode      `json:"mode"`
	Phase      schema.PhaseLabel `json:"phase"`
	Parameter  string            `json:"parameter"`
	Proposed   interface{}       `json:"proposed_value"`
	Baseline   interface{}       `json:"baseline_value"`
	Rationale  string            `json:"rationale"`
	Confidence float64           `json:"confidence"`
	Applied    bool              `json:"applied"`
	BlockedBy  string            `json:"blocked_by,omitempty"`
	Reward     *float64          `json:"reward,omitempty"`
}

// Journal is an append-only, daily-rotated log of advisor decisions,
// file-based like internal/repair's manifests rather than OTel-exported,
// since policy decisions must remain auditable after the fact independent
// of whatever telemetry backend is configured.
type Journal struct {
	dir   string
	clock func() time.Time
}

// OpenJournal returns a Journal writing under <workdir>/.pipeline/policy/.
func OpenJournal(workdir string) *Journal {
	return &Journal{
		dir:   filepath.Join(workdir, ".pipeline", "policy"),
		clock: time.Now,
	}
}

func (j *Journal) pathForDay(day time.Time) string {
	return filepath.Join(j.dir, day.Format("20060102")+".jsonl")
}

// Record appends one entry to today's journal file.
func (j *Journal) Record(entry JournalEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = j.clock()
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("advisor: create journal dir: %w", err)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("advisor: marshal journal entry: %w", err)
	}

	f, err := os.OpenFile(j.pathForDay(entry.Timestamp), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("advisor: open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("advisor: write journal: %w", err)
	}
	return f.Sync()
}

// RecordDecision journals a recommendation together with the outcome of
// Decide: whether it was applied and, if not, which gate blocked it.
func (j *Journal) RecordDecision(fileID string, mode LearningMode, rec Recommendation, override *schema.OverrideEntry, blockedBy string) error {
	return j.Record(JournalEntry{
		FileID:     fileID,
		Mode:       mode,
		Phase:      rec.Phase,
		Parameter:  rec.Parameter,
		Proposed:   rec.ProposedValue,
		Baseline:   rec.BaselineValue,
		Rationale:  rec.Rationale,
		Confidence: rec.Confidence,
		Applied:    override != nil,
		BlockedBy:  blockedBy,
	})
}
