package statestore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bookforge/pipeline/internal/schema"
)

// TransactionEntry is one line of the transaction log (spec §4.1): the
// tiebreaker for post-crash recovery diagnostics, never consulted to
// reconstruct state, only to explain it.
type TransactionEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Phase      schema.PhaseLabel `json:"phase,omitempty"`
	Op         string            `json:"op"`
	BeforeHash string            `json:"before_hash"`
	AfterHash  string            `json:"after_hash"`
}

// AppendTransaction appends entry to the transaction log as a single JSON
// line. It does not require the write lock: the log is append-only and
// tolerates concurrent appenders via O_APPEND semantics (spec §5).
func (s *Store) AppendTransaction(entry TransactionEntry) error {
	buf, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal transaction entry: %w", err)
	}
	return appendLine(s.txnLogPath, buf)
}

// hashDocument returns the hex SHA-256 of data. Store uses it for the
// transaction log's before/after hashes and for CanReuse's artifact check.
func hashDocument(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
