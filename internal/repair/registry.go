// Package repair implements the durable chunk failure registry and the
// opt-in post-run repair loop (spec.md §4.5): recording provenance for
// every chunk failure and trying non-destructive recovery strategies in
// order, stopping at the first success.
package repair

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bookforge/pipeline/internal/schema"
)

// Key identifies one registry entry (spec.md §4.5: "indexed by
// {file_id, phase, chunk_id}").
type Key struct {
	FileID  string
	Phase   schema.PhaseLabel
	ChunkID int
}

// Registry is the durable, append-only-within-a-run failure record store
// backed by <workdir>/.pipeline/failures.json (spec.md §6.5). Grounded on
// the teacher's remediation store shape (a keyed collection of provenance
// records retrieved and written through a narrow interface), adapted from
// a vector-searchable store to a flat on-disk map.
type Registry struct {
	path string
	mu   sync.Mutex
}

// document is the on-disk shape: file_id -> phase -> chunk_id -> []FailureRecord.
type document map[string]map[schema.PhaseLabel]map[int][]schema.FailureRecord

// Open returns a Registry rooted at <workdir>/.pipeline/failures.json.
func Open(workdir string) *Registry {
	return &Registry{path: filepath.Join(workdir, ".pipeline", "failures.json")}
}

func (r *Registry) load() (document, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, nil
		}
		return nil, fmt.Errorf("read failure registry: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode failure registry: %w", err)
	}
	return doc, nil
}

func (r *Registry) save(doc document) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode failure registry: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write registry temp file: %w", err)
	}
	return os.Rename(tmp, r.path)
}

// Record appends rec to the registry, deduplicated by attempt number
// (spec.md §4.5: "duplicates are deduplicated by attempt number").
func (r *Registry) Record(key Key, rec schema.FailureRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	if doc[key.FileID] == nil {
		doc[key.FileID] = map[schema.PhaseLabel]map[int][]schema.FailureRecord{}
	}
	if doc[key.FileID][key.Phase] == nil {
		doc[key.FileID][key.Phase] = map[int][]schema.FailureRecord{}
	}
	existing := doc[key.FileID][key.Phase][key.ChunkID]
	for _, prior := range existing {
		if prior.Attempt == rec.Attempt {
			return nil // already recorded
		}
	}
	doc[key.FileID][key.Phase][key.ChunkID] = append(existing, rec)
	return r.save(doc)
}

// Failed returns every chunk with at least one recorded failure, keyed by
// Key. The registry holds no repair records, so a chunk repaired since its
// last failure is still returned.
func (r *Registry) Failed(fileID string) (map[Key][]schema.FailureRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	out := map[Key][]schema.FailureRecord{}
	for phase, byChunk := range doc[fileID] {
		for chunkID, records := range byChunk {
			if len(records) == 0 {
				continue
			}
			out[Key{FileID: fileID, Phase: phase, ChunkID: chunkID}] = records
		}
	}
	return out, nil
}
