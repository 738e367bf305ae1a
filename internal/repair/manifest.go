package repair

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bookforge/pipeline/internal/schema"
)

// Manifest records one repair decision (spec.md §4.5: "Repaired artifacts
// are written to a sibling directory with a manifest recording {chunk_id,
// strategy, original_artifact, replacement_artifact, confidence}").
type Manifest struct {
	ChunkID             int     `json:"chunk_id"`
	Strategy            string  `json:"strategy"`
	OriginalArtifact    string  `json:"original_artifact"`
	ReplacementArtifact string  `json:"replacement_artifact"`
	Confidence          float64 `json:"confidence"`
}

// WriteManifest writes the manifest to <workdir>/.pipeline/repairs/<phase>/<chunk_id>.json
// (spec.md §6.5). Originals are never deleted or moved; this file only
// records the substitution reference.
func WriteManifest(workdir string, phase schema.PhaseLabel, m Manifest) (string, error) {
	dir := filepath.Join(workdir, ".pipeline", "repairs", string(phase))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create repairs dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.json", m.ChunkID))
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename manifest into place: %w", err)
	}
	return path, nil
}

// Eligible reports whether m's confidence clears threshold, the gate on
// substitution in the final assembly (spec.md §4.5: "Only manifests with
// confidence >= threshold may substitute the original").
func (m Manifest) Eligible(threshold float64) bool {
	return m.Confidence >= threshold
}
