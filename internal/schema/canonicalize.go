package schema

import (
	"encoding/json"
	"fmt"
)

// knownTopLevelFields lists the PipelineState JSON keys this version of the
// schema understands. Anything else found on a raw document is preserved
// under Legacy rather than dropped, satisfying the lossless-canonicalization
// invariant (P6).
var knownTopLevelFields = map[string]bool{
	"schema_version": true,
	"file_id":        true,
	"source":         true,
	"phases":         true,
	"overrides":      true,
	"runtime":        true,
	"batch_runs":     true,
	"legacy":         true,
}

// Canonicalize converts a raw decoded state document (schema_version 1, 2,
// or 3) into the current PipelineState shape. It is idempotent: running it
// twice on its own output produces byte-identical results, and no field
// present in raw is ever silently discarded.
func Canonicalize(raw map[string]interface{}) (*PipelineState, error) {
	version, err := readVersion(raw)
	if err != nil {
		return nil, err
	}

	switch version {
	case 1:
		raw = upgradeV1toV2(raw)
		fallthrough
	case 2:
		raw = upgradeV2toV3(raw)
		fallthrough
	case CurrentVersion:
		return decodeCurrent(raw)
	default:
		return nil, fmt.Errorf("schema version %d is newer than this build supports (%d)", version, CurrentVersion)
	}
}

func readVersion(raw map[string]interface{}) (int, error) {
	v, ok := raw["schema_version"]
	if !ok {
		return 1, nil // earliest documents predate the field
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("schema_version has unexpected type %T", v)
	}
}

// upgradeV1toV2 renames the v1 "book_id" key to "file_id" and moves v1's
// flat "errors" array into per-chunk FailureRecord slices is out of scope
// here (v1 had no chunk-level failures); it simply relocates the rename and
// stamps the version forward, preserving every other key untouched.
func upgradeV1toV2(raw map[string]interface{}) map[string]interface{} {
	out := shallowCopy(raw)
	if bookID, ok := out["book_id"]; ok {
		if _, hasFileID := out["file_id"]; !hasFileID {
			out["file_id"] = bookID
		}
		delete(out, "book_id")
		rememberLegacy(out, "book_id", bookID)
	}
	out["schema_version"] = float64(2)
	return out
}

// upgradeV2toV3 introduces the Runtime sub-document; v2 stored
// current_phase and retry_counts at the document root.
func upgradeV2toV3(raw map[string]interface{}) map[string]interface{} {
	out := shallowCopy(raw)
	runtime, _ := out["runtime"].(map[string]interface{})
	if runtime == nil {
		runtime = map[string]interface{}{}
	}
	for _, key := range []string{"current_phase", "retry_counts", "heartbeat_at", "pid"} {
		if v, ok := out[key]; ok {
			runtime[key] = v
			delete(out, key)
		}
	}
	out["runtime"] = runtime
	out["schema_version"] = float64(3)
	return out
}

func shallowCopy(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}

func rememberLegacy(out map[string]interface{}, key string, value interface{}) {
	legacy, _ := out["legacy"].(map[string]interface{})
	if legacy == nil {
		legacy = map[string]interface{}{}
	}
	legacy[key] = value
	out["legacy"] = legacy
}

// decodeCurrent marshals the raw map back through the typed struct and
// captures any key it does not recognize into Legacy, so future
// schema_version bumps without an upgrader still round-trip losslessly.
func decodeCurrent(raw map[string]interface{}) (*PipelineState, error) {
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-marshal raw document: %w", err)
	}
	var s PipelineState
	if err := json.Unmarshal(buf, &s); err != nil {
		return nil, fmt.Errorf("decode canonical document: %w", err)
	}

	for key, value := range raw {
		if knownTopLevelFields[key] {
			continue
		}
		if s.Legacy == nil {
			s.Legacy = map[string]interface{}{}
		}
		s.Legacy[key] = value
	}

	for label, block := range s.Phases {
		if block != nil {
			block.ChunkOrder = block.SortedChunkIDs()
		}
		_ = label
	}

	return &s, nil
}

// Decanonicalize renders a PipelineState back to a raw map suitable for
// JSON encoding, re-inlining any Legacy fields at the document root so a
// round trip through Canonicalize/Decanonicalize is lossless (P6).
func Decanonicalize(s *PipelineState) (map[string]interface{}, error) {
	buf, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("decode to raw map: %w", err)
	}
	delete(raw, "legacy")
	for k, v := range s.Legacy {
		if _, known := raw[k]; !known {
			raw[k] = v
		}
	}
	return raw, nil
}
