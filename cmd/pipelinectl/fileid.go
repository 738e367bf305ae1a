package main

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bookforge/pipeline/internal/schema"
)

// deriveSource hashes inputPath's content and classifies its MIME class,
// producing the stable, hash-based file_id spec.md §3.1 requires ("file_id:
// stable identifier derived from input"). The first 16 hex characters of
// the content hash are used as file_id: short enough for filesystem-safe
// directory names, long enough that collision is not a practical concern
// for a single operator's library.
func deriveSource(inputPath string) (fileID string, src schema.Source, err error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return "", schema.Source{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", schema.Source{}, err
	}

	h := sha256.New()
	sniff := make([]byte, 512)
	n, _ := io.ReadFull(f, sniff)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", schema.Source{}, err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", schema.Source{}, err
	}

	sum := hex.EncodeToString(h.Sum(nil))
	src = schema.Source{
		Path:      inputPath,
		Hash:      sum,
		MIMEClass: mimeClassFor(inputPath, sniff[:n]),
		SizeBytes: info.Size(),
	}
	return sum[:16], src, nil
}

// mimeClassFor buckets a source file into a coarse class ("epub", "text",
// "pdf", "audio", "unknown") rather than a full MIME type: extraction phase
// selection only needs to distinguish a handful of input shapes.
func mimeClassFor(path string, sniff []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		return "epub"
	case ".pdf":
		return "pdf"
	case ".txt", ".md":
		return "text"
	case ".mp3", ".wav", ".flac", ".m4a":
		return "audio"
	}

	detected := http.DetectContentType(sniff)
	switch {
	case strings.HasPrefix(detected, "text/"):
		return "text"
	case strings.HasPrefix(detected, "audio/"):
		return "audio"
	case detected == "application/pdf":
		return "pdf"
	default:
		return "unknown"
	}
}
