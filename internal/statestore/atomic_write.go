package statestore

import (
	"fmt"
	"os"
	"path/filepath"
)

const filePerm = 0o644

// writeAtomic writes data to path following read → write-temp → fsync →
// atomic-rename (spec §4.1): it never leaves a reader observing a partially
// written document. Grounded on the sibling-temp-file-then-rename idiom in
// the posix storage driver retrieved alongside this pack, extended with an
// explicit fsync before rename since that driver's own writer relies on
// filesystem journaling rather than calling Sync.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file over target: %w", err)
	}

	// Best-effort directory fsync so the rename itself is durable across a
	// crash, not just the file contents.
	if dirFile, err := os.Open(dir); err == nil {
		_ = dirFile.Sync()
		_ = dirFile.Close()
	}

	return nil
}

// appendLine opens path for append (creating it if absent) and writes line
// plus a trailing newline. Concurrent appenders are tolerated via O_APPEND
// semantics, per spec §5 "shared-resource policy" — no lock is required for
// the transaction log or telemetry log.
func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", path, err)
	}
	defer f.Close()

	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return f.Sync()
}
