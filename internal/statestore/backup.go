package statestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DefaultMaxBackups is the number of successful documents retained under
// <workdir>/.pipeline/backups/ (spec §6.1: "retaining the last N, default 5").
const DefaultMaxBackups = 5

// rotateBackup copies the just-committed document into the backup
// directory and prunes older entries beyond maxBackups. Backups are named
// with a monotonically increasing, lexically sortable timestamp so pruning
// is a simple sort rather than a stat-and-compare pass.
func (s *Store) rotateBackup(data []byte) error {
	if s.maxBackups <= 0 {
		return nil
	}
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("pipeline-%s.json", s.clock().UTC().Format("20060102T150405.000000000"))
	path := filepath.Join(s.backupDir, name)
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}

	return s.pruneBackups()
}

func (s *Store) pruneBackups() error {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("list backup dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // timestamp-prefixed names sort chronologically

	if len(names) <= s.maxBackups {
		return nil
	}
	for _, old := range names[:len(names)-s.maxBackups] {
		if err := os.Remove(filepath.Join(s.backupDir, old)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("prune backup %s: %w", old, err)
		}
	}
	return nil
}

// latestBackup returns the most recently written backup's raw bytes, or
// nil if none exist. Used by Read's corrupt-state recovery path (spec §4.1:
// "fall back to the most recent backup with a logged event").
func (s *Store) latestBackup() ([]byte, string, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("list backup dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, "", nil
	}
	sort.Strings(names)
	latest := names[len(names)-1]
	path := filepath.Join(s.backupDir, latest)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read backup %s: %w", latest, err)
	}
	return data, latest, nil
}

// defaultClock is the wall-clock time source Open installs as Store.clock.
func defaultClock() time.Time { return time.Now() }
