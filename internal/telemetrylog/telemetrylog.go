// Package telemetrylog implements the append-only event log (C8): one
// newline-delimited JSON record per event, rotated daily, host load
// sampled at write time. Records are never rewritten; the advisor (C6)
// aggregates on read rather than telemetrylog pre-aggregating.
package telemetrylog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/bookforge/pipeline/internal/schema"
)

// Sink appends TelemetryRecords to a daily-rotated log file under
// <workdir>/.pipeline/telemetry/. Graceful degradation mirrors
// internal/telemetry.Telemetry: a Sink that fails to write marks itself
// degraded and stops attempting I/O rather than taking down the run that
// depends on it.
type Sink struct {
	dir   string
	mu    sync.Mutex
	clock func() time.Time

	degraded bool
	lastErr  error
}

// Open returns a Sink writing under workdir.
func Open(workdir string) *Sink {
	return &Sink{
		dir:   filepath.Join(workdir, ".pipeline", "telemetry"),
		clock: time.Now,
	}
}

func (s *Sink) pathForDay(day time.Time) string {
	return filepath.Join(s.dir, day.Format("20060102")+".log")
}

// Degraded reports whether the sink has stopped attempting writes after a
// prior failure, and the error that caused it.
func (s *Sink) Degraded() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded, s.lastErr
}

// Append writes one record. It returns the write error, and after a failure
// returns that same error on every later call without attempting I/O.
// Callers may ignore it (matching spec.md's treatment of telemetry as
// non-critical) and inspect Degraded instead.
func (s *Sink) Append(record schema.TelemetryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		return s.lastErr
	}

	if record.Timestamp.IsZero() {
		record.Timestamp = s.clock()
	}
	if record.HostLoad == (schema.HostLoad{}) {
		record.HostLoad = SampleHostLoad()
	}

	if err := s.append(record); err != nil {
		s.degraded = true
		s.lastErr = err
		return err
	}
	return nil
}

func (s *Sink) append(record schema.TelemetryRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("telemetrylog: create dir: %w", err)
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("telemetrylog: marshal record: %w", err)
	}

	f, err := os.OpenFile(s.pathForDay(record.Timestamp), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("telemetrylog: open log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("telemetrylog: write log: %w", err)
	}
	return f.Sync()
}

// ReadDay reads every record from a single day's log file, in file order.
// A missing file yields an empty slice, not an error (no events were
// recorded that day).
func ReadDay(workdir string, day time.Time) ([]schema.TelemetryRecord, error) {
	path := filepath.Join(workdir, ".pipeline", "telemetry", day.Format("20060102")+".log")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("telemetrylog: open %s: %w", path, err)
	}
	defer f.Close()

	var records []schema.TelemetryRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec schema.TelemetryRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // tolerate a partially-written trailing line from a crash
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

// SampleHostLoad reports a coarse host utilization snapshot. No library in
// the retrieved pack provides cross-platform CPU/memory percentage
// sampling, so this uses runtime.MemStats and goroutine count as a
// process-local proxy rather than true host-wide figures; see DESIGN.md.
func SampleHostLoad() schema.HostLoad {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	memPercent := 0.0
	if mem.Sys > 0 {
		memPercent = (float64(mem.HeapAlloc) / float64(mem.Sys)) * 100
	}

	cpuPercent := (float64(runtime.NumGoroutine()) / float64(runtime.NumCPU())) * 100
	if cpuPercent > 100 {
		cpuPercent = 100
	}

	return schema.HostLoad{
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
	}
}
