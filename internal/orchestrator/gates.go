package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"time"
)

// DiskSpaceGate checks that the working directory's filesystem has at
// least MinFreeBytes available. Synthesis and mastering phases can
// produce gigabytes of intermediate audio; running out mid-phase leaves
// a corrupt artifact that outcome classification must then reject.
type DiskSpaceGate struct {
	MinFreeBytes uint64
}

// NewDiskSpaceGate returns a gate requiring at least minFreeBytes free.
func NewDiskSpaceGate(minFreeBytes uint64) *DiskSpaceGate {
	return &DiskSpaceGate{MinFreeBytes: minFreeBytes}
}

func (g *DiskSpaceGate) Name() string { return "disk-space" }

func (g *DiskSpaceGate) Check(ctx context.Context, cfg RunConfig) (*PreflightViolation, error) {
	dir := filepath.Dir(cfg.PipelineJSONPath)
	if dir == "" || dir == "." {
		dir = "."
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return nil, fmt.Errorf("disk-space gate: statfs %s: %w", dir, err)
	}

	free := stat.Bavail * uint64(stat.Bsize)
	if free < g.MinFreeBytes {
		return &PreflightViolation{
			Check:       g.Name(),
			Description: fmt.Sprintf("only %d bytes free, need at least %d", free, g.MinFreeBytes),
			Severity:    SeverityCritical,
			DetectedAt:  time.Now(),
		}, nil
	}
	return nil, nil
}

// CPUHeadroomGate warns (but does not block) when the host has fewer
// logical CPUs than the recommended minimum for parallel synthesis.
type CPUHeadroomGate struct {
	MinLogicalCPUs int
}

func NewCPUHeadroomGate(minCPUs int) *CPUHeadroomGate {
	return &CPUHeadroomGate{MinLogicalCPUs: minCPUs}
}

func (g *CPUHeadroomGate) Name() string { return "cpu-headroom" }

func (g *CPUHeadroomGate) Check(ctx context.Context, cfg RunConfig) (*PreflightViolation, error) {
	if runtime.NumCPU() < g.MinLogicalCPUs {
		return &PreflightViolation{
			Check:       g.Name(),
			Description: fmt.Sprintf("host has %d logical CPUs, recommended minimum is %d", runtime.NumCPU(), g.MinLogicalCPUs),
			Severity:    SeverityWarning,
			DetectedAt:  time.Now(),
		}, nil
	}
	return nil, nil
}

// ModelCacheGate checks that the engine's model cache directory exists
// and is non-empty before synthesis is attempted, so a missing model
// download surfaces as a preflight failure rather than a mid-run
// ChildExit a hundred chunks in.
type ModelCacheGate struct {
	CacheDir string
}

func NewModelCacheGate(cacheDir string) *ModelCacheGate {
	return &ModelCacheGate{CacheDir: cacheDir}
}

func (g *ModelCacheGate) Name() string { return "model-cache" }

func (g *ModelCacheGate) Check(ctx context.Context, cfg RunConfig) (*PreflightViolation, error) {
	entries, err := os.ReadDir(g.CacheDir)
	if os.IsNotExist(err) {
		return &PreflightViolation{
			Check:       g.Name(),
			Description: fmt.Sprintf("model cache directory %s does not exist", g.CacheDir),
			Severity:    SeverityCritical,
			DetectedAt:  time.Now(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("model-cache gate: read %s: %w", g.CacheDir, err)
	}
	if len(entries) == 0 {
		return &PreflightViolation{
			Check:       g.Name(),
			Description: fmt.Sprintf("model cache directory %s is empty", g.CacheDir),
			Severity:    SeverityCritical,
			DetectedAt:  time.Now(),
		}, nil
	}
	return nil, nil
}

// DefaultPreflightChecks returns the standard gate set run before any
// phase of a new invocation starts.
func DefaultPreflightChecks(modelCacheDir string) []PreflightCheck {
	return []PreflightCheck{
		NewDiskSpaceGate(1 << 30), // 1 GiB
		NewCPUHeadroomGate(2),
		NewModelCacheGate(modelCacheDir),
	}
}

// runPreflight executes every check and returns all violations found; a
// check error aborts immediately since it indicates the check itself
// could not be evaluated, not that the condition failed.
func runPreflight(ctx context.Context, checks []PreflightCheck, cfg RunConfig) ([]PreflightViolation, error) {
	var violations []PreflightViolation
	for _, check := range checks {
		v, err := check.Check(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("preflight check %s: %w", check.Name(), err)
		}
		if v != nil {
			violations = append(violations, *v)
		}
	}
	return violations, nil
}
