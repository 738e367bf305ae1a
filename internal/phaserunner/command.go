// Package phaserunner launches a single pipeline phase as an external
// process with a deadline, streams its output, and classifies the outcome
// against the state document it is expected to have written — the "robust
// check" from spec.md §4.3 that refuses to trust exit code 0 alone.
package phaserunner

import (
	"fmt"
	"strconv"

	"github.com/bookforge/pipeline/internal/schema"
)

// Invocation is everything needed to launch one phase attempt (spec.md
// §4.3 "Inputs: {phase, file_id, state_path, overrides, timeout}").
type Invocation struct {
	Phase     schema.PhaseLabel
	FileID    string
	StatePath string
	Command   string   // resolved command template for the phase, e.g. "synthesize-phase4"
	Args      []string // additional fixed arguments, if any
	Resume    bool
	ChunkID   *int
	Voice     string
	Engine    schema.EngineName
	MaxRetries int
	Timeout    int // seconds; 0 means use the runner's default
	Env        map[string]string
}

// BuildArgs renders the phase contract's CLI flags (spec.md §6.2):
// `--file_id=<id> --json_path=<state_path> [--resume] [--voice=<name>]
// [--engine=<name>] [--chunk_id=<n>] [--max-retries=<n>]`.
func (inv Invocation) BuildArgs() []string {
	args := make([]string, 0, len(inv.Args)+6)
	args = append(args, inv.Args...)
	args = append(args,
		"--file_id="+inv.FileID,
		"--json_path="+inv.StatePath,
	)
	if inv.Resume {
		args = append(args, "--resume")
	}
	if inv.Voice != "" {
		args = append(args, "--voice="+inv.Voice)
	}
	if inv.Engine != "" {
		args = append(args, "--engine="+string(inv.Engine))
	}
	if inv.ChunkID != nil {
		args = append(args, "--chunk_id="+strconv.Itoa(*inv.ChunkID))
	}
	if inv.MaxRetries > 0 {
		args = append(args, "--max-retries="+strconv.Itoa(inv.MaxRetries))
	}
	return args
}

// BuildEnv renders any overrides that the phase's declared surface expects
// as environment variables rather than flags, each named
// PIPELINE_<parameter>; the prefix is the same for every phase.
func (inv Invocation) BuildEnv(base []string) []string {
	out := make([]string, 0, len(base)+len(inv.Env))
	out = append(out, base...)
	for k, v := range inv.Env {
		out = append(out, fmt.Sprintf("PIPELINE_%s=%s", k, v))
	}
	return out
}
