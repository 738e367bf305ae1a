package repair

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/bookforge/pipeline/internal/schema"
)

// ChunkInput is everything a strategy needs to attempt a repair.
type ChunkInput struct {
	FileID  string
	Phase   schema.PhaseLabel
	ChunkID int
	Text    string
	Engine  schema.EngineName
	OriginalArtifact string
}

// Attempt is the result of one strategy's attempt at repairing a chunk.
type Attempt struct {
	Strategy           string
	ReplacementArtifact string
	Metrics            map[string]float64
	Err                error
}

// Strategy is one repair approach from spec.md §4.5, tried in a fixed
// order by the repair loop, stopping at the first success.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, in ChunkInput) Attempt
}

// SubSplit splits the chunk's text at secondary boundaries and synthesizes
// sub-units, concatenating with a short silence gap (spec.md §4.5
// strategy 1). The actual split/synthesize/concatenate work is delegated
// to Synthesize, an injected callback, since audio synthesis is an external
// black-box phase per spec.md's scope boundary.
type SubSplit struct {
	Synthesize func(ctx context.Context, in ChunkInput) (artifactPath string, metrics map[string]float64, err error)
}

func (s SubSplit) Name() string { return "sub_split" }

func (s SubSplit) Attempt(ctx context.Context, in ChunkInput) Attempt {
	path, metrics, err := s.Synthesize(ctx, in)
	return Attempt{Strategy: s.Name(), ReplacementArtifact: path, Metrics: metrics, Err: err}
}

// EngineSwitch retries the chunk on an alternate engine, subject to
// capability (spec.md §4.5 strategy 2).
type EngineSwitch struct {
	AlternateEngines func(current schema.EngineName) []schema.EngineName
	Synthesize       func(ctx context.Context, in ChunkInput, engine schema.EngineName) (artifactPath string, metrics map[string]float64, err error)
}

func (s EngineSwitch) Name() string { return "engine_switch" }

func (s EngineSwitch) Attempt(ctx context.Context, in ChunkInput) Attempt {
	for _, engine := range s.AlternateEngines(in.Engine) {
		path, metrics, err := s.Synthesize(ctx, in, engine)
		if err == nil {
			return Attempt{Strategy: s.Name(), ReplacementArtifact: path, Metrics: metrics}
		}
	}
	return Attempt{Strategy: s.Name(), Err: ErrNoAlternateEngine}
}

// TextRewrite requests a rewritten input from an external rewriter service
// and re-synthesizes (spec.md §4.5 strategy 3, opt-in, requires an external
// collaborator). The call to the rewriter is wrapped in a circuit breaker
// so a flaky external service cannot stall the repair loop.
type TextRewrite struct {
	Breaker   *gobreaker.CircuitBreaker
	Rewrite   func(ctx context.Context, text string) (string, error)
	Synthesize func(ctx context.Context, in ChunkInput) (artifactPath string, metrics map[string]float64, err error)
}

func (s TextRewrite) Name() string { return "text_rewrite" }

func (s TextRewrite) Attempt(ctx context.Context, in ChunkInput) Attempt {
	result, err := s.Breaker.Execute(func() (interface{}, error) {
		return s.Rewrite(ctx, in.Text)
	})
	if err != nil {
		return Attempt{Strategy: s.Name(), Err: err}
	}
	in.Text = result.(string)
	path, metrics, err := s.Synthesize(ctx, in)
	return Attempt{Strategy: s.Name(), ReplacementArtifact: path, Metrics: metrics, Err: err}
}

// Simplify strips non-essential annotations (footnote markers, bracketed
// editorial content) and retries (spec.md §4.5 strategy 4).
type Simplify struct {
	Strip      func(text string) string
	Synthesize func(ctx context.Context, in ChunkInput) (artifactPath string, metrics map[string]float64, err error)
}

func (s Simplify) Name() string { return "simplify" }

func (s Simplify) Attempt(ctx context.Context, in ChunkInput) Attempt {
	in.Text = s.Strip(in.Text)
	path, metrics, err := s.Synthesize(ctx, in)
	return Attempt{Strategy: s.Name(), ReplacementArtifact: path, Metrics: metrics, Err: err}
}

// DefaultOrder is the fixed strategy ordering from spec.md §4.5.
func DefaultOrder(subSplit, engineSwitch, textRewrite, simplify Strategy) []Strategy {
	ordered := []Strategy{}
	for _, s := range []Strategy{subSplit, engineSwitch, textRewrite, simplify} {
		if s != nil {
			ordered = append(ordered, s)
		}
	}
	return ordered
}

// ErrNoAlternateEngine is returned when EngineSwitch has no capable
// alternate engine to try.
var ErrNoAlternateEngine = errNoAlternateEngine{}

type errNoAlternateEngine struct{}

func (errNoAlternateEngine) Error() string { return "no capable alternate engine available" }
