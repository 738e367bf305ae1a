// Package retry decides whether a phase invocation should be skipped,
// resumed, retried, or failed outright, and computes the exponential
// backoff with jitter between retry attempts (spec.md §4.4).
package retry

import (
	"context"
	"math/rand"
	"time"
)

// BackoffConfig configures the exponential backoff applied between retry
// attempts, grounded on the teacher's GitHub-API retry helper generalized
// from network-call retries to phase-process retries.
type BackoffConfig struct {
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            float64 // fraction of the computed backoff to randomize, e.g. 0.2
}

// DefaultBackoffConfig mirrors the teacher's DefaultRetryConfig shape,
// extended with a jitter fraction per spec.md §4.4 ("exponential backoff
// with jitter").
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialBackoff:    time.Second,
		MaxBackoff:        2 * time.Minute,
		BackoffMultiplier: 2.0,
		Jitter:            0.2,
	}
}

func (c BackoffConfig) applyDefaults() BackoffConfig {
	d := DefaultBackoffConfig()
	if c.InitialBackoff == 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	return c
}

// Backoff computes the jittered delay before retry attempt n (1-indexed:
// the delay before the first retry, i.e. after attempt 1 failed).
func (c BackoffConfig) Backoff(attempt int, rng *rand.Rand) time.Duration {
	c = c.applyDefaults()
	if attempt < 1 {
		attempt = 1
	}

	backoff := float64(c.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= c.BackoffMultiplier
		if backoff > float64(c.MaxBackoff) {
			backoff = float64(c.MaxBackoff)
			break
		}
	}

	if c.Jitter > 0 {
		spread := backoff * c.Jitter
		backoff += (rng.Float64()*2 - 1) * spread
		if backoff < 0 {
			backoff = 0
		}
	}

	return time.Duration(backoff)
}

// Sleep waits for the computed backoff or until ctx is cancelled, whichever
// comes first, returning ctx.Err() on cancellation.
func (c BackoffConfig) Sleep(ctx context.Context, attempt int, rng *rand.Rand) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.Backoff(attempt, rng)):
		return nil
	}
}
