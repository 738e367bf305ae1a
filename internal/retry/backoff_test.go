package retry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffConfig_GrowsExponentially(t *testing.T) {
	cfg := BackoffConfig{InitialBackoff: time.Second, MaxBackoff: time.Minute, BackoffMultiplier: 2, Jitter: 0}
	rng := rand.New(rand.NewSource(1))

	assert.Equal(t, time.Second, cfg.Backoff(1, rng))
	assert.Equal(t, 2*time.Second, cfg.Backoff(2, rng))
	assert.Equal(t, 4*time.Second, cfg.Backoff(3, rng))
}

func TestBackoffConfig_CapsAtMax(t *testing.T) {
	cfg := BackoffConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, BackoffMultiplier: 2, Jitter: 0}
	rng := rand.New(rand.NewSource(1))

	assert.Equal(t, 3*time.Second, cfg.Backoff(10, rng))
}

func TestBackoffConfig_JitterStaysWithinBounds(t *testing.T) {
	cfg := BackoffConfig{InitialBackoff: 10 * time.Second, MaxBackoff: time.Minute, BackoffMultiplier: 2, Jitter: 0.2}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 50; i++ {
		d := cfg.Backoff(1, rng)
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.LessOrEqual(t, d, 12*time.Second)
	}
}
