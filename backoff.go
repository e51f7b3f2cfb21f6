package roomcast

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes exponential retry delays with jitter. Jitter spreads
// simultaneous reconnects so a restarted server is not hit by a thundering
// herd.
type Backoff struct {
	InitialDelay        time.Duration
	MaxDelay            time.Duration
	RandomizationFactor float64
}

// Nominal returns the un-jittered delay for an attempt:
// min(InitialDelay * 2^(attempt-1), MaxDelay). Attempt starts at 1.
// The schedule is non-decreasing up to the cap.
func (b Backoff) Nominal(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := b.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	max := b.MaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}

	delay := float64(initial) * math.Pow(2, float64(attempt-1))
	if delay > float64(max) {
		delay = float64(max)
	}
	return time.Duration(delay)
}

// Delay returns the nominal delay scaled by a random factor in
// (1-RandomizationFactor, 1+RandomizationFactor).
func (b Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.Nominal(attempt))

	if b.RandomizationFactor > 0 {
		jitter := (rand.Float64()*2 - 1) * b.RandomizationFactor
		delay *= 1 + jitter
	}

	return time.Duration(delay)
}
