package fetcher

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy calculates the delay before a retry attempt.
// Implementations must be safe for concurrent use.
type BackoffStrategy interface {
	// NextInterval returns the delay before the given attempt.
	// Attempt starts at 1 for the first retry.
	NextInterval(attempt int) time.Duration
}

// ExponentialBackoff doubles the delay on each attempt up to a cap, with
// jitter so a fleet of instances polling the same authority does not retry
// in lockstep after an outage.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // fraction of the delay randomized in both directions
}

// NextInterval returns min(Initial * Multiplier^(attempt-1), Max) with jitter
// applied.
func (b ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := b.Initial
	if initial == 0 {
		initial = 500 * time.Millisecond
	}
	capped := b.Max
	if capped == 0 {
		capped = 30 * time.Second
	}
	multiplier := b.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if b.Jitter > 0 {
		delay *= 1 + (rand.Float64()*2-1)*b.Jitter
	}
	if delay > float64(capped) {
		delay = float64(capped)
	}
	return time.Duration(delay)
}

// FixedBackoff waits the same interval between all attempts. Mostly useful in
// tests where deterministic timing matters.
type FixedBackoff struct {
	Interval time.Duration
}

// NextInterval returns the fixed interval.
func (b FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return b.Interval
}

// DefaultBackoff returns the backoff used when none is configured: capped
// exponential with 10% jitter, tuned for background policy polling.
func DefaultBackoff() BackoffStrategy {
	return ExponentialBackoff{
		Initial:    500 * time.Millisecond,
		Max:        15 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}
}
