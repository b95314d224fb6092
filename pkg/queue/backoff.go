package queue

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff calculates the delay before retrying a failed task.
// Attempt starts at 1 for the first retry. Implementations must be safe for concurrent use.
type Backoff interface {
	NextInterval(attempt int) time.Duration
}

// ExponentialBackoff returns Initial * Multiplier^(attempt-1), capped at Max when Max is set.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // fraction in [0,1), zero keeps delays deterministic
}

func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.Initial
	if initial == 0 {
		initial = time.Second
	}
	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if e.Jitter > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.Jitter
	}
	if e.Max > 0 && interval > float64(e.Max) {
		interval = float64(e.Max)
	}

	return time.Duration(interval)
}

// FixedBackoff waits the same interval before every retry.
type FixedBackoff struct {
	Interval time.Duration
}

func (f FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}

// DefaultBackoff is used by workers when neither the worker nor the handler sets one.
func DefaultBackoff() Backoff {
	return ExponentialBackoff{Initial: 30 * time.Second, Max: 10 * time.Minute, Multiplier: 2, Jitter: 0.1}
}
