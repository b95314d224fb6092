package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/avuweb/membership/pkg/queue"
)

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	b := queue.ExponentialBackoff{Initial: time.Minute, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.NextInterval(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoff_Max(t *testing.T) {
	t.Parallel()

	b := queue.ExponentialBackoff{Initial: time.Second, Max: 5 * time.Second, Multiplier: 10}
	assert.Equal(t, 5*time.Second, b.NextInterval(3))
}

func TestExponentialBackoff_JitterStaysInRange(t *testing.T) {
	t.Parallel()

	b := queue.ExponentialBackoff{Initial: 10 * time.Second, Multiplier: 2, Jitter: 0.1}
	for range 50 {
		d := b.NextInterval(1)
		assert.GreaterOrEqual(t, d, 9*time.Second)
		assert.LessOrEqual(t, d, 11*time.Second)
	}
}

func TestFixedBackoff(t *testing.T) {
	t.Parallel()

	b := queue.FixedBackoff{Interval: 3 * time.Second}
	assert.Equal(t, time.Duration(0), b.NextInterval(0))
	assert.Equal(t, 3*time.Second, b.NextInterval(1))
	assert.Equal(t, 3*time.Second, b.NextInterval(7))
}
