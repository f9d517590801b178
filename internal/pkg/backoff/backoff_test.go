package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponential(t *testing.T) {
	base := 100 * time.Millisecond

	assert.Equal(t, 100*time.Millisecond, Exponential(base, 0))
	assert.Equal(t, 200*time.Millisecond, Exponential(base, 1))
	assert.Equal(t, 800*time.Millisecond, Exponential(base, 3))

	// Negative attempts clamp to the base.
	assert.Equal(t, base, Exponential(base, -5))

	// Huge attempts must not overflow.
	assert.Equal(t, time.Duration(1<<63-1), Exponential(time.Hour, 62))

	assert.Equal(t, time.Duration(0), Exponential(0, 3))
}

func TestFullJitter(t *testing.T) {
	delay := 500 * time.Millisecond

	for i := 0; i < 100; i++ {
		jittered := FullJitter(delay)
		assert.GreaterOrEqual(t, jittered, time.Duration(0))
		assert.Less(t, jittered, delay)
	}

	assert.Equal(t, time.Duration(0), FullJitter(0))
	assert.Equal(t, time.Duration(0), FullJitter(-time.Second))
}

func TestExponentialWithJitter_RespectsCap(t *testing.T) {
	for i := 0; i < 100; i++ {
		jittered := ExponentialWithJitter(time.Second, 10, 2*time.Second)
		assert.Less(t, jittered, 2*time.Second)
	}
}
