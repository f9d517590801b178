// Package backoff provides exponential backoff with jitter for reconnect
// and redelivery delays.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

const maxShift = 62

// Exponential returns base * 2^attempt with overflow protection.
// Negative attempts are treated as 0.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1) << attempt

	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(int64(base) * multiplier)
}

// FullJitter returns a random duration in [0, delay).
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}

	return time.Duration(rand.Int63n(int64(delay)))
}

// ExponentialWithJitter combines Exponential and FullJitter, capped at max
// when max is positive.
func ExponentialWithJitter(base time.Duration, attempt int, max time.Duration) time.Duration {
	delay := Exponential(base, attempt)
	if max > 0 && delay > max {
		delay = max
	}

	return FullJitter(delay)
}
