package stream

import (
	"math/rand/v2"
	"time"
)

const (
	// maxDelay caps the exponential backoff.
	maxDelay = 30 * time.Second

	// maxJitter is the randomized offset added to every delay so that
	// many sources reconnecting at once don't synchronize.
	maxJitter = time.Second
)

// backoffDelay returns the deterministic part of the reconnect delay
// for the given attempt number: base doubled per attempt, capped.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt > 30 {
		return maxDelay
	}
	d := base << uint(attempt)
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}

// jitter returns a random offset in [0, maxJitter).
func jitter() time.Duration {
	return rand.N(maxJitter)
}
