package backend

import (
	"math/rand/v2"
	"time"
)

// backoffDelay computes the reconnect delay for the given zero-based
// attempt: base doubled per attempt, capped at max, with ±20% jitter so a
// herd of backends does not reconnect in lockstep.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * jitter)
}
