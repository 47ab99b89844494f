package route

import (
	"sync"
	"time"
)

// BreakerState describes a backend circuit.
type BreakerState string

const (
	// BreakerClosed lets calls through; this is the healthy state.
	BreakerClosed BreakerState = "closed"

	// BreakerOpen short-circuits calls until the cooldown elapses.
	BreakerOpen BreakerState = "open"

	// BreakerHalfOpen lets exactly one trial call through; its outcome
	// closes or re-opens the circuit.
	BreakerHalfOpen BreakerState = "half-open"
)

// breaker is a per-backend circuit breaker. Consecutive failures open the
// circuit; after the cooldown a single trial call probes the backend.
type breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	trialing bool
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     BreakerClosed,
	}
}

// allow reports whether a call may proceed right now. In the half-open
// state only one caller wins the trial slot; everyone else is refused
// until the trial settles.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.trialing = true
		return true
	default: // half-open
		if b.trialing {
			return false
		}
		b.trialing = true
		return true
	}
}

// success records a completed call and closes the circuit.
func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.trialing = false
}

// failure records a failed call. A failed half-open trial re-opens the
// circuit immediately; in the closed state the threshold applies.
func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialing = false
	switch b.state {
	case BreakerHalfOpen:
		b.open()
	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.open()
		}
	case BreakerOpen:
		// A call admitted just before the transition; stay open.
		b.openedAt = b.now()
	}
}

func (b *breaker) open() {
	b.state = BreakerOpen
	b.failures = 0
	b.openedAt = b.now()
}

// snapshot returns the current state.
func (b *breaker) snapshot() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
