package route

import (
	"sync"
	"time"
)

// BackendMetrics is a snapshot of one backend's routing counters.
type BackendMetrics struct {
	// Calls counts dispatched calls, successful or not.
	Calls uint64

	// Failures counts calls that returned an error.
	Failures uint64

	// TotalLatency is the summed wall time of all calls.
	TotalLatency time.Duration

	// LastError is the most recent failure, empty when the last call
	// succeeded.
	LastError string

	// LastCall is when the backend was last dispatched to.
	LastCall time.Time

	// Breaker is the circuit state at snapshot time.
	Breaker BreakerState
}

type counters struct {
	mu           sync.Mutex
	calls        uint64
	failures     uint64
	totalLatency time.Duration
	lastError    string
	lastCall     time.Time
}

func (c *counters) record(latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.totalLatency += latency
	c.lastCall = time.Now()
	if err != nil {
		c.failures++
		c.lastError = err.Error()
	} else {
		c.lastError = ""
	}
}

func (c *counters) snapshot() BackendMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return BackendMetrics{
		Calls:        c.calls,
		Failures:     c.failures,
		TotalLatency: c.totalLatency,
		LastError:    c.lastError,
		LastCall:     c.lastCall,
	}
}
