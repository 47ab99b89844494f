// Package route dispatches action calls and resource reads to the backend
// that owns them, with per-backend circuit breaking and automatic failover
// to an alternate backend advertising the same capability.
package route

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/toolgateway/aggregate"
	"github.com/jonwraymond/toolgateway/backend"
	"github.com/jonwraymond/toolgateway/transport"
)

// Routing errors.
var (
	// ErrConfiguration indicates an invalid router configuration.
	ErrConfiguration = errors.New("invalid router configuration")

	// ErrActionNotFound indicates no backend advertises the action.
	ErrActionNotFound = errors.New("action not found")

	// ErrResourceNotFound indicates no backend advertises the resource.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrNoRouteAvailable indicates the capability exists but every
	// eligible backend is unroutable, circuit-broken, or failing.
	ErrNoRouteAvailable = errors.New("no route available")
)

// CallError wraps a dispatch failure with its routing context.
type CallError struct {
	// Backend is the backend the failing call went to.
	Backend string

	// Capability is the original action name or resource URI.
	Capability string

	// Err is the underlying failure.
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("backend %q: %q: %v", e.Backend, e.Capability, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Config configures a Router.
type Config struct {
	// Registry resolves backend names to live supervisors. Required.
	Registry *backend.Registry

	// Aggregator resolves capability names to owning backends. Required.
	Aggregator *aggregate.Aggregator

	// CallTimeout bounds each dispatched call. Defaults to 30s.
	CallTimeout time.Duration

	// BreakerThreshold is how many consecutive failures open a backend's
	// circuit. Defaults to 5.
	BreakerThreshold int

	// BreakerCooldown is how long an open circuit refuses calls before
	// admitting a trial. Defaults to 30s.
	BreakerCooldown time.Duration

	// Logger is optional.
	Logger backend.Logger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Registry == nil {
		return fmt.Errorf("%w: registry is required", ErrConfiguration)
	}
	if c.Aggregator == nil {
		return fmt.Errorf("%w: aggregator is required", ErrConfiguration)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
}

// Router routes calls through the aggregator's tables to live backends.
type Router struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*breaker
	metrics  map[string]*counters
}

// New creates a router.
func New(cfg Config) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &Router{
		cfg:      cfg,
		breakers: make(map[string]*breaker),
		metrics:  make(map[string]*counters),
	}, nil
}

// CallAction resolves name (namespaced or bare) and invokes it on the
// owning backend. When the primary backend is unroutable, circuit-broken,
// or fails retryably, the call fails over to the next backend advertising
// the same original action, in priority order with connected backends
// tried before degraded ones.
func (r *Router) CallAction(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	rec, ok := r.cfg.Aggregator.ResolveAction(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrActionNotFound, name)
	}

	var result *mcp.CallToolResult
	err := r.route(ctx, rec, aggregate.KindAction, func(ctx context.Context, s *backend.Supervisor) error {
		res, err := s.Invoke(ctx, rec.OriginalName, args)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReadResource resolves uri (namespaced or bare) and reads it from the
// owning backend, with the same failover behavior as CallAction.
func (r *Router) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	rec, ok := r.cfg.Aggregator.ResolveResource(uri)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrResourceNotFound, uri)
	}

	var result *mcp.ReadResourceResult
	err := r.route(ctx, rec, aggregate.KindResource, func(ctx context.Context, s *backend.Supervisor) error {
		res, err := s.ReadResource(ctx, rec.OriginalName)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// route tries the resolved backend, then the remaining candidates for the
// same original capability. Non-retryable failures (protocol violations,
// unsupported operations) surface immediately: a second backend would not
// make a malformed call valid.
func (r *Router) route(ctx context.Context, rec *aggregate.Record, kind aggregate.CapabilityKind, call func(context.Context, *backend.Supervisor) error) error {
	var lastErr error
	for _, cand := range r.candidates(rec, kind) {
		s, ok := r.cfg.Registry.Get(cand.Backend)
		if !ok || !s.State().Routable() {
			continue
		}

		br := r.breakerFor(cand.Backend)
		if !br.allow() {
			logf(r.cfg.Logger, "route: %s: circuit %s, skipping for %q", cand.Backend, br.snapshot(), rec.OriginalName)
			continue
		}

		err := r.dispatch(ctx, cand.Backend, s, call)
		if err == nil {
			br.success()
			return nil
		}
		br.failure()
		lastErr = &CallError{Backend: cand.Backend, Capability: rec.OriginalName, Err: err}
		logf(r.cfg.Logger, "route: %s: call %q failed: %v", cand.Backend, rec.OriginalName, err)

		if !failover(err) {
			return lastErr
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%w: %q: last failure: %w", ErrNoRouteAvailable, rec.OriginalName, lastErr)
	}
	return fmt.Errorf("%w: %q", ErrNoRouteAvailable, rec.OriginalName)
}

// dispatch runs one call under the per-call timeout and records metrics.
func (r *Router) dispatch(ctx context.Context, name string, s *backend.Supervisor, call func(context.Context, *backend.Supervisor) error) error {
	cctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	err := call(cctx, s)
	r.countersFor(name).record(time.Since(start), err)
	return err
}

// candidates orders the backends eligible for this capability: the
// resolved backend first (an explicit namespace choice is honored even
// when degraded), then the other advertisers sorted connected-first, ties
// by ascending priority.
func (r *Router) candidates(rec *aggregate.Record, kind aggregate.CapabilityKind) []*aggregate.Record {
	all := r.cfg.Aggregator.Candidates(kind, rec.OriginalName)

	out := make([]*aggregate.Record, 0, len(all)+1)
	out = append(out, rec)

	appendByState := func(state backend.State) {
		for _, cand := range all {
			if cand.Backend == rec.Backend {
				continue
			}
			if s, ok := r.cfg.Registry.Get(cand.Backend); ok && s.State() == state {
				out = append(out, cand)
			}
		}
	}
	appendByState(backend.StateConnected)
	appendByState(backend.StateDegraded)
	return out
}

// failover reports whether the failure is worth retrying on an alternate
// backend.
func failover(err error) bool {
	return transport.Retryable(err) || errors.Is(err, backend.ErrBackendUnavailable)
}

func (r *Router) breakerFor(name string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	br, ok := r.breakers[name]
	if !ok {
		br = newBreaker(r.cfg.BreakerThreshold, r.cfg.BreakerCooldown)
		r.breakers[name] = br
	}
	return br
}

func (r *Router) countersFor(name string) *counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.metrics[name]
	if !ok {
		c = &counters{}
		r.metrics[name] = c
	}
	return c
}

// Metrics returns a per-backend snapshot of routing counters and circuit
// states.
func (r *Router) Metrics() map[string]BackendMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]BackendMetrics, len(r.metrics))
	for name, c := range r.metrics {
		m := c.snapshot()
		if br, ok := r.breakers[name]; ok {
			m.Breaker = br.snapshot()
		} else {
			m.Breaker = BreakerClosed
		}
		out[name] = m
	}
	for name, br := range r.breakers {
		if _, ok := out[name]; !ok {
			out[name] = BackendMetrics{Breaker: br.snapshot()}
		}
	}
	return out
}

// BreakerState returns the circuit state for one backend. Backends never
// dispatched to report a closed circuit.
func (r *Router) BreakerState(name string) BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if br, ok := r.breakers[name]; ok {
		return br.snapshot()
	}
	return BreakerClosed
}

func logf(l backend.Logger, format string, args ...any) {
	if l != nil {
		l.Logf(format, args...)
	}
}
