package gateway

import (
	"github.com/jonwraymond/toolgateway/aggregate"
	"github.com/jonwraymond/toolgateway/backend"
	"github.com/jonwraymond/toolgateway/cache"
	"github.com/jonwraymond/toolgateway/route"
	"github.com/jonwraymond/toolgateway/transport"
)

// BackendStatus is one backend's slice of a Status snapshot.
type BackendStatus struct {
	// Name is the backend name, which is also its namespace.
	Name string

	// Kind is the backend's transport kind.
	Kind transport.Kind

	// Priority is the configured conflict priority.
	Priority int

	// State is the supervisor's connection state.
	State backend.State

	// Descriptor is the handshake descriptor of the last successful
	// connection; zero if the backend never connected.
	Descriptor transport.Descriptor

	// LastError is the most recent failure, empty when healthy.
	LastError string

	// Breaker is the routing circuit state.
	Breaker route.BreakerState

	// Metrics are the routing counters.
	Metrics route.BackendMetrics
}

// Status is a point-in-time view of the whole gateway.
type Status struct {
	// Backends lists every registered backend in priority order.
	Backends []BackendStatus

	// Actions and Resources count the merged capability records.
	Actions   int
	Resources int

	// Namespaces lists the backends contributing capabilities.
	Namespaces []string

	// Conflicts lists the bare-name collisions from the last aggregation.
	Conflicts []aggregate.Conflict

	// Cache summarizes resource cache effectiveness.
	Cache cache.Stats
}

// Status assembles a snapshot across the registry, aggregator, router, and
// cache. It never touches a backend.
func (g *Gateway) Status() Status {
	metrics := g.router.Metrics()

	st := Status{
		Actions:    len(g.aggregator.ListActions()),
		Resources:  len(g.aggregator.ListResources()),
		Namespaces: g.aggregator.Namespaces(),
		Conflicts:  g.aggregator.Conflicts(),
		Cache:      g.cache.Stats(),
	}
	for _, s := range g.registry.List() {
		bs := BackendStatus{
			Name:       s.Name(),
			Kind:       s.Kind(),
			Priority:   s.Priority(),
			State:      s.State(),
			Descriptor: s.Descriptor(),
			Breaker:    g.router.BreakerState(s.Name()),
			Metrics:    metrics[s.Name()],
		}
		if err := s.LastError(); err != nil {
			bs.LastError = err.Error()
		}
		st.Backends = append(st.Backends, bs)
	}
	return st
}
