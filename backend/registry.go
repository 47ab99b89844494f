package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/toolgateway/transport"
)

// Registry errors.
var (
	// ErrBackendExists is returned when registering a duplicate backend.
	ErrBackendExists = errors.New("backend already registered")

	// ErrBackendNotFound is returned when a backend name is unknown.
	ErrBackendNotFound = errors.New("backend not found")
)

// Registry is the set of all supervisors: the single source of truth for
// which backends exist and whether they are healthy. The registry lock is
// held only for map access, never across a network call; each backend's
// state lives behind its own supervisor.
type Registry struct {
	settings Settings

	mu          sync.RWMutex
	supervisors map[string]*Supervisor
	watchers    map[chan Event]struct{}
}

// NewRegistry creates an empty registry with the given supervisor settings.
func NewRegistry(settings Settings) *Registry {
	settings.applyDefaults()
	return &Registry{
		settings:    settings,
		supervisors: make(map[string]*Supervisor),
		watchers:    make(map[chan Event]struct{}),
	}
}

// Register validates config, creates its supervisor, and adds it to the
// registry. Registration is atomic: a duplicate name is rejected, never
// silently overwritten. The supervisor is not connected; call
// Supervisor.Start.
func (r *Registry) Register(config Config) (*Supervisor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.supervisors[config.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrBackendExists, config.Name)
	}
	s, err := newSupervisor(config, r.settings, r.publish)
	if err != nil {
		return nil, err
	}
	r.supervisors[config.Name] = s
	return s, nil
}

// Unregister stops a backend and removes it from the registry. The
// supervisor's Disconnected transition is published to watchers.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	s, exists := r.supervisors[name]
	if exists {
		delete(r.supervisors, name)
	}
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}
	return s.Stop(ctx)
}

// Get retrieves a supervisor by backend name.
func (r *Registry) Get(name string) (*Supervisor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.supervisors[name]
	return s, ok
}

// List returns all supervisors sorted by ascending priority, ties broken
// by name for deterministic output.
func (r *Registry) List() []*Supervisor {
	r.mu.RLock()
	out := make([]*Supervisor, 0, len(r.supervisors))
	for _, s := range r.supervisors {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() < out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Routable returns the supervisors currently eligible for routing
// (Connected or Degraded), sorted by ascending priority.
func (r *Registry) Routable() []*Supervisor {
	all := r.List()
	out := make([]*Supervisor, 0, len(all))
	for _, s := range all {
		if s.State().Routable() {
			out = append(out, s)
		}
	}
	return out
}

// AllConnected reports whether every registered backend is in
// StateConnected.
func (r *Registry) AllConnected() bool {
	for _, s := range r.List() {
		if s.State() != StateConnected {
			return false
		}
	}
	return true
}

// ListByKind returns supervisors speaking the given transport kind, sorted
// by ascending priority.
func (r *Registry) ListByKind(kind transport.Kind) []*Supervisor {
	all := r.List()
	out := make([]*Supervisor, 0, len(all))
	for _, s := range all {
		if s.Kind() == kind {
			out = append(out, s)
		}
	}
	return out
}

// Names returns backend names sorted for deterministic output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.supervisors))
	for name := range r.supervisors {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Watch returns a channel receiving registry change events: a backend
// connected, changed state, or went away. The channel is buffered; a slow
// subscriber loses events rather than blocking a supervisor, so treat an
// event as "something changed" and re-query the registry.
func (r *Registry) Watch() chan Event {
	ch := make(chan Event, 16)
	r.mu.Lock()
	r.watchers[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

// Unwatch removes and closes a watch channel.
func (r *Registry) Unwatch(ch chan Event) {
	r.mu.Lock()
	_, ok := r.watchers[ch]
	delete(r.watchers, ch)
	r.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (r *Registry) publish(e Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for ch := range r.watchers {
		select {
		case ch <- e:
		default:
			logf(r.settings.Logger, "registry: watcher full, dropped event for %s", e.Backend)
		}
	}
}

// StartAll connects every enabled supervisor in parallel and waits for
// all attempts to settle. Disabled backends stay registered but untouched.
// The returned error reflects the first connect failure; partial failure
// handling is the caller's policy.
func (r *Registry) StartAll(ctx context.Context) error {
	var g errgroup.Group
	for _, s := range r.List() {
		if !s.Enabled() {
			logf(r.settings.Logger, "registry: backend %s disabled, not connecting", s.Name())
			continue
		}
		g.Go(func() error {
			return s.Start(ctx)
		})
	}
	return g.Wait()
}

// StopAll stops every supervisor in parallel, each with its own grace
// deadline, and waits for all of them.
func (r *Registry) StopAll(ctx context.Context) error {
	var g errgroup.Group
	for _, s := range r.List() {
		g.Go(func() error {
			return s.Stop(ctx)
		})
	}
	return g.Wait()
}
