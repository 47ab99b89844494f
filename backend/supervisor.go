package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/toolgateway/transport"
)

// Common errors for backend operations.
var (
	// ErrBackendUnavailable indicates the backend is not in a routable
	// state (or is shutting down).
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrStopped indicates the supervisor was stopped while an operation
	// was pending.
	ErrStopped = errors.New("supervisor stopped")
)

// Event is a registry change notification: a backend appeared, changed
// state, or was removed.
type Event struct {
	// Backend is the backend name.
	Backend string

	// State is the state after the change. StateDisconnected is also
	// emitted when a backend is unregistered.
	State State

	// Err is the failure that caused the change, if any.
	Err error
}

// Supervisor owns exactly one backend: its configuration, its transport
// client, and its connection state. All state mutation happens on the
// supervisor's own probe/connect path, so no registry-wide lock is ever
// held across a network call.
type Supervisor struct {
	config   Config
	factory  transport.Factory
	settings Settings
	notify   func(Event)

	mu         sync.Mutex
	state      State
	client     transport.Client
	desc       transport.Descriptor
	lastErr    error
	probeFails int
	closing    bool

	inflight sync.WaitGroup

	loopWG   sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newSupervisor(config Config, settings Settings, notify func(Event)) (*Supervisor, error) {
	factory, err := config.factory()
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		config:   config,
		factory:  factory,
		settings: settings,
		notify:   notify,
		state:    StateInitializing,
		stopCh:   make(chan struct{}),
	}, nil
}

// Name returns the backend name.
func (s *Supervisor) Name() string { return s.config.Name }

// Priority returns the configured conflict priority (lower = preferred).
func (s *Supervisor) Priority() int { return s.config.Priority }

// Enabled reports whether the backend participates in StartAll.
func (s *Supervisor) Enabled() bool { return s.config.Enabled }

// Kind returns the backend's transport kind.
func (s *Supervisor) Kind() transport.Kind {
	if s.config.Factory != nil && !s.config.Kind.Valid() {
		return transport.KindMemory
	}
	return s.config.Kind
}

// Config returns the immutable backend configuration.
func (s *Supervisor) Config() Config { return s.config }

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Descriptor returns the handshake descriptor of the most recent
// successful connection.
func (s *Supervisor) Descriptor() transport.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc
}

// LastError returns the failure that drove the most recent unhealthy
// transition, or nil when the backend is healthy.
func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start connects the backend: connect+handshake with exponential backoff
// and jitter, up to the configured attempt limit. On exhaustion the backend
// lands in StateError and the error is returned; the caller decides whether
// that is fatal. The background probe loop starts either way, so a backend
// that failed its initial connect remains eligible for recovery.
func (s *Supervisor) Start(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < s.settings.ConnectAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(s.settings.BackoffBase, s.settings.BackoffCap, attempt-1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				s.setState(StateError, ctx.Err())
				s.startLoop()
				return fmt.Errorf("backend %q: connect aborted: %w", s.config.Name, ctx.Err())
			case <-s.stopCh:
				return fmt.Errorf("backend %q: %w", s.config.Name, ErrStopped)
			}
		}

		lastErr = s.dial(ctx)
		if lastErr == nil {
			s.startLoop()
			return nil
		}
		logf(s.settings.Logger, "backend %s: connect attempt %d/%d failed: %v",
			s.config.Name, attempt+1, s.settings.ConnectAttempts, lastErr)
		if !transport.Retryable(lastErr) {
			break
		}
	}

	s.setState(StateError, lastErr)
	s.startLoop()
	return fmt.Errorf("backend %q: connect failed: %w", s.config.Name, lastErr)
}

func (s *Supervisor) startLoop() {
	s.loopWG.Add(1)
	go s.probeLoop()
}

// dial builds a fresh client, connects and handshakes it, and installs it
// as the live channel. The previous client, if any, is closed first.
func (s *Supervisor) dial(ctx context.Context) error {
	client := s.factory()
	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return err
	}
	desc, err := client.Handshake(ctx)
	if err != nil {
		_ = client.Close()
		return err
	}

	s.mu.Lock()
	old := s.client
	s.client = client
	s.desc = desc
	s.probeFails = 0
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	s.setState(StateConnected, nil)
	return nil
}

// probeLoop drives the health state machine at a fixed interval. One
// backend's slow probe never blocks another's: every supervisor runs its
// own loop.
func (s *Supervisor) probeLoop() {
	defer s.loopWG.Done()

	ticker := time.NewTicker(s.settings.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.probeOnce()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Supervisor) probeOnce() {
	s.mu.Lock()
	state := s.state
	client := s.client
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.settings.ProbeTimeout)
	defer cancel()

	switch {
	case state.Routable() && client != nil:
		if err := client.Probe(ctx); err != nil {
			s.probeFailed(err)
		} else {
			s.probeSucceeded()
		}
	case state == StateError:
		s.recover(ctx)
	}
}

// probeFailed walks Connected → Degraded → Error as consecutive failures
// accumulate. Reaching the threshold drops the channel: recovery dials a
// fresh one instead of resuming.
func (s *Supervisor) probeFailed(cause error) {
	s.mu.Lock()
	s.probeFails++
	fails := s.probeFails
	var client transport.Client
	if fails >= s.settings.ProbeFailureThreshold {
		client = s.client
		s.client = nil
	}
	s.mu.Unlock()

	logf(s.settings.Logger, "backend %s: probe failed (%d consecutive): %v", s.config.Name, fails, cause)

	if fails >= s.settings.ProbeFailureThreshold {
		if client != nil {
			_ = client.Close()
		}
		s.setState(StateError, cause)
		return
	}
	s.setState(StateDegraded, cause)
}

func (s *Supervisor) probeSucceeded() {
	s.mu.Lock()
	s.probeFails = 0
	s.mu.Unlock()
	s.setState(StateConnected, nil)
}

// recover attempts one fresh reconnect from StateError.
func (s *Supervisor) recover(ctx context.Context) {
	s.setState(StateReconnecting, nil)
	if err := s.dial(ctx); err != nil {
		logf(s.settings.Logger, "backend %s: reconnect failed: %v", s.config.Name, err)
		s.setState(StateError, err)
	}
}

// Stop shuts the backend down cooperatively: the probe loop stops, new
// calls are refused, in-flight calls get the grace deadline, then the
// channel is force-closed.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.loopWG.Wait()

	s.mu.Lock()
	s.closing = true
	client := s.client
	s.client = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	grace := time.NewTimer(s.settings.ShutdownGrace)
	defer grace.Stop()
	select {
	case <-done:
	case <-grace.C:
		logf(s.settings.Logger, "backend %s: grace deadline elapsed with calls in flight", s.config.Name)
	case <-ctx.Done():
	}

	var err error
	if client != nil {
		err = client.Close()
	}
	s.setState(StateDisconnected, nil)
	return err
}

// acquire hands out the live client and registers an in-flight call.
// Callers must pair it with release.
func (s *Supervisor) acquire() (transport.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil, fmt.Errorf("%w: backend %q is shutting down", ErrBackendUnavailable, s.config.Name)
	}
	if !s.state.Routable() || s.client == nil {
		return nil, fmt.Errorf("%w: backend %q is %s", ErrBackendUnavailable, s.config.Name, s.state)
	}
	s.inflight.Add(1)
	return s.client, nil
}

func (s *Supervisor) release() {
	s.inflight.Done()
}

// ListActions lists the backend's actions over the live channel.
func (s *Supervisor) ListActions(ctx context.Context) ([]*mcp.Tool, error) {
	client, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()
	return client.ListActions(ctx)
}

// ListResources lists the backend's resources over the live channel.
func (s *Supervisor) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
	client, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()
	return client.ListResources(ctx)
}

// Invoke executes an action over the live channel.
func (s *Supervisor) Invoke(ctx context.Context, action string, args map[string]any) (*mcp.CallToolResult, error) {
	client, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()
	return client.InvokeAction(ctx, action, args)
}

// ReadResource fetches a resource payload over the live channel.
func (s *Supervisor) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	client, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()
	return client.ReadResource(ctx, uri)
}

// setState applies a transition and notifies the registry when the state
// actually changed.
func (s *Supervisor) setState(next State, cause error) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	if cause != nil {
		s.lastErr = cause
	}
	if next == StateConnected {
		s.lastErr = nil
	}
	notify := s.notify
	s.mu.Unlock()

	if prev == next {
		return
	}
	logf(s.settings.Logger, "backend %s: %s -> %s", s.config.Name, prev, next)
	if notify != nil {
		notify(Event{Backend: s.config.Name, State: next, Err: cause})
	}
}
