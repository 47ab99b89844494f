package backend

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/toolgateway/transport"
)

// ErrConfiguration indicates an invalid or incomplete configuration.
var ErrConfiguration = errors.New("configuration error")

// Config describes one backend. Immutable after registration.
type Config struct {
	// Name uniquely identifies the backend and becomes its capability
	// namespace. Required; must not contain the namespace separator ".".
	Name string

	// Kind selects the wire transport.
	Kind transport.Kind

	// Priority orders backends on bare-name conflicts; lower wins.
	Priority int

	// Enabled backends are connected on initialize. Disabled ones are
	// skipped entirely.
	Enabled bool

	// Exactly one of the following must match Kind.

	// Process configures a subprocess backend (Kind = KindProcess).
	Process *transport.ProcessConfig

	// Stream configures an SSE backend (Kind = KindStream).
	Stream *transport.StreamConfig

	// Request configures a streamable HTTP backend (Kind = KindRequest).
	Request *transport.RequestConfig

	// Factory, when set, overrides kind-based client construction. Used
	// for in-process backends and tests.
	Factory transport.Factory
}

// Validate checks the configuration.
// Returns an error wrapping ErrConfiguration on any problem.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: backend name is required", ErrConfiguration)
	}
	if strings.Contains(c.Name, ".") {
		return fmt.Errorf("%w: backend name %q must not contain %q", ErrConfiguration, c.Name, ".")
	}
	if c.Factory != nil {
		return nil
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: backend %q: unknown transport kind %q", ErrConfiguration, c.Name, c.Kind)
	}
	switch c.Kind {
	case transport.KindProcess:
		if c.Process == nil {
			return fmt.Errorf("%w: backend %q: process settings are required", ErrConfiguration, c.Name)
		}
		if err := c.Process.Validate(); err != nil {
			return fmt.Errorf("%w: backend %q: %v", ErrConfiguration, c.Name, err)
		}
	case transport.KindStream:
		if c.Stream == nil {
			return fmt.Errorf("%w: backend %q: stream settings are required", ErrConfiguration, c.Name)
		}
		if err := c.Stream.Validate(); err != nil {
			return fmt.Errorf("%w: backend %q: %v", ErrConfiguration, c.Name, err)
		}
	case transport.KindRequest:
		if c.Request == nil {
			return fmt.Errorf("%w: backend %q: request settings are required", ErrConfiguration, c.Name)
		}
		if err := c.Request.Validate(); err != nil {
			return fmt.Errorf("%w: backend %q: %v", ErrConfiguration, c.Name, err)
		}
	}
	return nil
}

// factory resolves the transport factory for this backend.
func (c Config) factory() (transport.Factory, error) {
	if c.Factory != nil {
		return c.Factory, nil
	}
	switch c.Kind {
	case transport.KindProcess:
		return c.Process.Factory(), nil
	case transport.KindStream:
		return c.Stream.Factory(), nil
	case transport.KindRequest:
		return c.Request.Factory(), nil
	}
	return nil, fmt.Errorf("%w: backend %q: unknown transport kind %q", ErrConfiguration, c.Name, c.Kind)
}

// Settings tunes supervisor behavior. Shared by all backends of a registry.
type Settings struct {
	// ConnectAttempts bounds initial connect retries. Default 5.
	ConnectAttempts int

	// BackoffBase is the first retry delay. Default 500ms.
	BackoffBase time.Duration

	// BackoffCap bounds the retry delay. Default 30s.
	BackoffCap time.Duration

	// ProbeInterval is the health probe period. Default 15s.
	ProbeInterval time.Duration

	// ProbeFailureThreshold is the number of consecutive probe failures
	// that drives a backend from Degraded to Error. Default 3.
	ProbeFailureThreshold int

	// ProbeTimeout bounds one probe or recovery dial. Default 5s.
	ProbeTimeout time.Duration

	// ShutdownGrace is how long Stop waits for in-flight calls. Default 5s.
	ShutdownGrace time.Duration

	// Logger is an optional logger for observability.
	Logger Logger
}

func (s *Settings) applyDefaults() {
	if s.ConnectAttempts <= 0 {
		s.ConnectAttempts = 5
	}
	if s.BackoffBase <= 0 {
		s.BackoffBase = 500 * time.Millisecond
	}
	if s.BackoffCap <= 0 {
		s.BackoffCap = 30 * time.Second
	}
	if s.ProbeInterval <= 0 {
		s.ProbeInterval = 15 * time.Second
	}
	if s.ProbeFailureThreshold <= 0 {
		s.ProbeFailureThreshold = 3
	}
	if s.ProbeTimeout <= 0 {
		s.ProbeTimeout = 5 * time.Second
	}
	if s.ShutdownGrace <= 0 {
		s.ShutdownGrace = 5 * time.Second
	}
}
