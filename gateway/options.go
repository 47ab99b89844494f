package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/toolgateway/aggregate"
	"github.com/jonwraymond/toolgateway/backend"
)

// Configuration errors.
var (
	// ErrConfiguration indicates invalid gateway options.
	ErrConfiguration = errors.New("invalid gateway options")

	// ErrInitialization indicates the gateway could not reach a usable
	// state under the configured init policy.
	ErrInitialization = errors.New("gateway initialization failed")

	// ErrClosed indicates the gateway was shut down.
	ErrClosed = errors.New("gateway closed")
)

// InitPolicy decides how Initialize treats backends that fail to connect.
type InitPolicy string

const (
	// InitFailFast aborts initialization on the first backend that cannot
	// connect. The default.
	InitFailFast InitPolicy = "fail-fast"

	// InitBestEffort comes up with whatever subset of backends connected;
	// initialization fails only when none did. Failed backends keep
	// recovering in the background.
	InitBestEffort InitPolicy = "best-effort"
)

// Options configures a Gateway.
type Options struct {
	// Backends are the backend configurations to register. At least one
	// is required.
	Backends []backend.Config

	// Supervision tunes connection retries, health probing, and shutdown
	// grace for every backend. Zero values take defaults.
	Supervision backend.Settings

	// InitPolicy defaults to InitFailFast.
	InitPolicy InitPolicy

	// ConflictPolicy resolves bare capability name collisions. Defaults
	// to priority-based resolution.
	ConflictPolicy aggregate.Policy

	// FetchTimeout bounds each backend's capability fetch during
	// aggregation. Defaults to 10s.
	FetchTimeout time.Duration

	// EnableSearch maintains a full-text index over the merged actions.
	EnableSearch bool

	// CallTimeout bounds each routed call. Defaults to 30s.
	CallTimeout time.Duration

	// BreakerThreshold and BreakerCooldown tune the per-backend circuit
	// breakers. Defaults: 5 failures, 30s cooldown.
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// CacheTTL, CacheMaxEntries, CacheMaxBytes, and CacheSweepInterval
	// tune the resource cache. Defaults: 5m, 1024 entries, 64 MiB, 1m.
	CacheTTL           time.Duration
	CacheMaxEntries    int
	CacheMaxBytes      int64
	CacheSweepInterval time.Duration

	// Logger receives diagnostics from every layer. Optional.
	Logger backend.Logger
}

// Validate checks the options. Backend configurations are validated
// individually at registration.
func (o *Options) Validate() error {
	if len(o.Backends) == 0 {
		return fmt.Errorf("%w: at least one backend is required", ErrConfiguration)
	}
	switch o.InitPolicy {
	case "", InitFailFast, InitBestEffort:
	default:
		return fmt.Errorf("%w: unknown init policy %q", ErrConfiguration, o.InitPolicy)
	}
	if o.ConflictPolicy != "" {
		if err := o.ConflictPolicy.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.InitPolicy == "" {
		o.InitPolicy = InitFailFast
	}
}
