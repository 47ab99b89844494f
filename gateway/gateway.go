// Package gateway is the facade over the whole stack: it supervises a set
// of heterogeneous capability backends, merges what they advertise into
// one namespace, and routes calls and resource reads with circuit breaking,
// failover, and a read-through resource cache.
//
// Contract:
//   - New registers the configured backends but connects nothing.
//   - Initialize connects them under the init policy and starts the
//     re-aggregation loop; the gateway is then ready for calls.
//   - Shutdown is idempotent and drains in-flight calls per backend grace.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/tooldiscovery/index"

	"github.com/jonwraymond/toolgateway/aggregate"
	"github.com/jonwraymond/toolgateway/backend"
	"github.com/jonwraymond/toolgateway/cache"
	"github.com/jonwraymond/toolgateway/route"
)

// Gateway aggregates many capability backends behind one surface.
type Gateway struct {
	opts       Options
	registry   *backend.Registry
	aggregator *aggregate.Aggregator
	router     *route.Router
	cache      *cache.Cache

	mu     sync.Mutex
	events chan backend.Event
	closed bool

	loopWG sync.WaitGroup
}

// New builds a gateway from options. Backends are registered and
// validated, but nothing connects until Initialize.
func New(opts Options) (*Gateway, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	settings := opts.Supervision
	settings.Logger = opts.Logger

	registry := backend.NewRegistry(settings)
	for _, cfg := range opts.Backends {
		if _, err := registry.Register(cfg); err != nil {
			return nil, err
		}
	}

	aggregator, err := aggregate.NewAggregator(aggregate.Config{
		Registry:     registry,
		Policy:       opts.ConflictPolicy,
		FetchTimeout: opts.FetchTimeout,
		EnableSearch: opts.EnableSearch,
		Logger:       opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	router, err := route.New(route.Config{
		Registry:         registry,
		Aggregator:       aggregator,
		CallTimeout:      opts.CallTimeout,
		BreakerThreshold: opts.BreakerThreshold,
		BreakerCooldown:  opts.BreakerCooldown,
		Logger:           opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Gateway{
		opts:       opts,
		registry:   registry,
		aggregator: aggregator,
		router:     router,
		cache: cache.New(cache.Config{
			TTL:           opts.CacheTTL,
			MaxEntries:    opts.CacheMaxEntries,
			MaxBytes:      opts.CacheMaxBytes,
			SweepInterval: opts.CacheSweepInterval,
			Logger:        opts.Logger,
		}),
	}, nil
}

// Initialize connects every backend in parallel, applies the init policy
// to the outcome, builds the first capability tables, and starts the loop
// that re-aggregates on backend changes.
func (g *Gateway) Initialize(ctx context.Context) error {
	startErr := g.registry.StartAll(ctx)
	if startErr != nil {
		switch g.opts.InitPolicy {
		case InitBestEffort:
			if len(g.registry.Routable()) == 0 {
				_ = g.registry.StopAll(ctx)
				return fmt.Errorf("%w: no backend connected: %w", ErrInitialization, startErr)
			}
			logf(g.opts.Logger, "gateway: continuing with %d of %d backends: %v",
				len(g.registry.Routable()), len(g.registry.Names()), startErr)
		default:
			_ = g.registry.StopAll(ctx)
			return fmt.Errorf("%w: %w", ErrInitialization, startErr)
		}
	}

	g.aggregator.Rebuild(ctx)

	g.mu.Lock()
	g.events = g.registry.Watch()
	events := g.events
	g.mu.Unlock()

	g.loopWG.Add(1)
	go g.watchLoop(events)
	return nil
}

// watchLoop re-aggregates whenever a backend changes state, and drops the
// cache entries of backends that stopped being routable. Bursts of events
// coalesce inside the aggregator.
func (g *Gateway) watchLoop(events chan backend.Event) {
	defer g.loopWG.Done()

	for ev := range events {
		if !ev.State.Routable() {
			if n := g.cache.InvalidatePrefix(ev.Backend + aggregate.Separator); n > 0 {
				logf(g.opts.Logger, "gateway: dropped %d cached resources of %s", n, ev.Backend)
			}
		}
		g.aggregator.Rebuild(context.Background())
	}
}

// CallTool invokes an action by namespaced or bare name.
func (g *Gateway) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if err := g.live(); err != nil {
		return nil, err
	}
	return g.router.CallAction(ctx, name, args)
}

// GetResource reads a resource by namespaced or bare URI, through the
// cache. The cache key is the owning record's namespaced URI, so the bare
// and namespaced forms of the same resource share one entry.
func (g *Gateway) GetResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	if err := g.live(); err != nil {
		return nil, err
	}

	rec, ok := g.aggregator.ResolveResource(uri)
	if !ok {
		return nil, fmt.Errorf("%w: %q", route.ErrResourceNotFound, uri)
	}
	if res, ok := g.cache.Get(rec.NamespacedName); ok {
		return res, nil
	}

	res, err := g.router.ReadResource(ctx, uri)
	if err != nil {
		return nil, err
	}
	g.cache.Put(rec.NamespacedName, res)
	return res, nil
}

// InvalidateResource drops a resource from the cache so the next read
// refetches it. The URI may be namespaced or bare.
func (g *Gateway) InvalidateResource(uri string) bool {
	rec, ok := g.aggregator.ResolveResource(uri)
	if !ok {
		return false
	}
	return g.cache.Invalidate(rec.NamespacedName)
}

// ListTools returns every merged action record.
func (g *Gateway) ListTools() []*aggregate.Record {
	return g.aggregator.ListActions()
}

// ListResources returns every merged resource record.
func (g *Gateway) ListResources() []*aggregate.Record {
	return g.aggregator.ListResources()
}

// SearchTools queries the action index. Requires EnableSearch.
func (g *Gateway) SearchTools(ctx context.Context, query string, limit int) ([]index.Summary, error) {
	return g.aggregator.Search(ctx, query, limit)
}

// ListNamespaces returns the backends currently contributing capabilities.
func (g *Gateway) ListNamespaces() []string {
	return g.aggregator.Namespaces()
}

// Conflicts returns the bare-name collisions from the last aggregation.
func (g *Gateway) Conflicts() []aggregate.Conflict {
	return g.aggregator.Conflicts()
}

// Registry exposes the underlying registry for dynamic backend management.
// Backends registered here become visible after their first state event
// triggers a re-aggregation.
func (g *Gateway) Registry() *backend.Registry {
	return g.registry
}

// Shutdown stops the watch loop, disconnects every backend with its grace
// deadline, and clears the cache. Idempotent.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	events := g.events
	g.events = nil
	g.mu.Unlock()

	if events != nil {
		g.registry.Unwatch(events)
		g.loopWG.Wait()
	}
	err := g.registry.StopAll(ctx)
	g.cache.InvalidateAll()
	g.cache.Close()
	return err
}

func (g *Gateway) live() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	return nil
}

func logf(l backend.Logger, format string, args ...any) {
	if l != nil {
		l.Logf(format, args...)
	}
}
