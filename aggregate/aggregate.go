package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/toolgateway/backend"
)

// ErrConfiguration indicates an invalid aggregator configuration.
var ErrConfiguration = errors.New("invalid aggregator configuration")

// Config configures an Aggregator.
type Config struct {
	// Registry supplies the backends to aggregate over. Required.
	Registry *backend.Registry

	// Policy resolves bare-name collisions. Defaults to PolicyPriority.
	Policy Policy

	// FetchTimeout bounds each backend's capability fetch during a rebuild,
	// so one hung backend never stalls the whole pass. Defaults to 10s.
	FetchTimeout time.Duration

	// EnableSearch maintains a full-text index over the merged actions,
	// rebuilt on every pass.
	EnableSearch bool

	// Logger receives rebuild and conflict diagnostics. Optional.
	Logger backend.Logger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Registry == nil {
		return fmt.Errorf("%w: registry is required", ErrConfiguration)
	}
	if c.Policy != "" {
		if err := c.Policy.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Policy == "" {
		c.Policy = PolicyPriority
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
}

// snapshot is one backend's capability listing.
type snapshot struct {
	actions   []*mcp.Tool
	resources []*mcp.Resource
}

// Aggregator maintains the merged capability tables. It is passive: callers
// (typically the gateway's registry watch loop) trigger Rebuild; reads are
// served from the last completed pass and never touch a backend.
type Aggregator struct {
	cfg Config

	mu        sync.RWMutex
	actions   *table
	resources *table
	conflicts []Conflict
	lastKnown map[string]snapshot
	search    searcher

	// gateMu guards the coalescing flags only.
	gateMu     sync.Mutex
	rebuilding bool
	queued     bool
}

// NewAggregator creates an aggregator over the given registry. The tables
// start empty; call Rebuild after the backends are started.
func NewAggregator(cfg Config) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &Aggregator{
		cfg:       cfg,
		actions:   newTable(),
		resources: newTable(),
		lastKnown: make(map[string]snapshot),
	}, nil
}

// Policy returns the active conflict resolution policy.
func (a *Aggregator) Policy() Policy { return a.cfg.Policy }

// Rebuild recomputes the capability tables from every routable backend.
// The rebuild always runs from scratch; it never patches the previous
// tables. Concurrent calls coalesce: a Rebuild arriving while one is in
// progress schedules exactly one follow-up pass and returns immediately.
func (a *Aggregator) Rebuild(ctx context.Context) {
	a.gateMu.Lock()
	if a.rebuilding {
		a.queued = true
		a.gateMu.Unlock()
		return
	}
	a.rebuilding = true
	a.gateMu.Unlock()

	for {
		a.rebuildOnce(ctx)

		a.gateMu.Lock()
		if !a.queued {
			a.rebuilding = false
			a.gateMu.Unlock()
			return
		}
		a.queued = false
		a.gateMu.Unlock()
	}
}

func (a *Aggregator) rebuildOnce(ctx context.Context) {
	supervisors := a.cfg.Registry.Routable()

	actions := newTable()
	resources := newTable()
	fresh := make(map[string]snapshot, len(supervisors))

	// Routable() orders by ascending priority, which is exactly the
	// application order the conflict policies assume.
	for _, s := range supervisors {
		snap := a.fetch(ctx, s)
		fresh[s.Name()] = snap

		for _, tool := range snap.actions {
			actions.add(&Record{
				Kind:           KindAction,
				OriginalName:   tool.Name,
				NamespacedName: FormatID(s.Name(), tool.Name),
				Backend:        s.Name(),
				Priority:       s.Priority(),
				Action:         tool,
			}, a.cfg.Policy)
		}
		for _, res := range snap.resources {
			resources.add(&Record{
				Kind:           KindResource,
				OriginalName:   res.URI,
				NamespacedName: FormatID(s.Name(), res.URI),
				Backend:        s.Name(),
				Priority:       s.Priority(),
				Resource:       res,
			}, a.cfg.Policy)
		}
	}

	conflicts := append(actions.conflicts(KindAction, a.cfg.Policy),
		resources.conflicts(KindResource, a.cfg.Policy)...)

	var search searcher
	if a.cfg.EnableSearch {
		search = buildSearchIndex(actions.list())
	}

	a.mu.Lock()
	a.actions = actions
	a.resources = resources
	a.conflicts = conflicts
	a.lastKnown = fresh
	a.search = search
	a.mu.Unlock()

	for _, c := range conflicts {
		logf(a.cfg.Logger, "aggregate: %s name %q contested by %d backends, policy %s, winner %q",
			c.Kind, c.BareName, len(c.Contenders), c.Policy, c.Winner)
	}
}

// fetch lists one backend's capabilities under the per-backend timeout.
// A failed fetch falls back to the backend's most recent successful
// listing, so a transient outage does not blank the tables; a backend
// never fetched before simply contributes nothing this pass.
func (a *Aggregator) fetch(ctx context.Context, s *backend.Supervisor) snapshot {
	fctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	tools, err := s.ListActions(fctx)
	if err != nil {
		logf(a.cfg.Logger, "aggregate: %s: listing actions failed, using last known capabilities: %v", s.Name(), err)
		a.mu.RLock()
		prev, ok := a.lastKnown[s.Name()]
		a.mu.RUnlock()
		if !ok {
			return snapshot{}
		}
		return prev
	}

	snap := snapshot{actions: tools}
	res, err := s.ListResources(fctx)
	if err != nil {
		logf(a.cfg.Logger, "aggregate: %s: listing resources failed: %v", s.Name(), err)
	} else {
		snap.resources = res
	}
	return snap
}

// ResolveAction maps an action name to its record. Namespaced lookup wins;
// a name with no namespace match falls through to the bare table, where
// the conflict policy already decided ownership.
func (a *Aggregator) ResolveAction(name string) (*Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.actions.resolve(name)
}

// ResolveResource maps a resource URI (optionally namespaced) to its record.
func (a *Aggregator) ResolveResource(uri string) (*Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.resources.resolve(uri)
}

// Candidates returns every backend's record for the given original name,
// ordered by ascending priority. This includes contenders whose bare entry
// lost (or was dropped) during conflict resolution, which is what failover
// routing needs.
func (a *Aggregator) Candidates(kind CapabilityKind, original string) []*Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t := a.actions
	if kind == KindResource {
		t = a.resources
	}
	out := make([]*Record, len(t.candidates[original]))
	copy(out, t.candidates[original])
	return out
}

// ListActions returns every merged action record, sorted by namespaced name.
func (a *Aggregator) ListActions() []*Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.actions.list()
}

// ListResources returns every merged resource record, sorted by namespaced
// name.
func (a *Aggregator) ListResources() []*Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.resources.list()
}

// Namespaces returns the sorted set of backend namespaces that contributed
// at least one capability to the last pass.
func (a *Aggregator) Namespaces() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, rec := range a.actions.ns {
		seen[rec.Backend] = struct{}{}
	}
	for _, rec := range a.resources.ns {
		seen[rec.Backend] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Conflicts returns the collisions observed during the last pass, sorted by
// bare name.
func (a *Aggregator) Conflicts() []Conflict {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Conflict, len(a.conflicts))
	copy(out, a.conflicts)
	return out
}

// table holds one capability kind's merged namespace.
type table struct {
	ns         map[string]*Record
	bare       map[string]*Record
	candidates map[string][]*Record
}

func newTable() *table {
	return &table{
		ns:         make(map[string]*Record),
		bare:       make(map[string]*Record),
		candidates: make(map[string][]*Record),
	}
}

// add registers a record. The namespaced entry is unconditional; the bare
// entry goes through the conflict policy. A bare name already dropped by
// PolicyExplicitOnly stays dropped for later contenders.
func (t *table) add(rec *Record, policy Policy) {
	t.ns[rec.NamespacedName] = rec
	t.candidates[rec.OriginalName] = append(t.candidates[rec.OriginalName], rec)

	existing, ok := t.bare[rec.OriginalName]
	if !ok {
		if len(t.candidates[rec.OriginalName]) == 1 {
			t.bare[rec.OriginalName] = rec
		}
		return
	}
	if resolved := policy.resolve(existing, rec); resolved != nil {
		t.bare[rec.OriginalName] = resolved
	} else {
		delete(t.bare, rec.OriginalName)
	}
}

func (t *table) resolve(name string) (*Record, bool) {
	if rec, ok := t.ns[name]; ok {
		return rec, true
	}
	rec, ok := t.bare[name]
	return rec, ok
}

func (t *table) list() []*Record {
	out := make([]*Record, 0, len(t.ns))
	for _, rec := range t.ns {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NamespacedName < out[j].NamespacedName })
	return out
}

func (t *table) conflicts(kind CapabilityKind, policy Policy) []Conflict {
	var out []Conflict
	for name, recs := range t.candidates {
		if len(recs) < 2 {
			continue
		}
		c := Conflict{Kind: kind, BareName: name, Policy: policy}
		for _, rec := range recs {
			c.Contenders = append(c.Contenders, Contender{Backend: rec.Backend, Priority: rec.Priority})
		}
		if winner, ok := t.bare[name]; ok {
			c.Winner = winner.Backend
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BareName < out[j].BareName })
	return out
}

func logf(l backend.Logger, format string, args ...any) {
	if l != nil {
		l.Logf(format, args...)
	}
}
