// Package cache provides a TTL and size bounded store for resource
// payloads, so repeated reads of the same resource do not hit the owning
// backend every time.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Logger receives cache diagnostics.
type Logger interface {
	Logf(format string, args ...any)
}

// Config tunes the cache.
type Config struct {
	// TTL is how long an entry stays fresh. Defaults to 5m.
	TTL time.Duration

	// MaxEntries bounds the entry count. Defaults to 1024.
	MaxEntries int

	// MaxBytes bounds the summed payload size of all live entries.
	// Exceeding either bound triggers eviction down to the low-water
	// mark. A single payload larger than MaxBytes is never cached.
	// Defaults to 64 MiB.
	MaxBytes int64

	// SweepInterval is how often the background sweeper drops expired
	// entries. Defaults to 1m.
	SweepInterval time.Duration

	// Logger is optional.
	Logger Logger
}

func (c *Config) applyDefaults() {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 1024
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 64 << 20
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Entries     int
	SizeBytes   int64
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
}

type entry struct {
	value      *mcp.ReadResourceResult
	size       int64
	expires    time.Time
	lastAccess time.Time
	hits       uint64
}

// payloadSize is the byte weight of a cached result: the summed text and
// blob lengths across its contents.
func payloadSize(value *mcp.ReadResourceResult) int64 {
	var n int64
	if value == nil {
		return 0
	}
	for _, c := range value.Contents {
		if c == nil {
			continue
		}
		n += int64(len(c.Text)) + int64(len(c.Blob))
	}
	return n
}

// Cache stores resource payloads keyed by namespaced URI. Entries expire
// after the TTL; when the cache outgrows MaxEntries or MaxBytes the least
// valuable entries (fewest hits, least recently touched) are evicted down
// to 80% of both bounds, so the summed payload size never exceeds
// MaxBytes. All methods are safe for concurrent use.
type Cache struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry
	size    int64
	stats   Stats

	stopCh   chan struct{}
	stopOnce sync.Once
	sweepWG  sync.WaitGroup
}

// New creates a cache and starts its background sweeper. Call Close to
// stop it.
func New(cfg Config) *Cache {
	cfg.applyDefaults()
	c := &Cache{
		cfg:     cfg,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}
	c.sweepWG.Add(1)
	go c.sweepLoop()
	return c
}

// Get returns the cached payload for key, if present and fresh. An expired
// entry is removed on the spot and reported as a miss.
func (c *Cache) Get(key string) (*mcp.ReadResourceResult, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if now.After(e.expires) {
		c.removeLocked(key, e)
		c.stats.Expirations++
		c.stats.Misses++
		return nil, false
	}
	e.lastAccess = now
	e.hits++
	c.stats.Hits++
	return e.value, true
}

// Put stores a payload under key, replacing any previous entry and
// restarting its TTL. A payload larger than MaxBytes is refused outright;
// any stale entry under the same key is dropped so it cannot outlive the
// refused update.
func (c *Cache) Put(key string, value *mcp.ReadResourceResult) {
	now := time.Now()
	size := payloadSize(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(key, old)
	}
	if size > c.cfg.MaxBytes {
		if c.cfg.Logger != nil {
			c.cfg.Logger.Logf("cache: payload for %s is %d bytes, over the %d byte capacity, not cached", key, size, c.cfg.MaxBytes)
		}
		return
	}

	c.entries[key] = &entry{
		value:      value,
		size:       size,
		expires:    now.Add(c.cfg.TTL),
		lastAccess: now,
	}
	c.size += size
	if len(c.entries) > c.cfg.MaxEntries || c.size > c.cfg.MaxBytes {
		c.evictLocked()
	}
}

// evictLocked drops the least valuable entries until both bounds sit at
// 80% of capacity. Victims are chosen by fewest hits, ties broken by least
// recent access.
func (c *Cache) evictLocked() {
	targetEntries := c.cfg.MaxEntries * 8 / 10
	targetBytes := c.cfg.MaxBytes * 8 / 10

	type victim struct {
		key string
		e   *entry
	}
	victims := make([]victim, 0, len(c.entries))
	for k, e := range c.entries {
		victims = append(victims, victim{k, e})
	}
	sort.Slice(victims, func(i, j int) bool {
		if victims[i].e.hits != victims[j].e.hits {
			return victims[i].e.hits < victims[j].e.hits
		}
		return victims[i].e.lastAccess.Before(victims[j].e.lastAccess)
	})

	evicted := 0
	for _, v := range victims {
		if len(c.entries) <= targetEntries && c.size <= targetBytes {
			break
		}
		c.removeLocked(v.key, v.e)
		c.stats.Evictions++
		evicted++
	}
	if c.cfg.Logger != nil {
		c.cfg.Logger.Logf("cache: evicted %d entries, %d remain holding %d bytes", evicted, len(c.entries), c.size)
	}
}

// removeLocked drops one entry and its byte accounting.
func (c *Cache) removeLocked(key string, e *entry) {
	delete(c.entries, key)
	c.size -= e.size
}

// Invalidate removes one entry and reports whether it existed.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok {
		c.removeLocked(key, e)
	}
	return ok
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns how many were dropped. Keys are namespaced URIs, so a backend's
// whole cache footprint goes away with its "name." prefix.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			c.removeLocked(k, e)
			n++
		}
	}
	return n
}

// InvalidateAll empties the cache and returns the number of entries dropped.
func (c *Cache) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]*entry)
	c.size = 0
	return n
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	s.SizeBytes = c.size
	return s
}

// Close stops the background sweeper. The cache itself stays usable, but
// expired entries are then only dropped lazily on access.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.sweepWG.Wait()
}

func (c *Cache) sweepLoop() {
	defer c.sweepWG.Done()

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep(time.Now())
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expires) {
			c.removeLocked(k, e)
			c.stats.Expirations++
		}
	}
}
