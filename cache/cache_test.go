package cache

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func payload(text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: "doc://" + text, Text: text}},
	}
}

func newTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	c := New(cfg)
	t.Cleanup(c.Close)
	return c
}

func TestCache_PutGet(t *testing.T) {
	c := newTestCache(t, Config{})

	if _, ok := c.Get("db.doc://a"); ok {
		t.Error("Get() on empty cache should miss")
	}
	c.Put("db.doc://a", payload("a"))

	got, ok := c.Get("db.doc://a")
	if !ok {
		t.Fatal("Get() should hit after Put()")
	}
	if got.Contents[0].Text != "a" {
		t.Errorf("Get() text = %q, want %q", got.Contents[0].Text, "a")
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Entries != 1 {
		t.Errorf("Stats() = %+v, want 1 hit, 1 miss, 1 entry", s)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := newTestCache(t, Config{TTL: 10 * time.Millisecond, SweepInterval: time.Hour})
	c.Put("k", payload("v"))

	if _, ok := c.Get("k"); !ok {
		t.Fatal("Get() should hit before expiry")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("Get() should miss after TTL")
	}
	if s := c.Stats(); s.Expirations != 1 {
		t.Errorf("Stats().Expirations = %d, want 1", s.Expirations)
	}
}

func TestCache_BackgroundSweep(t *testing.T) {
	c := newTestCache(t, Config{TTL: 5 * time.Millisecond, SweepInterval: 10 * time.Millisecond})
	c.Put("k", payload("v"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Stats().Entries == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("sweeper never removed the expired entry")
}

func TestCache_EvictionPrefersColdEntries(t *testing.T) {
	c := newTestCache(t, Config{MaxEntries: 10, SweepInterval: time.Hour})

	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("k%d", i), payload("v"))
	}
	// Heat up k0..k4; k5..k9 stay cold.
	for i := 0; i < 5; i++ {
		for j := 0; j < 3; j++ {
			if _, ok := c.Get(fmt.Sprintf("k%d", i)); !ok {
				t.Fatalf("Get(k%d) should hit", i)
			}
		}
	}

	// Overflow: eviction drains down to 80% of capacity.
	c.Put("k10", payload("v"))

	s := c.Stats()
	if s.Entries != 8 {
		t.Fatalf("Stats().Entries = %d, want 8 after eviction", s.Entries)
	}
	if s.Evictions != 3 {
		t.Errorf("Stats().Evictions = %d, want 3", s.Evictions)
	}
	for i := 0; i < 5; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("hot entry k%d was evicted before cold ones", i)
		}
	}
}

func sized(n int) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: "doc://big", Text: strings.Repeat("x", n)}},
	}
}

func TestCache_ByteCapacityBoundsTotalSize(t *testing.T) {
	const mib = 1 << 20
	c := newTestCache(t, Config{MaxBytes: 4 * mib, SweepInterval: time.Hour})

	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("doc://%d", i), sized(mib))
	}

	s := c.Stats()
	if s.SizeBytes > 4*mib {
		t.Fatalf("Stats().SizeBytes = %d, exceeds the %d byte capacity", s.SizeBytes, 4*mib)
	}
	if s.Evictions == 0 {
		t.Error("Stats().Evictions = 0, want byte-pressure evictions")
	}
	if int64(s.Entries)*mib != s.SizeBytes {
		t.Errorf("Stats() = %+v, size accounting does not match entry count", s)
	}
}

func TestCache_ByteEvictionDrainsToLowWater(t *testing.T) {
	c := newTestCache(t, Config{MaxBytes: 1000, SweepInterval: time.Hour})

	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("k%d", i), sized(100))
	}
	if s := c.Stats(); s.SizeBytes != 1000 || s.Evictions != 0 {
		t.Fatalf("Stats() = %+v, want 1000 bytes at capacity with no evictions", s)
	}

	// One more byte of pressure drains down to 80% of MaxBytes.
	c.Put("k10", sized(100))

	s := c.Stats()
	if s.SizeBytes != 800 || s.Entries != 8 {
		t.Errorf("Stats() = %+v, want 800 bytes across 8 entries", s)
	}
	if s.Evictions != 3 {
		t.Errorf("Stats().Evictions = %d, want 3", s.Evictions)
	}
}

func TestCache_OversizedPayloadNotCached(t *testing.T) {
	c := newTestCache(t, Config{MaxBytes: 100, SweepInterval: time.Hour})

	c.Put("k", sized(50))
	c.Put("k", sized(200))

	// The oversized update is refused and the stale entry goes with it.
	if _, ok := c.Get("k"); ok {
		t.Error("Get() should miss: oversized payload must not be cached")
	}
	if s := c.Stats(); s.Entries != 0 || s.SizeBytes != 0 {
		t.Errorf("Stats() = %+v, want an empty cache", s)
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := newTestCache(t, Config{})
	c.Put("db.doc://a", payload("a"))
	c.Put("db.doc://b", payload("b"))
	c.Put("meta.doc://c", payload("c"))

	if !c.Invalidate("db.doc://a") {
		t.Error("Invalidate() should report the entry existed")
	}
	if c.Invalidate("db.doc://a") {
		t.Error("Invalidate() repeated should report false")
	}

	if n := c.InvalidatePrefix("db."); n != 1 {
		t.Errorf("InvalidatePrefix(db.) = %d, want 1", n)
	}
	if _, ok := c.Get("meta.doc://c"); !ok {
		t.Error("InvalidatePrefix() removed an entry outside the prefix")
	}

	if n := c.InvalidateAll(); n != 1 {
		t.Errorf("InvalidateAll() = %d, want 1", n)
	}
	if s := c.Stats(); s.Entries != 0 {
		t.Errorf("Stats().Entries = %d after InvalidateAll, want 0", s.Entries)
	}
}

func TestCache_PutReplacesAndRestartsTTL(t *testing.T) {
	c := newTestCache(t, Config{TTL: 50 * time.Millisecond, SweepInterval: time.Hour})
	c.Put("k", payload("old"))
	time.Sleep(30 * time.Millisecond)
	c.Put("k", payload("new"))
	time.Sleep(30 * time.Millisecond)

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("Get() should hit: second Put restarted the TTL")
	}
	if got.Contents[0].Text != "new" {
		t.Errorf("Get() text = %q, want %q", got.Contents[0].Text, "new")
	}
}
