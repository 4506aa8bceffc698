package memory

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests advance cache time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, ttl time.Duration, maxEntries int) (*Cache[string, string], *fakeClock) {
	t.Helper()
	c, err := New[string, string](ttl, maxEntries)
	if err != nil {
		t.Fatal(err)
	}
	clk := newFakeClock()
	c.now = clk.Now
	return c, clk
}

func TestNewValidation(t *testing.T) {
	if _, err := New[string, int](0, 10); err == nil {
		t.Error("zero ttl should be rejected")
	}
	if _, err := New[string, int](time.Hour, 0); err == nil {
		t.Error("zero max_entries should be rejected")
	}
}

func TestGetAfterPut(t *testing.T) {
	c, clk := newTestCache(t, time.Hour, 10)

	c.Put("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("expected hit with %q, got %q ok=%v", "v", got, ok)
	}

	clk.Advance(time.Hour + time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after TTL elapsed")
	}
	if c.Len() != 0 {
		t.Error("expired entry should be removed lazily on Get")
	}
}

func TestOverwriteRefreshes(t *testing.T) {
	c, clk := newTestCache(t, time.Hour, 10)

	c.Put("k", "old")
	clk.Advance(50 * time.Minute)
	c.Put("k", "new")
	clk.Advance(30 * time.Minute)

	got, ok := c.Get("k")
	if !ok || got != "new" {
		t.Errorf("overwrite should reset insertion time: got %q ok=%v", got, ok)
	}
}

func TestNeverExceedsMaxEntries(t *testing.T) {
	c, clk := newTestCache(t, time.Hour, 100)

	for i := 0; i < 101; i++ {
		c.Put(fmt.Sprintf("key-%03d", i), "v")
		clk.Advance(time.Second)
	}

	if c.Len() != 100 {
		t.Fatalf("expected exactly 100 entries, got %d", c.Len())
	}
	// The single earliest-inserted key is the one evicted.
	if _, ok := c.Get("key-000"); ok {
		t.Error("oldest key should have been evicted")
	}
	if _, ok := c.Get("key-001"); !ok {
		t.Error("second-oldest key should survive")
	}
	if _, ok := c.Get("key-100"); !ok {
		t.Error("newest key should survive")
	}
}

func TestExpiredEvictedBeforeOldest(t *testing.T) {
	c, clk := newTestCache(t, time.Hour, 3)

	c.Put("stale", "v")
	clk.Advance(time.Hour + time.Minute) // "stale" is now expired
	c.Put("a", "v")
	clk.Advance(time.Minute)
	c.Put("b", "v")
	clk.Advance(time.Minute)
	c.Put("c", "v") // over bound: the expired entry goes, not "a"

	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("fresh oldest entry should survive when an expired one exists")
	}
	if _, ok := c.Get("stale"); ok {
		t.Error("expired entry should have been evicted first")
	}
}

func TestStatsCounters(t *testing.T) {
	c, clk := newTestCache(t, time.Hour, 2)

	c.Put("a", "v")
	c.Get("a") // hit
	c.Get("b") // miss
	clk.Advance(2 * time.Hour)
	c.Get("a") // miss via expiry, one eviction

	s := c.Stats()
	if s.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", s.Hits)
	}
	if s.Misses != 2 {
		t.Errorf("expected 2 misses, got %d", s.Misses)
	}
	if s.Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", s.Evictions)
	}
	if s.Entries != 0 {
		t.Errorf("expected 0 entries, got %d", s.Entries)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 50)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("key-%d", i%60)
				c.Put(key, "v")
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("bound violated under concurrency: %d entries", c.Len())
	}
}

func TestContentHash(t *testing.T) {
	h1, err := ContentHash(strings.NewReader("same bytes"))
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := ContentHash(strings.NewReader("same bytes"))
	h3, _ := ContentHash(strings.NewReader("other bytes"))

	if h1 != h2 {
		t.Error("identical content must hash identically")
	}
	if h1 == h3 {
		t.Error("different content must hash differently")
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}
