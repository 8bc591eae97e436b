package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// newTestCache stores int64 values weighed by their own value, in a
// single segment so eviction order is deterministic.
func newTestCache(t *testing.T, capacity int64, onRemoval RemovalListener[string, int64]) *SegmentedCache[string, int64] {
	t.Helper()
	c, err := NewSegmentedCache(Config[string, int64]{
		Capacity:  capacity,
		Segments:  1,
		Weigher:   func(v int64) int64 { return v },
		OnRemoval: onRemoval,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSegmentedCache_BasicOperations(t *testing.T) {
	c := newTestCache(t, 100, nil)

	c.Put("a", 10)
	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != 10 {
		t.Errorf("got %d, want 10", got)
	}

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected cache miss")
	}

	stats := c.Stats()
	if stats.HitCount != 1 || stats.MissCount != 1 {
		t.Errorf("got hits=%d misses=%d, want 1/1", stats.HitCount, stats.MissCount)
	}
}

func TestSegmentedCache_ConfigValidation(t *testing.T) {
	if _, err := NewSegmentedCache(Config[string, int64]{Capacity: 0, Weigher: func(int64) int64 { return 1 }}); err == nil {
		t.Error("expected error for zero capacity")
	}
	if _, err := NewSegmentedCache(Config[string, int64]{Capacity: 10}); err == nil {
		t.Error("expected error for missing weigher")
	}
}

func TestSegmentedCache_UsageTracking(t *testing.T) {
	c := newTestCache(t, 100, nil)

	c.Put("a", 30)
	c.Put("b", 40)
	if got := c.Usage(); got != 70 {
		t.Errorf("usage = %d, want 70", got)
	}
	if got := c.ActiveUsage(); got != 0 {
		t.Errorf("active usage = %d, want 0", got)
	}

	if err := c.IncRef("a"); err != nil {
		t.Fatal(err)
	}
	if got := c.ActiveUsage(); got != 30 {
		t.Errorf("active usage = %d, want 30", got)
	}

	if err := c.DecRef("a"); err != nil {
		t.Fatal(err)
	}
	if got := c.ActiveUsage(); got != 0 {
		t.Errorf("active usage = %d, want 0", got)
	}
	if got := c.Usage(); got != 70 {
		t.Errorf("usage = %d, want 70 after release", got)
	}
}

func TestSegmentedCache_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c := newTestCache(t, 100, func(key string, _ int64, _ int64, reason RemovalReason) {
		if reason == RemovalReasonEvicted {
			evicted = append(evicted, key)
		}
	})

	c.Put("a", 40)
	c.Put("b", 40)
	c.Get("a") // refresh a, so b is now the LRU victim
	c.Put("c", 40)

	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("evicted %v, want [b]", evicted)
	}
	if c.Contains("b") {
		t.Error("evicted entry still resident")
	}
	if got := c.Usage(); got != 80 {
		t.Errorf("usage = %d, want 80", got)
	}
}

func TestSegmentedCache_ReferencedEntriesSurviveEviction(t *testing.T) {
	var evicted []string
	c := newTestCache(t, 100, func(key string, _ int64, _ int64, reason RemovalReason) {
		if reason == RemovalReasonEvicted {
			evicted = append(evicted, key)
		}
	})

	c.Put("pinned", 60)
	if err := c.IncRef("pinned"); err != nil {
		t.Fatal(err)
	}
	c.Put("other", 60)

	// The pinned entry must survive even though the aggregate weight is
	// over capacity; only unreferenced entries are reclaimable.
	if !c.Contains("pinned") {
		t.Fatal("referenced entry was evicted")
	}
	for _, key := range evicted {
		if key == "pinned" {
			t.Fatal("referenced entry reported evicted")
		}
	}

	if err := c.DecRef("pinned"); err != nil {
		t.Fatal(err)
	}
	// Releasing the last reference re-exposes the entry to eviction.
	c.Put("more", 60)
	if c.Contains("pinned") {
		t.Error("released entry was not reclaimed under pressure")
	}
	if got := c.Usage(); got != 60 {
		t.Errorf("usage = %d, want 60", got)
	}
}

func TestSegmentedCache_AllReferencedExceedsCapacity(t *testing.T) {
	c := newTestCache(t, 50, nil)

	for i := range 3 {
		key := fmt.Sprintf("k%d", i)
		c.Put(key, 10)
		if err := c.IncRef(key); err != nil {
			t.Fatal(err)
		}
	}

	// Growing referenced entries in place pushes usage past capacity;
	// with nothing unreferenced there is no eviction candidate.
	for i := range 3 {
		c.Put(fmt.Sprintf("k%d", i), 30)
	}

	if got := c.Usage(); got != 90 {
		t.Errorf("usage = %d, want 90 with everything referenced", got)
	}
	if got := c.ActiveUsage(); got != 90 {
		t.Errorf("active usage = %d, want 90", got)
	}
	if got := c.Size(); got != 3 {
		t.Errorf("size = %d, want 3", got)
	}
}

func TestSegmentedCache_DeferredRemoval(t *testing.T) {
	var removed []string
	c := newTestCache(t, 100, func(key string, _ int64, _ int64, reason RemovalReason) {
		if reason == RemovalReasonExplicit {
			removed = append(removed, key)
		}
	})

	c.Put("a", 10)
	if err := c.IncRef("a"); err != nil {
		t.Fatal(err)
	}

	if c.Remove("a") {
		t.Fatal("removal of a referenced entry should be deferred")
	}
	if len(removed) != 0 {
		t.Fatal("listener fired before last release")
	}
	// A pending entry no longer serves lookups.
	if _, ok := c.Get("a"); ok {
		t.Fatal("pending-removal entry served a lookup")
	}

	if err := c.DecRef("a"); err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0] != "a" {
		t.Fatalf("removed %v, want [a]", removed)
	}
	if c.Contains("a") {
		t.Error("entry resident after deferred removal")
	}
}

func TestSegmentedCache_RefErrors(t *testing.T) {
	c := newTestCache(t, 100, nil)

	if err := c.IncRef("missing"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("IncRef on missing key = %v, want ErrEntryNotFound", err)
	}

	c.Put("a", 10)
	if err := c.DecRef("a"); !errors.Is(err, ErrNegativeRefCount) {
		t.Errorf("unbalanced DecRef = %v, want ErrNegativeRefCount", err)
	}
}

func TestSegmentedCache_RefCountBalance(t *testing.T) {
	c := newTestCache(t, 100, nil)
	c.Put("a", 10)

	for range 5 {
		if err := c.IncRef("a"); err != nil {
			t.Fatal(err)
		}
	}
	if got := c.RefCount("a"); got != 5 {
		t.Errorf("refcount = %d, want 5", got)
	}
	for range 5 {
		if err := c.DecRef("a"); err != nil {
			t.Fatal(err)
		}
	}
	if got := c.RefCount("a"); got != 0 {
		t.Errorf("refcount = %d, want 0", got)
	}
	if got := c.ActiveUsage(); got != 0 {
		t.Errorf("active usage = %d, want 0 after balance", got)
	}
}

func TestSegmentedCache_Replacement(t *testing.T) {
	var replaced []int64
	c := newTestCache(t, 100, func(_ string, value int64, _ int64, reason RemovalReason) {
		if reason == RemovalReasonReplaced {
			replaced = append(replaced, value)
		}
	})

	c.Put("a", 30)
	c.Put("a", 50)

	if len(replaced) != 1 || replaced[0] != 30 {
		t.Fatalf("replaced %v, want [30]", replaced)
	}
	if got := c.Usage(); got != 50 {
		t.Errorf("usage = %d, want 50", got)
	}
	stats := c.Stats()
	if stats.ReplaceCount != 1 {
		t.Errorf("replace count = %d, want 1", stats.ReplaceCount)
	}
}

func TestSegmentedCache_ReplacementWhileReferenced(t *testing.T) {
	c := newTestCache(t, 100, nil)

	c.Put("a", 30)
	if err := c.IncRef("a"); err != nil {
		t.Fatal(err)
	}
	c.Put("a", 50)

	// The reference carries over to the new value, and active usage
	// follows the weight change.
	if got := c.RefCount("a"); got != 1 {
		t.Errorf("refcount = %d, want 1 after replacement", got)
	}
	if got := c.ActiveUsage(); got != 50 {
		t.Errorf("active usage = %d, want 50", got)
	}

	if err := c.DecRef("a"); err != nil {
		t.Fatal(err)
	}
	if got := c.ActiveUsage(); got != 0 {
		t.Errorf("active usage = %d, want 0", got)
	}
}

func TestSegmentedCache_Prune(t *testing.T) {
	c := newTestCache(t, 100, nil)

	c.Put("keep_1", 10)
	c.Put("drop_1", 20)
	c.Put("drop_2", 30)

	reclaimed := c.Prune(func(key string) bool { return key[:4] == "drop" })
	if reclaimed != 50 {
		t.Errorf("reclaimed %d, want 50", reclaimed)
	}
	if !c.Contains("keep_1") || c.Contains("drop_1") || c.Contains("drop_2") {
		t.Error("prune removed the wrong entries")
	}
}

func TestSegmentedCache_Clear(t *testing.T) {
	var removed []string
	c := newTestCache(t, 100, func(key string, _ int64, _ int64, reason RemovalReason) {
		if reason == RemovalReasonExplicit {
			removed = append(removed, key)
		}
	})

	c.Put("a", 10)
	c.Put("b", 20)
	c.Put("c", 30)
	if err := c.IncRef("b"); err != nil {
		t.Fatal(err)
	}

	c.Clear()

	if got := c.Size(); got != 0 {
		t.Errorf("size = %d, want 0", got)
	}
	if got := c.Usage(); got != 0 {
		t.Errorf("usage = %d, want 0", got)
	}
	if got := c.ActiveUsage(); got != 0 {
		t.Errorf("active usage = %d, want 0", got)
	}
	if len(removed) != 3 {
		t.Errorf("listener saw %v, want all three entries", removed)
	}
	// Even the referenced entry is gone, and its count is forgotten.
	if c.Contains("b") {
		t.Error("referenced entry survived clear")
	}
	if got := c.RefCount("b"); got != 0 {
		t.Errorf("refcount = %d, want 0", got)
	}
	if err := c.DecRef("b"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("release after clear = %v, want ErrEntryNotFound", err)
	}

	// The store stays usable.
	c.Put("d", 40)
	if got := c.Usage(); got != 40 {
		t.Errorf("usage = %d, want 40", got)
	}
}

func TestSegmentedCache_UsageMatchesResidentWeights(t *testing.T) {
	c := newTestCache(t, 200, nil)

	weights := map[string]int64{"a": 10, "b": 20, "c": 30, "d": 40}
	for key, w := range weights {
		c.Put(key, w)
	}
	c.Remove("b")

	var want int64
	for key, w := range weights {
		if c.Contains(key) {
			want += w
		}
	}
	if got := c.Usage(); got != want {
		t.Errorf("usage = %d, want %d (sum of resident weights)", got, want)
	}
}

func TestSegmentedCache_ListenerMayReenter(t *testing.T) {
	var c *SegmentedCache[string, int64]
	c = newTestCache(t, 100, func(key string, _ int64, _ int64, _ RemovalReason) {
		// Listeners run outside the segment lock, so calling back into
		// the cache must not deadlock.
		c.Contains(key)
		c.Usage()
	})

	c.Put("a", 60)
	c.Put("b", 60)
	c.Remove("b")
}

func TestSegmentedCache_SegmentDistribution(t *testing.T) {
	c, err := NewSegmentedCache(Config[string, int64]{
		Capacity: 1 << 20,
		Segments: 64,
		Weigher:  func(v int64) int64 { return v },
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.NumSegments(); got != 64 {
		t.Fatalf("segments = %d, want 64", got)
	}

	for i := range 1000 {
		c.Put(fmt.Sprintf("file_%d", i), 1)
	}

	nonEmpty := 0
	for _, s := range c.segments {
		if s.size() > 0 {
			nonEmpty++
		}
	}
	if nonEmpty < 30 {
		t.Errorf("poor distribution: only %d of 64 segments populated", nonEmpty)
	}
}

func TestSegmentedCache_SegmentRounding(t *testing.T) {
	c, err := NewSegmentedCache(Config[string, int64]{
		Capacity: 100,
		Segments: 5,
		Weigher:  func(v int64) int64 { return v },
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.NumSegments(); got != 8 {
		t.Errorf("segments = %d, want 8 (rounded up)", got)
	}

	// Per-segment capacities must sum to the configured total.
	var sum int64
	for _, s := range c.segments {
		sum += s.capacity
	}
	if sum != 100 {
		t.Errorf("segment capacities sum to %d, want 100", sum)
	}
}

func TestSegmentedCache_Concurrent(t *testing.T) {
	c, err := NewSegmentedCache(Config[string, int64]{
		Capacity: 1 << 20,
		Segments: 16,
		Weigher:  func(v int64) int64 { return v },
	})
	if err != nil {
		t.Fatal(err)
	}

	const goroutines = 50
	const opsPer = 500

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := range goroutines {
		go func(id int) {
			defer wg.Done()
			for i := range opsPer {
				key := fmt.Sprintf("g%d_f%d", id, i%20)
				c.Put(key, 16)
				c.Get(key)
				if err := c.IncRef(key); err == nil {
					c.DecRef(key)
				}
			}
		}(g)
	}
	wg.Wait()

	if got := c.ActiveUsage(); got != 0 {
		t.Errorf("active usage = %d, want 0 after all releases", got)
	}
	stats := c.Stats()
	if stats.RequestCount() != goroutines*opsPer {
		t.Errorf("requests = %d, want %d", stats.RequestCount(), goroutines*opsPer)
	}
}

func TestStats_HitRate(t *testing.T) {
	var s Stats
	if got := s.HitRate(); got != 1.0 {
		t.Errorf("empty hit rate = %v, want 1.0", got)
	}
	s.HitCount, s.MissCount = 3, 1
	if got := s.HitRate(); got != 0.75 {
		t.Errorf("hit rate = %v, want 0.75", got)
	}
}
