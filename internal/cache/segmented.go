package cache

import (
	"errors"
	"hash/maphash"
	"math/bits"
)

const maxSegments = 256

// SegmentedCache is a reference-counted, weight-bounded store sharded
// across independent locked segments.
type SegmentedCache[K comparable, V any] struct {
	segments []*segment[K, V]
	mask     uint64
	seed     maphash.Seed
	capacity int64
}

// NewSegmentedCache creates a store with the given configuration.
func NewSegmentedCache[K comparable, V any](cfg Config[K, V]) (*SegmentedCache[K, V], error) {
	if cfg.Capacity <= 0 {
		return nil, errors.New("cache: capacity must be positive")
	}
	if cfg.Weigher == nil {
		return nil, errors.New("cache: weigher is required")
	}

	n := cfg.Segments
	if n <= 0 {
		n = 8
	}
	if n > maxSegments {
		n = maxSegments
	}
	n = 1 << bits.Len(uint(n-1)) // round up to a power of two

	c := &SegmentedCache[K, V]{
		segments: make([]*segment[K, V], n),
		mask:     uint64(n - 1),
		seed:     maphash.MakeSeed(),
		capacity: cfg.Capacity,
	}

	// Spread the capacity so the per-segment bounds sum to exactly the
	// configured capacity.
	per := cfg.Capacity / int64(n)
	extra := cfg.Capacity % int64(n)
	for i := range c.segments {
		segCap := per
		if int64(i) < extra {
			segCap++
		}
		c.segments[i] = newSegment(segCap, cfg)
	}
	return c, nil
}

func (c *SegmentedCache[K, V]) segment(key K) *segment[K, V] {
	return c.segments[maphash.Comparable(c.seed, key)&c.mask]
}

// Get returns the cached value. It does not acquire a reference; callers
// that hold the value across other cache operations pair it with
// IncRef/DecRef.
func (c *SegmentedCache[K, V]) Get(key K) (V, bool) {
	return c.segment(key).get(key)
}

// Put inserts or replaces the entry. A replaced value is handed to the
// removal listener. The new entry starts unreferenced.
func (c *SegmentedCache[K, V]) Put(key K, value V) {
	c.segment(key).put(key, value)
}

// Remove removes the entry if it is unreferenced, otherwise defers the
// removal until the last reference is released. Reports whether the entry
// was removed immediately.
func (c *SegmentedCache[K, V]) Remove(key K) bool {
	return c.segment(key).remove(key)
}

// Prune removes all unreferenced entries whose key matches pred and
// returns the reclaimed weight. Matching referenced entries are marked
// for deferred removal.
func (c *SegmentedCache[K, V]) Prune(pred func(K) bool) int64 {
	var reclaimed int64
	for _, s := range c.segments {
		reclaimed += s.prune(pred)
	}
	return reclaimed
}

// Clear removes every entry from every segment, including referenced
// ones, and resets the usage counters. Outstanding references are
// forgotten; releasing one afterwards reports ErrEntryNotFound.
func (c *SegmentedCache[K, V]) Clear() {
	for _, s := range c.segments {
		s.clear()
	}
}

// Contains reports whether key is resident. Unlike Get it records no hit
// or miss and does not touch the LRU order, so it is safe to call from
// diagnostics.
func (c *SegmentedCache[K, V]) Contains(key K) bool {
	return c.segment(key).contains(key)
}

// IncRef acquires a reference on the entry, pinning it against eviction.
func (c *SegmentedCache[K, V]) IncRef(key K) error {
	return c.segment(key).incRef(key)
}

// DecRef releases a reference acquired with IncRef.
func (c *SegmentedCache[K, V]) DecRef(key K) error {
	return c.segment(key).decRef(key)
}

// RefCount returns the current reference count for key, zero for
// untracked keys.
func (c *SegmentedCache[K, V]) RefCount(key K) int64 {
	return c.segment(key).refCount(key)
}

// Usage returns the total weight of all resident entries.
func (c *SegmentedCache[K, V]) Usage() int64 {
	var total int64
	for _, s := range c.segments {
		total += s.usage()
	}
	return total
}

// ActiveUsage returns the total weight of referenced entries.
func (c *SegmentedCache[K, V]) ActiveUsage() int64 {
	var total int64
	for _, s := range c.segments {
		total += s.activeUsage()
	}
	return total
}

// Capacity returns the configured aggregate weight bound.
func (c *SegmentedCache[K, V]) Capacity() int64 { return c.capacity }

// Size returns the number of resident entries.
func (c *SegmentedCache[K, V]) Size() int {
	var total int
	for _, s := range c.segments {
		total += s.size()
	}
	return total
}

// Stats combines the segment snapshots into one.
func (c *SegmentedCache[K, V]) Stats() Stats {
	var out Stats
	for _, s := range c.segments {
		out = out.Add(s.snapshot())
	}
	return out
}

// NumSegments returns the number of lock domains, which is a power of two.
func (c *SegmentedCache[K, V]) NumSegments() int { return len(c.segments) }
