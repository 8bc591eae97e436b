// Package cache provides a reference-counted, weight-bounded LRU store.
//
// # Segmented store
//
// SegmentedCache shards entries across independent segments selected by a
// maphash of the key. Each segment has its own mutex and its own LRU list,
// so unrelated keys never contend. Capacity is divided across segments;
// the aggregate bound equals the configured capacity exactly.
//
// # Reference counting
//
// Reference counts live in a table of atomic counters kept separate from
// the segment maps. Increments and decrements that do not cross zero are
// lock-free; transitions between zero and one take the segment lock so
// that active-usage accounting and eviction eligibility stay consistent.
// An entry with a nonzero reference count is unlinked from its segment's
// LRU list and can never be selected by the eviction sweep.
//
// # Eviction
//
// When a segment's usage exceeds its share of the capacity, the least
// recently used unreferenced entry is evicted. If every entry in the
// segment is referenced, usage may transiently exceed capacity; weight is
// reclaimed as references are released.
package cache
