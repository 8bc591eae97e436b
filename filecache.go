package filecache

import (
	"time"

	"github.com/hupe1980/filecache/internal/cache"
)

// FileCache is a path-keyed cache of CachedInput resources. Entry weight
// is the resource's byte length; total weight is bounded by the configured
// capacity. An entry with a positive reference count is never evicted, so
// usage may transiently exceed capacity while everything resident is in
// use.
//
// Get does not acquire a reference. Callers that hold a value across
// other cache operations bracket the use with IncRef and DecRef; the
// Input family does this automatically for clones and slices.
type FileCache struct {
	store  *cache.SegmentedCache[string, CachedInput]
	logger *Logger
}

// New creates a FileCache bounded by capacity bytes.
func New(capacity int64, opts ...Option) (*FileCache, error) {
	o := options{
		logger: NoopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	fc := &FileCache{logger: o.logger}
	store, err := cache.NewSegmentedCache(cache.Config[string, CachedInput]{
		Capacity: capacity,
		Segments: o.segments,
		Weigher: func(v CachedInput) int64 {
			return v.Length()
		},
		OnRemoval: fc.onRemoval,
		IsFullFile: func(v CachedInput) bool {
			_, ok := v.(*FullFileCachedInput)
			return ok
		},
	})
	if err != nil {
		return nil, err
	}
	fc.store = store
	return fc, nil
}

// onRemoval closes the value once it has left the store. A close failure
// must not stall the eviction sweep; it is logged and dropped.
func (fc *FileCache) onRemoval(path string, v CachedInput, weight int64, reason cache.RemovalReason) {
	err := v.Close()
	fc.logger.LogRemoval(path, weight, reason.String(), err)
}

// Get returns the cached resource for path, if resident.
func (fc *FileCache) Get(path string) (CachedInput, bool) {
	return fc.store.Get(path)
}

// Put inserts or replaces the resource cached under path. A replaced
// value is closed. The new entry starts unreferenced and may be evicted
// as soon as capacity demands it.
func (fc *FileCache) Put(path string, v CachedInput) {
	fc.store.Put(path, v)
}

// Remove removes the entry if unreferenced; a referenced entry is removed
// when its last reference is released. Reports whether the entry was
// removed immediately.
func (fc *FileCache) Remove(path string) bool {
	return fc.store.Remove(path)
}

// Prune removes every unreferenced entry whose path matches pred and
// returns the reclaimed weight.
func (fc *FileCache) Prune(pred func(path string) bool) int64 {
	return fc.store.Prune(pred)
}

// Clear removes and closes every cached resource, including referenced
// ones, and resets the usage counters. Meant for teardown and full
// invalidation; references held at clear time are forgotten and their
// release reports ErrEntryNotFound.
func (fc *FileCache) Clear() {
	fc.store.Clear()
}

// IncRef pins the entry for path against eviction.
func (fc *FileCache) IncRef(path string) error {
	return fc.store.IncRef(path)
}

// DecRef releases a reference acquired with IncRef.
func (fc *FileCache) DecRef(path string) error {
	return fc.store.DecRef(path)
}

// RefCount returns the current reference count for path.
func (fc *FileCache) RefCount(path string) int64 {
	return fc.store.RefCount(path)
}

// Contains reports residency without recording a hit or a miss.
func (fc *FileCache) Contains(path string) bool {
	return fc.store.Contains(path)
}

// Usage returns the total weight of resident entries in bytes.
func (fc *FileCache) Usage() int64 { return fc.store.Usage() }

// ActiveUsage returns the total weight of referenced entries in bytes.
func (fc *FileCache) ActiveUsage() int64 { return fc.store.ActiveUsage() }

// Capacity returns the configured bound in bytes.
func (fc *FileCache) Capacity() int64 { return fc.store.Capacity() }

// Size returns the number of resident entries.
func (fc *FileCache) Size() int { return fc.store.Size() }

// Stats returns the externally reported statistics record, timestamped
// with the current wall clock.
func (fc *FileCache) Stats() Stats {
	s := fc.store.Stats()
	return Stats{
		Timestamp: time.Now().UnixMilli(),
		Active:    s.ActiveUsage,
		Total:     fc.store.Capacity(),
		Used:      s.Usage,
		Evicted:   s.EvictionWeight,
		Hits:      s.HitCount,
		Misses:    s.MissCount,
		FullFile: FullFileStats{
			Active:  s.FullFile.ActiveUsage,
			Used:    s.FullFile.Usage,
			Evicted: s.FullFile.EvictionWeight,
			Hits:    s.FullFile.HitCount,
		},
	}
}
