package cache

import (
	"container/list"
	"sync"
)

type node[K comparable, V any] struct {
	key    K
	value  V
	weight int64

	// pendingRemove marks an entry whose explicit removal was deferred
	// because it was referenced. It is released when the last reference
	// goes away.
	pendingRemove bool

	// elem is the entry's position in the segment LRU list, nil while the
	// entry is referenced (referenced entries are not evictable).
	elem *list.Element
}

type removal[K comparable, V any] struct {
	key    K
	value  V
	weight int64
	reason RemovalReason
}

// segment is one lock domain of the store: a bounded LRU map plus the
// reference table and stats counter for its keys.
type segment[K comparable, V any] struct {
	mu        sync.Mutex
	capacity  int64
	data      map[K]*node[K, V]
	evictList *list.List
	refs      *refTable[K]
	weigher   Weigher[V]
	stats     *statsCounter[V]
	onRemoval RemovalListener[K, V]
}

func newSegment[K comparable, V any](capacity int64, cfg Config[K, V]) *segment[K, V] {
	return &segment[K, V]{
		capacity:  capacity,
		data:      make(map[K]*node[K, V]),
		evictList: list.New(),
		refs:      newRefTable[K](),
		weigher:   cfg.Weigher,
		stats:     newStatsCounter(cfg.IsFullFile),
		onRemoval: cfg.OnRemoval,
	}
}

func (s *segment[K, V]) get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.data[key]
	if !ok || n.pendingRemove {
		s.stats.recordMiss()
		var zero V
		return zero, false
	}
	if n.elem != nil {
		s.evictList.MoveToFront(n.elem)
	}
	s.stats.recordHit(n.value)
	return n.value, true
}

func (s *segment[K, V]) put(key K, value V) {
	weight := s.weigher(value)

	var removals []removal[K, V]
	s.mu.Lock()
	if n, ok := s.data[key]; ok {
		oldValue, oldWeight := n.value, n.weight
		referenced := s.refs.count(key) > 0
		n.value = value
		n.weight = weight
		n.pendingRemove = false
		s.stats.recordReplacement(oldValue, value, oldWeight, weight, referenced)
		if n.elem != nil {
			s.evictList.MoveToFront(n.elem)
		}
		removals = append(removals, removal[K, V]{key, oldValue, oldWeight, RemovalReasonReplaced})
	} else {
		n := &node[K, V]{key: key, value: value, weight: weight}
		n.elem = s.evictList.PushFront(n)
		s.data[key] = n
		s.stats.recordUsage(value, weight, false)
	}
	removals = s.evictLocked(removals)
	s.mu.Unlock()

	s.notify(removals)
}

// remove removes the entry if it is unreferenced. A referenced entry is
// marked for removal and released when its reference count drops to zero.
// Reports whether the entry was removed immediately.
func (s *segment[K, V]) remove(key K) bool {
	var removals []removal[K, V]
	s.mu.Lock()
	n, ok := s.data[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if s.refs.count(key) > 0 {
		n.pendingRemove = true
		s.mu.Unlock()
		return false
	}
	removals = append(removals, s.removeLocked(n, RemovalReasonExplicit))
	s.mu.Unlock()

	s.notify(removals)
	return true
}

// prune removes every unreferenced entry whose key matches pred and
// returns the weight reclaimed. Matching referenced entries are marked
// for removal.
func (s *segment[K, V]) prune(pred func(K) bool) int64 {
	var removals []removal[K, V]
	var reclaimed int64
	s.mu.Lock()
	for key, n := range s.data {
		if !pred(key) {
			continue
		}
		if s.refs.count(key) > 0 {
			n.pendingRemove = true
			continue
		}
		reclaimed += n.weight
		removals = append(removals, s.removeLocked(n, RemovalReasonExplicit))
	}
	s.mu.Unlock()

	s.notify(removals)
	return reclaimed
}

func (s *segment[K, V]) incRef(key K) error {
	// Fast path: the count is already positive, bump it without the
	// segment lock.
	if c := s.refs.counter(key); c != nil {
		for {
			cur := c.Load()
			if cur <= 0 {
				break
			}
			if c.CompareAndSwap(cur, cur+1) {
				return nil
			}
		}
	}

	// Zero-to-one transition: serialize with the eviction sweep.
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.data[key]
	if !ok {
		return ErrEntryNotFound
	}
	c := s.refs.getOrCreate(key)
	if c.Add(1) == 1 {
		if n.elem != nil {
			s.evictList.Remove(n.elem)
			n.elem = nil
		}
		s.stats.recordActiveUsage(n.value, n.weight, false)
	}
	return nil
}

func (s *segment[K, V]) decRef(key K) error {
	c := s.refs.counter(key)
	if c == nil {
		s.mu.Lock()
		_, ok := s.data[key]
		s.mu.Unlock()
		if !ok {
			return ErrEntryNotFound
		}
		return ErrNegativeRefCount
	}

	for {
		cur := c.Load()
		switch {
		case cur > 1:
			if c.CompareAndSwap(cur, cur-1) {
				return nil
			}
		case cur <= 0:
			return ErrNegativeRefCount
		default:
			// One-to-zero transition: the entry becomes evictable (or is
			// released if a removal was deferred).
			var removals []removal[K, V]
			s.mu.Lock()
			if !c.CompareAndSwap(1, 0) {
				s.mu.Unlock()
				continue
			}
			if n, ok := s.data[key]; ok {
				s.stats.recordActiveUsage(n.value, n.weight, true)
				if n.pendingRemove {
					removals = append(removals, s.removeLocked(n, RemovalReasonExplicit))
				} else {
					n.elem = s.evictList.PushFront(n)
					removals = s.evictLocked(removals)
				}
			}
			s.mu.Unlock()
			s.notify(removals)
			return nil
		}
	}
}

// clear removes every entry, referenced or not. Usage accounting is
// reset wholesale rather than per entry; references held at clear time
// are forgotten, so a later release reports ErrEntryNotFound.
func (s *segment[K, V]) clear() {
	s.mu.Lock()
	removals := make([]removal[K, V], 0, len(s.data))
	for _, n := range s.data {
		removals = append(removals, removal[K, V]{n.key, n.value, n.weight, RemovalReasonExplicit})
	}
	s.data = make(map[K]*node[K, V])
	s.evictList.Init()
	s.refs = newRefTable[K]()
	s.stats.resetUsage()
	s.stats.resetActiveUsage()
	s.mu.Unlock()

	s.notify(removals)
}

// contains reports residency without touching LRU order or stats.
func (s *segment[K, V]) contains(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.data[key]
	return ok && !n.pendingRemove
}

func (s *segment[K, V]) refCount(key K) int64 {
	return s.refs.count(key)
}

func (s *segment[K, V]) usage() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.usage()
}

func (s *segment[K, V]) activeUsage() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.activeUsage()
}

func (s *segment[K, V]) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *segment[K, V]) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.snapshot()
}

// removeLocked unlinks n from the segment. The caller holds s.mu and must
// pass the returned removal to notify after unlocking.
func (s *segment[K, V]) removeLocked(n *node[K, V], reason RemovalReason) removal[K, V] {
	delete(s.data, n.key)
	if n.elem != nil {
		s.evictList.Remove(n.elem)
		n.elem = nil
	}
	s.refs.drop(n.key)
	if reason == RemovalReasonEvicted {
		s.stats.recordEviction(n.value, n.weight)
	} else {
		s.stats.recordRemoval(n.value, n.weight)
	}
	return removal[K, V]{n.key, n.value, n.weight, reason}
}

// evictLocked evicts least-recently-used unreferenced entries until usage
// fits the segment capacity. When the LRU list is empty every remaining
// entry is referenced and usage is allowed to exceed capacity.
func (s *segment[K, V]) evictLocked(removals []removal[K, V]) []removal[K, V] {
	for s.stats.usage() > s.capacity {
		back := s.evictList.Back()
		if back == nil {
			break
		}
		n := back.Value.(*node[K, V])
		removals = append(removals, s.removeLocked(n, RemovalReasonEvicted))
	}
	return removals
}

// notify delivers removal callbacks outside the segment lock so listeners
// may call back into the cache (a closing value may release references).
func (s *segment[K, V]) notify(removals []removal[K, V]) {
	if s.onRemoval == nil {
		return
	}
	for _, r := range removals {
		s.onRemoval(r.key, r.value, r.weight, r.reason)
	}
}
