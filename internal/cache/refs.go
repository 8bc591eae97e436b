package cache

import (
	"sync"
	"sync/atomic"
)

// refTable maps keys to atomic reference counters, kept separate from
// the segment's entry map so counter reads and non-transition updates
// never touch the segment lock.
type refTable[K comparable] struct {
	mu       sync.RWMutex
	counters map[K]*atomic.Int64
}

func newRefTable[K comparable]() *refTable[K] {
	return &refTable[K]{counters: make(map[K]*atomic.Int64)}
}

// counter returns the counter for key, or nil if none exists.
func (t *refTable[K]) counter(key K) *atomic.Int64 {
	t.mu.RLock()
	c := t.counters[key]
	t.mu.RUnlock()
	return c
}

// getOrCreate returns the counter for key, creating it at zero.
func (t *refTable[K]) getOrCreate(key K) *atomic.Int64 {
	if c := t.counter(key); c != nil {
		return c
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if c := t.counters[key]; c != nil {
		return c
	}
	c := new(atomic.Int64)
	t.counters[key] = c
	return c
}

// count returns the current reference count for key, zero if untracked.
func (t *refTable[K]) count(key K) int64 {
	if c := t.counter(key); c != nil {
		return c.Load()
	}
	return 0
}

// drop forgets the counter for key.
func (t *refTable[K]) drop(key K) {
	t.mu.Lock()
	delete(t.counters, key)
	t.mu.Unlock()
}
