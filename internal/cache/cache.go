package cache

import "errors"

var (
	// ErrEntryNotFound is returned when a reference operation targets a key
	// that is not present in the cache.
	ErrEntryNotFound = errors.New("cache: entry not found")

	// ErrNegativeRefCount is returned when a decrement would drive a
	// reference count below zero. It indicates unbalanced acquire/release
	// calls in the caller.
	ErrNegativeRefCount = errors.New("cache: negative reference count")
)

// RemovalReason describes why an entry left the cache.
type RemovalReason uint8

const (
	// RemovalReasonExplicit means the entry was removed by a Remove or
	// Prune call (possibly deferred until its last reference was released).
	RemovalReasonExplicit RemovalReason = iota
	// RemovalReasonReplaced means the entry's value was overwritten by Put.
	RemovalReasonReplaced
	// RemovalReasonEvicted means the entry was evicted under capacity
	// pressure.
	RemovalReasonEvicted
)

func (r RemovalReason) String() string {
	switch r {
	case RemovalReasonExplicit:
		return "explicit"
	case RemovalReasonReplaced:
		return "replaced"
	case RemovalReasonEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Weigher computes the weight of a value in capacity units (bytes).
type Weigher[V any] func(v V) int64

// RemovalListener is notified after an entry has been removed from the
// store. It is invoked outside the segment lock, so implementations may
// safely call back into the cache.
type RemovalListener[K comparable, V any] func(key K, value V, weight int64, reason RemovalReason)

// Config configures a SegmentedCache.
type Config[K comparable, V any] struct {
	// Capacity is the aggregate weight bound, in the weigher's units.
	Capacity int64

	// Segments is the number of independent segments. It is rounded up to
	// the next power of two and capped at 256. Defaults to 8.
	Segments int

	// Weigher computes entry weights. Required.
	Weigher Weigher[V]

	// OnRemoval, if set, is called for every entry that leaves the store.
	OnRemoval RemovalListener[K, V]

	// IsFullFile classifies values for the full-file statistics
	// sub-record. If nil, no value is classified as a full file.
	IsFullFile func(v V) bool
}
