package filecache

import (
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/filecache/internal/cache"
)

// ErrNotFound is returned when a file is absent from both the local
// directory and the remote store.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrAlreadyClosed is returned by operations on a handle after Close.
var ErrAlreadyClosed = errors.New("filecache: already closed")

// ErrEntryNotFound is returned by reference operations on a path that has
// no cache entry.
var ErrEntryNotFound = cache.ErrEntryNotFound

// ErrNegativeRefCount indicates unbalanced reference releases; it must
// never occur under correct use.
var ErrNegativeRefCount = cache.ErrNegativeRefCount

// ReadError annotates a failed read with the handle state at the time of
// the failure. Diagnostics are gathered best-effort and never replace the
// underlying cause, which remains reachable via errors.Unwrap.
type ReadError struct {
	Op      string
	Path    string
	Pos     int64
	Length  int64
	Clone   bool
	Closed  bool
	Cached  bool
	cause   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("filecache: %s failed (path=%s pos=%d length=%d clone=%t closed=%t cached=%t): %v",
		e.Op, e.Path, e.Pos, e.Length, e.Clone, e.Closed, e.Cached, e.cause)
}

func (e *ReadError) Unwrap() error { return e.cause }
