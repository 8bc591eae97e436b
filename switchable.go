package filecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// SwitchableConfig configures the origin SwitchableInput for one file.
type SwitchableConfig struct {
	// Cache holds the resident whole-file entry under FullPath and, once
	// the composition layer registers it, the switchable resource under
	// SwitchPath.
	Cache *FileCache

	// FileName is the file's name within both directories.
	FileName string

	// FullPath keys the whole-file resident entry.
	FullPath string

	// SwitchPath keys the switchable resource; clones acquire references
	// on it so eviction cannot destroy a backing still in use.
	SwitchPath string

	Local    LocalDirectory
	Remote   RemoteDirectory
	Transfer TransferManager

	// Logger defaults to the cache's logger.
	Logger *Logger
}

// SwitchableInput reads a file that is resident locally but will be
// uploaded to the remote store. It starts on a local whole-file backing
// and can be switched, while in use, to a remote block-fetched backing;
// the switch cascades to every clone and preserves each cursor position
// exactly.
//
// All operations on one instance are serialized by a per-instance mutex,
// because the backing can be swapped concurrently with an in-flight read.
// Distinct files switch independently.
type SwitchableInput struct {
	mu sync.Mutex

	cache      *FileCache
	fileName   string
	fullPath   string
	switchPath string
	local      LocalDirectory
	remote     RemoteDirectory
	transfer   TransferManager
	logger     *Logger

	// offset and length bound this instance's view of the file; slices
	// carry their absolute offset so the remote backing can be sliced to
	// the same region.
	offset int64
	length int64

	isClone  bool
	closed   bool
	switched bool

	localIn   Input
	remoteIn  Input
	currentIn Input

	// clones receives cascade notifications for switch and close.
	clones map[*SwitchableInput]struct{}
}

// NewSwitchableInput opens the origin handle for a local file and caches
// a whole-file resident entry under cfg.FullPath.
func NewSwitchableInput(cfg SwitchableConfig) (*SwitchableInput, error) {
	length, err := cfg.Local.FileLength(cfg.FileName)
	if err != nil {
		return nil, err
	}
	backing, err := cfg.Local.OpenInput(cfg.FileName)
	if err != nil {
		return nil, err
	}
	// A second independent open backs the shared cache entry, so eviction
	// of that entry can never unmap data under this handle.
	resident, err := cfg.Local.OpenInput(cfg.FileName)
	if err != nil {
		_ = backing.Close()
		return nil, err
	}
	cfg.Cache.Put(cfg.FullPath, NewFullFileCachedInput(resident))

	logger := cfg.Logger
	if logger == nil {
		logger = cfg.Cache.logger
	}
	s := &SwitchableInput{
		cache:      cfg.Cache,
		fileName:   cfg.FileName,
		fullPath:   cfg.FullPath,
		switchPath: cfg.SwitchPath,
		local:      cfg.Local,
		remote:     cfg.Remote,
		transfer:   cfg.Transfer,
		logger:     logger,
		length:     length,
		localIn:    backing,
		currentIn:  backing,
		clones:     make(map[*SwitchableInput]struct{}),
	}
	return s, nil
}

// SwitchToRemote swaps the backing to a remote block-fetched input,
// preserving the cursor position, and cascades to every clone. It is
// idempotent: on an already switched or closed instance it is a no-op.
// The origin additionally releases the whole-file cache entry, since the
// local residency is no longer needed.
func (s *SwitchableInput) SwitchToRemote(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switchToRemoteLocked(ctx)
}

func (s *SwitchableInput) switchToRemoteLocked(ctx context.Context) error {
	if s.closed || s.switched {
		return nil
	}

	// The origin retires the whole-file entry first, so the remote open
	// cannot be satisfied by the resident copy being switched away from.
	if !s.isClone {
		s.cache.Remove(s.fullPath)
	}

	pos := s.currentIn.Pos()
	remoteIn, err := s.openRemote(ctx)
	if err != nil {
		s.logger.LogSwitch(s.fileName, pos, err)
		return err
	}
	if err := remoteIn.Seek(pos); err != nil {
		_ = remoteIn.Close()
		s.logger.LogSwitch(s.fileName, pos, err)
		return err
	}

	oldLocal := s.currentIn
	s.remoteIn = remoteIn
	s.currentIn = remoteIn
	s.switched = true

	var errs []error
	for clone := range s.clones {
		if err := clone.SwitchToRemote(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := oldLocal.Close(); err != nil {
		errs = append(errs, err)
	}
	s.localIn = nil

	err = errors.Join(errs...)
	s.logger.LogSwitch(s.fileName, pos, err)
	return err
}

// openRemote builds a block-fetched input over this instance's region of
// the remote file.
func (s *SwitchableInput) openRemote(ctx context.Context) (Input, error) {
	meta, err := s.remote.Metadata(ctx, s.fileName)
	if err != nil {
		return nil, err
	}
	base, err := s.transfer.OpenInput(ctx, meta)
	if err != nil {
		return nil, err
	}
	sliced, err := base.Slice(fmt.Sprintf("switched %s", s.fileName), s.offset, s.length)
	if err != nil {
		_ = base.Close()
		return nil, err
	}
	// The slice is self-contained; the unpositioned base handle holds no
	// resources worth keeping.
	if err := base.Close(); err != nil {
		_ = sliced.Close()
		return nil, err
	}
	return sliced, nil
}

// Clone returns an independent cursor over the same region, registered
// for cascade notifications and counted against the switchable resource.
func (s *SwitchableInput) Clone() (Input, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrAlreadyClosed
	}
	if err := s.cache.IncRef(s.switchPath); err != nil {
		return nil, err
	}
	backing, err := s.currentIn.Clone()
	if err != nil {
		_ = s.cache.DecRef(s.switchPath)
		return nil, err
	}
	if err := backing.Seek(s.currentIn.Pos()); err != nil {
		_ = backing.Close()
		_ = s.cache.DecRef(s.switchPath)
		return nil, err
	}

	clone := s.derived(backing, s.offset, s.length)
	s.clones[clone] = struct{}{}
	return clone, nil
}

// Slice returns a bounded sub-view positioned at 0, counted and cascaded
// like a clone.
func (s *SwitchableInput) Slice(desc string, offset, length int64) (Input, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrAlreadyClosed
	}
	if err := s.cache.IncRef(s.switchPath); err != nil {
		return nil, err
	}
	backing, err := s.currentIn.Slice(desc, offset, length)
	if err != nil {
		_ = s.cache.DecRef(s.switchPath)
		return nil, err
	}

	slice := s.derived(backing, s.offset+offset, length)
	s.clones[slice] = struct{}{}
	return slice, nil
}

func (s *SwitchableInput) derived(backing Input, offset, length int64) *SwitchableInput {
	d := &SwitchableInput{
		cache:      s.cache,
		fileName:   s.fileName,
		fullPath:   s.fullPath,
		switchPath: s.switchPath,
		local:      s.local,
		remote:     s.remote,
		transfer:   s.transfer,
		logger:     s.logger,
		offset:     offset,
		length:     length,
		isClone:    true,
		switched:   s.switched,
		currentIn:  backing,
		clones:     make(map[*SwitchableInput]struct{}),
	}
	if s.switched {
		d.remoteIn = backing
	} else {
		d.localIn = backing
	}
	return d
}

// Close cascades to all registered clones, closes whichever backing is
// active, and for clones releases the switchable resource reference
// exactly once, after the backing has been released.
func (s *SwitchableInput) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	clones := make([]*SwitchableInput, 0, len(s.clones))
	for clone := range s.clones {
		clones = append(clones, clone)
	}
	clear(s.clones)

	var errs []error
	if s.localIn != nil {
		if err := s.localIn.Close(); err != nil {
			errs = append(errs, err)
		}
		s.localIn = nil
	}
	if s.remoteIn != nil {
		if err := s.remoteIn.Close(); err != nil {
			errs = append(errs, err)
		}
		s.remoteIn = nil
	}
	s.mu.Unlock()

	for _, clone := range clones {
		if err := clone.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	// Released without the lock held: dropping the last reference can
	// evict this handle's own cache entry, whose removal callback closes
	// us again.
	if s.isClone {
		if err := s.cache.DecRef(s.switchPath); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HasSwitched reports whether this instance reads from the remote
// backing.
func (s *SwitchableInput) HasSwitched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switched
}

func (s *SwitchableInput) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrAlreadyClosed
	}
	return s.currentIn.ReadByte()
}

func (s *SwitchableInput) ReadBytes(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrAlreadyClosed
	}
	return s.currentIn.ReadBytes(p)
}

func (s *SwitchableInput) ReadUint32() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrAlreadyClosed
	}
	return s.currentIn.ReadUint32()
}

func (s *SwitchableInput) ReadUint64() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrAlreadyClosed
	}
	return s.currentIn.ReadUint64()
}

func (s *SwitchableInput) Seek(pos int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrAlreadyClosed
	}
	return s.currentIn.Seek(pos)
}

func (s *SwitchableInput) Pos() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentIn.Pos()
}

func (s *SwitchableInput) Len() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.length
}

// CachedSwitchableInput adapts a SwitchableInput to the CachedInput value
// interface so the composition layer can register it in the cache and
// later promote it once the file reaches the remote store.
type CachedSwitchableInput struct {
	switchable *SwitchableInput
	closed     atomic.Bool
}

// NewCachedSwitchableInput wraps an origin switchable handle.
func NewCachedSwitchableInput(s *SwitchableInput) *CachedSwitchableInput {
	return &CachedSwitchableInput{switchable: s}
}

// Input returns the origin switchable handle itself; callers clone it for
// independent cursors.
func (v *CachedSwitchableInput) Input() (Input, error) {
	if v.closed.Load() {
		return nil, ErrAlreadyClosed
	}
	return v.switchable, nil
}

// Length is zero: the switchable resource's residency is accounted by the
// whole-file entry it keeps under its full path, not by this wrapper.
func (v *CachedSwitchableInput) Length() int64 { return 0 }

func (v *CachedSwitchableInput) Closed() bool { return v.closed.Load() }

// SwitchToRemote promotes the wrapped handle to remote backing.
func (v *CachedSwitchableInput) SwitchToRemote(ctx context.Context) error {
	if v.closed.Load() {
		return nil
	}
	return v.switchable.SwitchToRemote(ctx)
}

func (v *CachedSwitchableInput) Close() error {
	if !v.closed.CompareAndSwap(false, true) {
		return nil
	}
	return v.switchable.Close()
}
