package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/filecache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// DefaultBlockSize is 8 MiB, large enough to amortize request
	// overhead and small enough to keep eviction granular.
	DefaultBlockSize = 8 * 1024 * 1024

	// DefaultMaxConcurrentFetches bounds parallel downloads per manager.
	DefaultMaxConcurrentFetches = 8
)

// Manager fetches blocks of remote files on demand and serves them
// through the file cache.
type Manager struct {
	cache       *filecache.FileCache
	local       filecache.LocalDirectory
	remote      filecache.RemoteDirectory
	blockSize   int64
	compression Compression
	logger      *filecache.Logger

	group   singleflight.Group
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu       sync.Mutex
	resident map[string]*roaring.Bitmap

	fetches atomic.Int64
}

var _ filecache.TransferManager = (*Manager)(nil)

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	blockSize   int64
	compression Compression
	maxFetches  int64
	limiter     *rate.Limiter
	logger      *filecache.Logger
}

// WithBlockSize sets the fetch granularity in bytes.
func WithBlockSize(n int64) ManagerOption {
	return func(o *managerOptions) {
		o.blockSize = n
	}
}

// WithCompression stores fetched blocks compressed on local disk.
func WithCompression(c Compression) ManagerOption {
	return func(o *managerOptions) {
		o.compression = c
	}
}

// WithMaxConcurrentFetches bounds parallel downloads.
func WithMaxConcurrentFetches(n int64) ManagerOption {
	return func(o *managerOptions) {
		o.maxFetches = n
	}
}

// WithRateLimit caps download bandwidth in bytes per second.
func WithRateLimit(bytesPerSec float64, burst int) ManagerOption {
	return func(o *managerOptions) {
		o.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), burst)
	}
}

// WithLogger sets the logger; by default the cache's logger is used.
func WithLogger(l *filecache.Logger) ManagerOption {
	return func(o *managerOptions) {
		o.logger = l
	}
}

// NewManager creates a transfer manager backed by the given cache, local
// directory, and remote directory.
func NewManager(cache *filecache.FileCache, local filecache.LocalDirectory, remote filecache.RemoteDirectory, optFns ...ManagerOption) (*Manager, error) {
	opts := managerOptions{
		blockSize:  DefaultBlockSize,
		maxFetches: DefaultMaxConcurrentFetches,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.blockSize <= 0 {
		return nil, errors.New("block size must be positive")
	}
	if opts.maxFetches <= 0 {
		return nil, errors.New("max concurrent fetches must be positive")
	}

	m := &Manager{
		cache:       cache,
		local:       local,
		remote:      remote,
		blockSize:   opts.blockSize,
		compression: opts.compression,
		logger:      opts.logger,
		sem:         semaphore.NewWeighted(opts.maxFetches),
		limiter:     opts.limiter,
		resident:    make(map[string]*roaring.Bitmap),
	}
	if m.logger == nil {
		m.logger = filecache.NoopLogger()
	}
	return m, nil
}

// BlockSize returns the fetch granularity in bytes.
func (m *Manager) BlockSize() int64 { return m.blockSize }

// FetchCount returns how many block downloads have completed.
func (m *Manager) FetchCount() int64 { return m.fetches.Load() }

// OpenInput returns a read handle over the whole remote file. A file
// made fully resident by FetchFullFile is served straight from its
// whole-file entry; otherwise blocks are fetched lazily as reads touch
// them, governed by ctx.
func (m *Manager) OpenInput(ctx context.Context, meta filecache.FileMetadata) (filecache.Input, error) {
	if meta.Length < 0 {
		return nil, fmt.Errorf("negative length %d for %s", meta.Length, meta.Name)
	}
	if in, ok := m.openFullFile(meta); ok {
		return in, nil
	}
	return newBlockInput(ctx, m, meta, 0, meta.Length), nil
}

// openFullFile serves a resident whole-file entry, if one exists.
// Clones and slices of the returned handle reference the entry, so the
// resident copy stays mapped while readers use it.
func (m *Manager) openFullFile(meta filecache.FileMetadata) (filecache.Input, bool) {
	path := m.local.Path(meta.Name)
	value, ok := m.cache.Get(path)
	if !ok {
		return nil, false
	}
	if _, isFull := value.(*filecache.FullFileCachedInput); !isFull {
		return nil, false
	}
	inner, err := value.Input()
	if err != nil {
		return nil, false
	}
	return filecache.NewFileCachedInput(m.cache, path, inner), true
}

// FetchFullFile downloads the entire file to the local directory and
// caches it as a whole-file entry, so later opens bypass the block
// path. Concurrent calls for the same file share one download.
func (m *Manager) FetchFullFile(ctx context.Context, meta filecache.FileMetadata) error {
	path := m.local.Path(meta.Name)
	_, err, _ := m.group.Do(path, func() (any, error) {
		if m.cache.Contains(path) {
			return nil, nil
		}

		if err := m.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer m.sem.Release(1)

		if m.limiter != nil {
			if err := m.limiter.WaitN(ctx, int(meta.Length)); err != nil {
				return nil, err
			}
		}

		rc, err := m.remote.ReadRange(ctx, meta.Name, 0, meta.Length)
		if err != nil {
			return nil, err
		}
		w, err := m.local.CreateOutput(meta.Name)
		if err != nil {
			_ = rc.Close()
			return nil, err
		}
		n, err := io.Copy(w, rc)
		if closeErr := rc.Close(); err == nil {
			err = closeErr
		}
		if closeErr := w.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return nil, err
		}
		if n != meta.Length {
			return nil, fmt.Errorf("fetched %d bytes for %s, want %d", n, meta.Name, meta.Length)
		}

		in, err := m.local.OpenInput(meta.Name)
		if err != nil {
			return nil, err
		}
		m.cache.Put(path, filecache.NewFullFileCachedInput(in))
		return nil, nil
	})
	return err
}

// Prefetch downloads every block of the file that is not yet resident.
func (m *Manager) Prefetch(ctx context.Context, meta filecache.FileMetadata) error {
	g, ctx := errgroup.WithContext(ctx)
	for idx := int64(0); idx*m.blockSize < meta.Length; idx++ {
		g.Go(func() error {
			in, path, err := m.acquireBlock(ctx, meta, idx)
			if err != nil {
				return err
			}
			closeErr := in.Close()
			if err := m.cache.DecRef(path); err != nil {
				return err
			}
			return closeErr
		})
	}
	return g.Wait()
}

// ResidentBlocks returns a copy of the set of block indexes of the file
// currently fetched to local disk.
func (m *Manager) ResidentBlocks(name string) *roaring.Bitmap {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bm, ok := m.resident[name]; ok {
		return bm.Clone()
	}
	return roaring.New()
}

// DropResidency forgets the resident-block set of a file. Called when
// the file's block files are deleted from local disk.
func (m *Manager) DropResidency(name string) {
	m.mu.Lock()
	delete(m.resident, name)
	m.mu.Unlock()
}

// acquireBlock returns a read handle over one block plus the cache key
// on which a reference is held. The caller must close the handle and
// release the reference.
func (m *Manager) acquireBlock(ctx context.Context, meta filecache.FileMetadata, idx int64) (filecache.Input, string, error) {
	name := BlockFileName(meta.Name, idx)
	path := m.local.Path(name)

	// A freshly loaded block can be evicted before we reference it when
	// the cache is under heavy pressure, so loading and referencing
	// retry together a few times.
	for attempt := 0; attempt < 4; attempt++ {
		err := m.cache.IncRef(path)
		if err == nil {
			if value, ok := m.cache.Get(path); ok {
				in, inErr := value.Input()
				if inErr == nil {
					return in, path, nil
				}
			}
			// The entry vanished or closed between ref and read.
			_ = m.cache.DecRef(path)
		} else if !errors.Is(err, filecache.ErrEntryNotFound) {
			return nil, "", err
		}

		if _, err, _ := m.group.Do(path, func() (any, error) {
			return nil, m.loadBlock(ctx, meta, idx, name, path)
		}); err != nil {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("block %d of %s evicted repeatedly under cache pressure", idx, meta.Name)
}

// loadBlock makes the block resident in the cache, downloading it first
// unless a usable block file is already on disk.
func (m *Manager) loadBlock(ctx context.Context, meta filecache.FileMetadata, idx int64, name, path string) error {
	if m.cache.Contains(path) {
		return nil
	}

	blockLen := m.blockLength(meta, idx)

	in, err := m.openBlockFile(name, blockLen)
	if err != nil {
		if fetchErr := m.fetchBlock(ctx, meta, idx, name, blockLen); fetchErr != nil {
			m.logger.LogFetch(meta.Name, idx, blockLen, fetchErr)
			return fetchErr
		}
		m.fetches.Add(1)
		m.logger.LogFetch(meta.Name, idx, blockLen, nil)

		in, err = m.openBlockFile(name, blockLen)
		if err != nil {
			return err
		}
	}

	m.cache.Put(path, newCachedBlock(in, blockLen))
	m.markResident(meta.Name, idx)
	return nil
}

// fetchBlock downloads one block to local disk, honoring the fetch
// concurrency bound and the bandwidth limiter.
func (m *Manager) fetchBlock(ctx context.Context, meta filecache.FileMetadata, idx int64, name string, blockLen int64) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.sem.Release(1)

	if m.limiter != nil {
		if err := m.limiter.WaitN(ctx, int(blockLen)); err != nil {
			return err
		}
	}

	rc, err := m.remote.ReadRange(ctx, meta.Name, idx*m.blockSize, blockLen)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(rc)
	if closeErr := rc.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if int64(len(data)) != blockLen {
		return fmt.Errorf("fetched %d bytes for block %d of %s, want %d",
			len(data), idx, meta.Name, blockLen)
	}

	encoded, err := encodeBlock(data, m.compression)
	if err != nil {
		return err
	}

	w, err := m.local.CreateOutput(name)
	if err != nil {
		return err
	}
	if _, err := w.Write(encoded); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// openBlockFile opens a block file from local disk and verifies it holds
// exactly blockLen logical bytes.
func (m *Manager) openBlockFile(name string, blockLen int64) (filecache.Input, error) {
	raw, err := m.local.OpenInput(name)
	if err != nil {
		return nil, err
	}
	if m.compression == CompressionNone {
		if raw.Len() != blockLen {
			_ = raw.Close()
			return nil, fmt.Errorf("block file %s has %d bytes, want %d", name, raw.Len(), blockLen)
		}
		return raw, nil
	}

	stored := make([]byte, raw.Len())
	err = raw.ReadBytes(stored)
	if closeErr := raw.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	data, err := decodeBlock(stored, m.compression)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != blockLen {
		return nil, fmt.Errorf("block file %s decodes to %d bytes, want %d", name, len(data), blockLen)
	}
	return filecache.NewBytesInput(name, data), nil
}

func (m *Manager) blockLength(meta filecache.FileMetadata, idx int64) int64 {
	start := idx * m.blockSize
	if remaining := meta.Length - start; remaining < m.blockSize {
		return remaining
	}
	return m.blockSize
}

func (m *Manager) markResident(name string, idx int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bm, ok := m.resident[name]
	if !ok {
		bm = roaring.New()
		m.resident[name] = bm
	}
	bm.Add(uint32(idx))
}

// cachedBlock is the cache entry for one fetched block.
type cachedBlock struct {
	in     filecache.Input
	length int64
	closed atomic.Bool
}

var _ filecache.CachedInput = (*cachedBlock)(nil)

func newCachedBlock(in filecache.Input, length int64) *cachedBlock {
	return &cachedBlock{in: in, length: length}
}

func (b *cachedBlock) Input() (filecache.Input, error) {
	if b.closed.Load() {
		return nil, filecache.ErrAlreadyClosed
	}
	return b.in.Clone()
}

func (b *cachedBlock) Length() int64 { return b.length }

func (b *cachedBlock) Closed() bool { return b.closed.Load() }

func (b *cachedBlock) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.in.Close()
}
