package composite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/filecache"
	"github.com/hupe1980/filecache/transfer"
)

// Directory merges a local directory holding not-yet-uploaded segment
// files with a remote directory of uploaded ones. Reads route by upload
// state and survive the transition: AfterSyncToRemote switches open
// handles from local to remote backing without disturbing their
// positions.
type Directory struct {
	local  filecache.LocalDirectory
	remote filecache.RemoteDirectory
	cache  *filecache.FileCache
	tm     *transfer.Manager
	logger *filecache.Logger

	seq atomic.Int64

	mu sync.RWMutex
	// uploaded mirrors the remote listing; pending maps a local file
	// name to the cache keys of its live switchable handles.
	uploaded map[string]struct{}
	pending  map[string]map[string]*filecache.CachedSwitchableInput
}

// Option configures a Directory.
type Option func(*Directory)

// WithLogger sets the logger; by default the cache's logger is used.
func WithLogger(l *filecache.Logger) Option {
	return func(d *Directory) {
		d.logger = l
	}
}

// New builds a composite directory and primes the uploaded-file set
// from the remote listing.
func New(ctx context.Context, cache *filecache.FileCache, local filecache.LocalDirectory, remote filecache.RemoteDirectory, tm *transfer.Manager, optFns ...Option) (*Directory, error) {
	d := &Directory{
		local:    local,
		remote:   remote,
		cache:    cache,
		tm:       tm,
		uploaded: make(map[string]struct{}),
		pending:  make(map[string]map[string]*filecache.CachedSwitchableInput),
	}
	for _, fn := range optFns {
		fn(d)
	}
	if d.logger == nil {
		d.logger = filecache.NoopLogger()
	}
	if err := d.Refresh(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Refresh reloads the uploaded-file set from the remote store.
func (d *Directory) Refresh(ctx context.Context) error {
	names, err := d.remote.ListAll(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploaded = make(map[string]struct{}, len(names))
	for _, name := range names {
		d.uploaded[name] = struct{}{}
	}
	return nil
}

func (d *Directory) isUploaded(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.uploaded[name]
	return ok
}

// ListAll returns the merged, sorted file listing. Block files are an
// implementation detail of the transfer manager and are filtered out.
func (d *Directory) ListAll(ctx context.Context) ([]string, error) {
	remoteNames, err := d.remote.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	localNames, err := d.local.ListAll()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(remoteNames)+len(localNames))
	var names []string
	for _, name := range remoteNames {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	for _, name := range localNames {
		if transfer.IsBlockFile(name) {
			continue
		}
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// FileLength returns the byte length of a file from whichever side
// holds it.
func (d *Directory) FileLength(ctx context.Context, name string) (int64, error) {
	if d.isUploaded(name) {
		return d.remote.FileLength(ctx, name)
	}
	return d.local.FileLength(name)
}

// OpenInput opens a read handle over a file. Uploaded files read
// through cached blocks fetched on demand; files still local read from
// disk through a handle that can later be switched to remote backing.
// ctx governs the open and, for uploaded files, the block fetches done
// by later reads.
func (d *Directory) OpenInput(ctx context.Context, name string) (filecache.Input, error) {
	if d.isUploaded(name) {
		meta, err := d.remote.Metadata(ctx, name)
		if err != nil {
			return nil, err
		}
		return d.tm.OpenInput(ctx, meta)
	}
	return d.openSwitchable(name)
}

func (d *Directory) openSwitchable(name string) (filecache.Input, error) {
	switchPath := fmt.Sprintf("%s_switchable_%d", d.local.Path(name), d.seq.Add(1))

	s, err := filecache.NewSwitchableInput(filecache.SwitchableConfig{
		Cache:      d.cache,
		FileName:   name,
		FullPath:   d.local.Path(name),
		SwitchPath: switchPath,
		Local:      d.local,
		Remote:     d.remote,
		Transfer:   d.tm,
		Logger:     d.logger,
	})
	if err != nil {
		return nil, err
	}

	wrapper := filecache.NewCachedSwitchableInput(s)
	d.cache.Put(switchPath, wrapper)

	// The caller gets a clone holding a reference on the handle's cache
	// entry, so the origin outlives every outstanding reader.
	reader, err := s.Clone()
	if err != nil {
		d.cache.Remove(switchPath)
		return nil, err
	}

	d.mu.Lock()
	handles, ok := d.pending[name]
	if !ok {
		handles = make(map[string]*filecache.CachedSwitchableInput)
		d.pending[name] = handles
	}
	handles[switchPath] = wrapper
	d.mu.Unlock()

	return reader, nil
}

// AfterSyncToRemote is called once the named files have been uploaded.
// It switches their open handles to remote backing and deletes the
// local copies.
func (d *Directory) AfterSyncToRemote(ctx context.Context, names ...string) error {
	var errs []error
	for _, name := range names {
		if err := d.syncOne(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Directory) syncOne(ctx context.Context, name string) error {
	d.mu.Lock()
	handles := d.pending[name]
	delete(d.pending, name)
	d.uploaded[name] = struct{}{}
	d.mu.Unlock()

	var errs []error
	for _, wrapper := range handles {
		if err := wrapper.SwitchToRemote(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	// Handles without open readers have no reason to stay cached.
	d.cache.Prune(func(key string) bool {
		return isSwitchKeyFor(key, d.local.Path(name))
	})

	d.cache.Remove(d.local.Path(name))
	if err := d.local.DeleteFile(name); err != nil && !errors.Is(err, filecache.ErrNotFound) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DeleteFile removes a file from both sides, along with its cache
// entries and any fetched block files.
func (d *Directory) DeleteFile(ctx context.Context, name string) error {
	d.mu.Lock()
	handles := d.pending[name]
	delete(d.pending, name)
	delete(d.uploaded, name)
	d.mu.Unlock()

	var errs []error
	for switchPath := range handles {
		d.cache.Remove(switchPath)
	}
	d.cache.Remove(d.local.Path(name))

	d.tm.DropResidency(name)
	localNames, err := d.local.ListAll()
	if err != nil {
		errs = append(errs, err)
	}
	for _, ln := range localNames {
		base, _, ok := transfer.ParseBlockFileName(ln)
		if !ok || base != name {
			continue
		}
		d.cache.Remove(d.local.Path(ln))
		if err := d.local.DeleteFile(ln); err != nil && !errors.Is(err, filecache.ErrNotFound) {
			errs = append(errs, err)
		}
	}

	if err := d.local.DeleteFile(name); err != nil && !errors.Is(err, filecache.ErrNotFound) {
		errs = append(errs, err)
	}
	if err := d.remote.DeleteFile(ctx, name); err != nil && !errors.Is(err, filecache.ErrNotFound) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func isSwitchKeyFor(key, fullPath string) bool {
	prefix := fullPath + "_switchable_"
	return len(key) > len(prefix) && key[:len(prefix)] == prefix
}
