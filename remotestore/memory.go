package remotestore

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/filecache"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// MemoryDirectory is an in-memory remote directory. It counts range
// reads, which makes fetch behavior observable in tests.
type MemoryDirectory struct {
	mu    sync.RWMutex
	files map[string][]byte

	rangeReads atomic.Int64
}

var _ filecache.RemoteDirectory = (*MemoryDirectory)(nil)

// NewMemoryDirectory returns an empty in-memory remote directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{files: make(map[string][]byte)}
}

// Put stores data under name, replacing any previous contents.
func (d *MemoryDirectory) Put(name string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[name] = bytes.Clone(data)
}

// RangeReads returns how many ReadRange calls have been served.
func (d *MemoryDirectory) RangeReads() int64 {
	return d.rangeReads.Load()
}

func (d *MemoryDirectory) ListAll(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.files))
	for name := range d.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *MemoryDirectory) FileLength(ctx context.Context, name string) (int64, error) {
	meta, err := d.Metadata(ctx, name)
	if err != nil {
		return 0, err
	}
	return meta.Length, nil
}

func (d *MemoryDirectory) Metadata(ctx context.Context, name string) (filecache.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return filecache.FileMetadata{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	data, ok := d.files[name]
	if !ok {
		return filecache.FileMetadata{}, fmt.Errorf("remote file %s: %w", name, filecache.ErrNotFound)
	}
	return filecache.FileMetadata{
		Name:     name,
		Length:   int64(len(data)),
		Checksum: fmt.Sprintf("%08x", crc32.Checksum(data, castagnoli)),
	}, nil
}

func (d *MemoryDirectory) DeleteFile(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.files[name]; !ok {
		return fmt.Errorf("remote file %s: %w", name, filecache.ErrNotFound)
	}
	delete(d.files, name)
	return nil
}

func (d *MemoryDirectory) ReadRange(ctx context.Context, name string, offset, length int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	data, ok := d.files[name]
	if !ok {
		return nil, fmt.Errorf("remote file %s: %w", name, filecache.ErrNotFound)
	}
	if offset < 0 || length < 0 || offset+length > int64(len(data)) {
		return nil, fmt.Errorf("range [%d, %d) out of bounds [0, %d) in %s",
			offset, offset+length, len(data), name)
	}
	d.rangeReads.Add(1)
	return io.NopCloser(bytes.NewReader(data[offset : offset+length])), nil
}
