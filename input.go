package filecache

import (
	"context"
	"io"
)

// Input is a positioned read handle over an immutable file or file region.
// Multi-byte integers are big-endian. An Input is not safe for concurrent
// use; Clone produces an independent cursor over the same data.
type Input interface {
	io.Closer

	// ReadByte reads the byte at the current position and advances it.
	ReadByte() (byte, error)

	// ReadBytes fills p completely from the current position.
	ReadBytes(p []byte) error

	// ReadUint32 reads a big-endian 32-bit integer.
	ReadUint32() (uint32, error)

	// ReadUint64 reads a big-endian 64-bit integer.
	ReadUint64() (uint64, error)

	// Seek positions the cursor at pos, counted from the start of the
	// handle's region.
	Seek(pos int64) error

	// Pos returns the current cursor position.
	Pos() int64

	// Len returns the length of the handle's region in bytes.
	Len() int64

	// Clone returns an independent cursor sharing the underlying data,
	// positioned at the current position.
	Clone() (Input, error)

	// Slice returns a bounded sub-view of the region, positioned at 0.
	// desc is a human-readable label used in diagnostics.
	Slice(desc string, offset, length int64) (Input, error)
}

// CachedInput is the resource type stored in a FileCache entry. Its
// weight is its Length; closing it releases the underlying data.
type CachedInput interface {
	// Input returns a read handle over the cached data. It fails with
	// ErrAlreadyClosed once the resource is closed.
	Input() (Input, error)

	// Length returns the weight of the resource in bytes.
	Length() int64

	// Closed reports whether the resource has been closed.
	Closed() bool

	Close() error
}

// FileMetadata describes a file as known to the remote store. It carries
// what a block-fetch request needs.
type FileMetadata struct {
	Name     string
	Length   int64
	Checksum string
}

// LocalDirectory is the on-disk directory holding resident copies of
// segment files and fetched block files.
type LocalDirectory interface {
	// OpenInput opens a file for positioned reads.
	OpenInput(name string) (Input, error)

	// CreateOutput creates (or truncates) a file for writing.
	CreateOutput(name string) (io.WriteCloser, error)

	// DeleteFile removes a file. Missing files satisfy
	// errors.Is(err, ErrNotFound).
	DeleteFile(name string) error

	// FileLength returns the byte length of a file.
	FileLength(name string) (int64, error)

	// ListAll returns the names of all files in the directory, sorted.
	ListAll() ([]string, error)

	// Path resolves a file name to the key used for cache entries.
	Path(name string) string
}

// RemoteDirectory is the read-side view of the segment files uploaded to
// the remote blob store.
type RemoteDirectory interface {
	// ListAll returns the names of all uploaded files.
	ListAll(ctx context.Context) ([]string, error)

	// FileLength returns the byte length of an uploaded file.
	FileLength(ctx context.Context, name string) (int64, error)

	// Metadata returns the metadata needed to fetch blocks of a file.
	Metadata(ctx context.Context, name string) (FileMetadata, error)

	// DeleteFile removes an uploaded file.
	DeleteFile(ctx context.Context, name string) error

	// ReadRange streams length bytes starting at offset.
	ReadRange(ctx context.Context, name string, offset, length int64) (io.ReadCloser, error)
}

// TransferManager opens read handles that fetch remote blocks on demand.
// The context passed to OpenInput governs both the open and the fetches
// performed by later reads on the returned handle.
type TransferManager interface {
	OpenInput(ctx context.Context, meta FileMetadata) (Input, error)
}
