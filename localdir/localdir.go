package localdir

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/hupe1980/filecache"
)

// Directory serves files from one directory on local disk.
type Directory struct {
	root string
}

var _ filecache.LocalDirectory = (*Directory)(nil)

// New opens (creating if needed) the directory at root.
func New(root string) (*Directory, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create local directory: %w", err)
	}
	return &Directory{root: root}, nil
}

// OpenInput memory-maps the named file.
func (d *Directory) OpenInput(name string) (filecache.Input, error) {
	return OpenMmapInput(name, d.Path(name))
}

// CreateOutput creates or truncates the named file. The returned writer
// syncs to disk on close.
func (d *Directory) CreateOutput(name string) (io.WriteCloser, error) {
	f, err := os.OpenFile(d.Path(name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &syncedOutput{f: f}, nil
}

// DeleteFile removes the named file. Missing files report
// filecache.ErrNotFound.
func (d *Directory) DeleteFile(name string) error {
	return os.Remove(d.Path(name))
}

// FileLength returns the byte length of the named file.
func (d *Directory) FileLength(name string) (int64, error) {
	fi, err := os.Stat(d.Path(name))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// ListAll returns the sorted names of all regular files in the directory.
func (d *Directory) ListAll() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Path resolves a file name to its absolute path, which doubles as the
// cache key for entries backed by this directory.
func (d *Directory) Path(name string) string {
	return filepath.Join(d.root, name)
}

// syncedOutput flushes file contents to stable storage before close so a
// freshly written block or segment file is immediately mappable.
type syncedOutput struct {
	f *os.File
}

func (o *syncedOutput) Write(p []byte) (int, error) { return o.f.Write(p) }

func (o *syncedOutput) Close() error {
	if err := o.f.Sync(); err != nil {
		_ = o.f.Close()
		return err
	}
	return o.f.Close()
}
