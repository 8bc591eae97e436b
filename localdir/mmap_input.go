package localdir

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/hupe1980/filecache"
)

// mapping is a shared read-only memory map. The last handle to release it
// unmaps the memory and closes the file.
type mapping struct {
	data []byte
	f    *os.File
	refs atomic.Int64
}

func openMapping(path string) (*mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	m := &mapping{f: f}
	if size := fi.Size(); size > 0 {
		data, err := mmap(f, int(size))
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		m.data = data
	}
	m.refs.Store(1)
	return m, nil
}

func (m *mapping) acquire() {
	m.refs.Add(1)
}

func (m *mapping) release() error {
	if m.refs.Add(-1) != 0 {
		return nil
	}
	var err error
	if m.data != nil {
		err = munmap(m.data)
		m.data = nil
	}
	if closeErr := m.f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// MmapInput is a positional reader over a memory-mapped file region.
// Clones and slices share the mapping.
type MmapInput struct {
	desc   string
	m      *mapping
	data   []byte
	pos    int64
	closed bool
}

var _ filecache.Input = (*MmapInput)(nil)

// OpenMmapInput maps the file at path and returns an input over its full
// contents.
func OpenMmapInput(desc, path string) (*MmapInput, error) {
	m, err := openMapping(path)
	if err != nil {
		return nil, err
	}
	return &MmapInput{desc: desc, m: m, data: m.data}, nil
}

func (in *MmapInput) ReadByte() (byte, error) {
	if in.closed {
		return 0, filecache.ErrAlreadyClosed
	}
	if in.pos >= int64(len(in.data)) {
		return 0, io.EOF
	}
	b := in.data[in.pos]
	in.pos++
	return b, nil
}

func (in *MmapInput) ReadBytes(p []byte) error {
	if in.closed {
		return filecache.ErrAlreadyClosed
	}
	n := copy(p, in.data[in.pos:])
	in.pos += int64(n)
	if n < len(p) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (in *MmapInput) ReadUint32() (uint32, error) {
	var buf [4]byte
	if err := in.ReadBytes(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (in *MmapInput) ReadUint64() (uint64, error) {
	var buf [8]byte
	if err := in.ReadBytes(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func (in *MmapInput) Seek(pos int64) error {
	if in.closed {
		return filecache.ErrAlreadyClosed
	}
	if pos < 0 || pos > int64(len(in.data)) {
		return fmt.Errorf("seek %d out of bounds [0, %d] in %s", pos, len(in.data), in.desc)
	}
	in.pos = pos
	return nil
}

func (in *MmapInput) Pos() int64 { return in.pos }

func (in *MmapInput) Len() int64 { return int64(len(in.data)) }

func (in *MmapInput) Clone() (filecache.Input, error) {
	if in.closed {
		return nil, filecache.ErrAlreadyClosed
	}
	in.m.acquire()
	return &MmapInput{desc: in.desc, m: in.m, data: in.data, pos: in.pos}, nil
}

func (in *MmapInput) Slice(desc string, offset, length int64) (filecache.Input, error) {
	if in.closed {
		return nil, filecache.ErrAlreadyClosed
	}
	if offset < 0 || length < 0 || offset+length > int64(len(in.data)) {
		return nil, fmt.Errorf("slice %q [%d, %d) out of bounds [0, %d) in %s",
			desc, offset, offset+length, len(in.data), in.desc)
	}
	in.m.acquire()
	return &MmapInput{
		desc: desc,
		m:    in.m,
		data: in.data[offset : offset+length : offset+length],
	}, nil
}

func (in *MmapInput) Close() error {
	if in.closed {
		return nil
	}
	in.closed = true
	in.data = nil
	return in.m.release()
}
