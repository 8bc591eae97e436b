package filecache

import (
	"encoding/binary"
	"fmt"
	"io"
)

// BytesInput is an Input over an in-memory byte slice. It backs resident
// local files (via mmap) and fetched blocks; the slice must stay valid and
// immutable until every handle derived from it is closed.
type BytesInput struct {
	desc   string
	data   []byte
	pos    int64
	closed bool
}

// NewBytesInput returns an Input reading from data. desc labels the
// handle in error messages.
func NewBytesInput(desc string, data []byte) *BytesInput {
	return &BytesInput{desc: desc, data: data}
}

func (b *BytesInput) ReadByte() (byte, error) {
	if b.closed {
		return 0, ErrAlreadyClosed
	}
	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

func (b *BytesInput) ReadBytes(p []byte) error {
	if b.closed {
		return ErrAlreadyClosed
	}
	if b.pos+int64(len(p)) > int64(len(b.data)) {
		return io.ErrUnexpectedEOF
	}
	copy(p, b.data[b.pos:])
	b.pos += int64(len(p))
	return nil
}

func (b *BytesInput) ReadUint32() (uint32, error) {
	var buf [4]byte
	if err := b.ReadBytes(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (b *BytesInput) ReadUint64() (uint64, error) {
	var buf [8]byte
	if err := b.ReadBytes(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func (b *BytesInput) Seek(pos int64) error {
	if b.closed {
		return ErrAlreadyClosed
	}
	if pos < 0 || pos > int64(len(b.data)) {
		return fmt.Errorf("filecache: seek out of range (%s pos=%d len=%d)", b.desc, pos, len(b.data))
	}
	b.pos = pos
	return nil
}

func (b *BytesInput) Pos() int64 { return b.pos }

func (b *BytesInput) Len() int64 { return int64(len(b.data)) }

func (b *BytesInput) Clone() (Input, error) {
	if b.closed {
		return nil, ErrAlreadyClosed
	}
	return &BytesInput{desc: b.desc, data: b.data, pos: b.pos}, nil
}

func (b *BytesInput) Slice(desc string, offset, length int64) (Input, error) {
	if b.closed {
		return nil, ErrAlreadyClosed
	}
	if offset < 0 || length < 0 || offset+length > int64(len(b.data)) {
		return nil, fmt.Errorf("filecache: slice out of range (%s offset=%d length=%d len=%d)", desc, offset, length, len(b.data))
	}
	return &BytesInput{desc: desc, data: b.data[offset : offset+length : offset+length]}, nil
}

// Close marks the handle closed. The backing slice is owned elsewhere and
// is not released here.
func (b *BytesInput) Close() error {
	b.closed = true
	return nil
}
