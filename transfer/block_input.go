package transfer

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hupe1980/filecache"
)

// BlockInput reads a region of a remote file through locally cached
// blocks. It keeps at most one block referenced, the one the cursor is
// in, and swaps references as reads cross block boundaries. Blocks it
// has never touched are never fetched.
type BlockInput struct {
	ctx  context.Context
	m    *Manager
	meta filecache.FileMetadata

	// offset and length bound this view; offset is absolute within the
	// remote file.
	offset int64
	length int64
	pos    int64

	curIdx  int64
	curIn   filecache.Input
	curPath string
	closed  bool
}

var _ filecache.Input = (*BlockInput)(nil)

func newBlockInput(ctx context.Context, m *Manager, meta filecache.FileMetadata, offset, length int64) *BlockInput {
	return &BlockInput{
		ctx:    ctx,
		m:      m,
		meta:   meta,
		offset: offset,
		length: length,
		curIdx: -1,
	}
}

// position moves the held block and its cursor to the absolute file
// position of in.pos.
func (in *BlockInput) position() error {
	abs := in.offset + in.pos
	idx := abs / in.m.blockSize

	if idx != in.curIdx {
		in.releaseBlock()
		blockIn, path, err := in.m.acquireBlock(in.ctx, in.meta, idx)
		if err != nil {
			return err
		}
		in.curIdx, in.curIn, in.curPath = idx, blockIn, path
	}
	return in.curIn.Seek(abs % in.m.blockSize)
}

func (in *BlockInput) releaseBlock() {
	if in.curIn == nil {
		return
	}
	_ = in.curIn.Close()
	_ = in.m.cache.DecRef(in.curPath)
	in.curIdx, in.curIn, in.curPath = -1, nil, ""
}

func (in *BlockInput) ReadByte() (byte, error) {
	if in.closed {
		return 0, filecache.ErrAlreadyClosed
	}
	if in.pos >= in.length {
		return 0, io.EOF
	}
	if err := in.position(); err != nil {
		return 0, err
	}
	b, err := in.curIn.ReadByte()
	if err != nil {
		return 0, err
	}
	in.pos++
	return b, nil
}

func (in *BlockInput) ReadBytes(p []byte) error {
	if in.closed {
		return filecache.ErrAlreadyClosed
	}
	for n := 0; n < len(p); {
		if in.pos >= in.length {
			return io.ErrUnexpectedEOF
		}
		if err := in.position(); err != nil {
			return err
		}
		take := int64(len(p) - n)
		if avail := in.curIn.Len() - in.curIn.Pos(); take > avail {
			take = avail
		}
		if left := in.length - in.pos; take > left {
			take = left
		}
		if err := in.curIn.ReadBytes(p[n : n+int(take)]); err != nil {
			return err
		}
		n += int(take)
		in.pos += take
	}
	return nil
}

func (in *BlockInput) ReadUint32() (uint32, error) {
	var buf [4]byte
	if err := in.ReadBytes(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (in *BlockInput) ReadUint64() (uint64, error) {
	var buf [8]byte
	if err := in.ReadBytes(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// Seek moves the cursor without touching any block; the block for the
// new position is acquired by the next read.
func (in *BlockInput) Seek(pos int64) error {
	if in.closed {
		return filecache.ErrAlreadyClosed
	}
	if pos < 0 || pos > in.length {
		return fmt.Errorf("seek %d out of bounds [0, %d] in %s", pos, in.length, in.meta.Name)
	}
	in.pos = pos
	return nil
}

func (in *BlockInput) Pos() int64 { return in.pos }

func (in *BlockInput) Len() int64 { return in.length }

func (in *BlockInput) Clone() (filecache.Input, error) {
	if in.closed {
		return nil, filecache.ErrAlreadyClosed
	}
	clone := newBlockInput(in.ctx, in.m, in.meta, in.offset, in.length)
	clone.pos = in.pos
	return clone, nil
}

func (in *BlockInput) Slice(desc string, offset, length int64) (filecache.Input, error) {
	if in.closed {
		return nil, filecache.ErrAlreadyClosed
	}
	if offset < 0 || length < 0 || offset+length > in.length {
		return nil, fmt.Errorf("slice %q [%d, %d) out of bounds [0, %d) in %s",
			desc, offset, offset+length, in.length, in.meta.Name)
	}
	return newBlockInput(in.ctx, in.m, in.meta, in.offset+offset, length), nil
}

func (in *BlockInput) Close() error {
	if in.closed {
		return nil
	}
	in.closed = true
	in.releaseBlock()
	return nil
}
