// Package cursor implements sequential, bounds-checked reads over an
// in-memory byte slice with a fixed byte order.
//
// Every read that would run past the end of the slice returns a
// raster.Truncated error; no method panics on short input.
package cursor

import (
	"encoding/binary"

	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

type Reader struct {
	buf   []byte
	off   int
	base  int // offset of buf[0] in the outermost input, for error messages
	order binary.ByteOrder
}

func New(data []byte, order binary.ByteOrder) *Reader {
	return &Reader{buf: data, order: order}
}

// Offset is the position of the next read, relative to the outermost input.
func (r *Reader) Offset() int { return r.base + r.off }

func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) short(n int) error {
	return raster.Errorf(raster.Unknown, raster.Truncated,
		"need %d bytes at offset %d, have %d", n, r.Offset(), r.Remaining())
}

func (r *Reader) need(n int) error {
	if n < 0 || n > r.Remaining() {
		return r.short(n)
	}
	return nil
}

func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := r.order.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := r.order.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

// Bytes returns the next n bytes without copying.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	return b, nil
}

// Rest returns all unread bytes without copying and leaves r empty.
func (r *Reader) Rest() []byte {
	b := r.buf[r.off:len(r.buf):len(r.buf)]
	r.off = len(r.buf)
	return b
}

// Tag reads len(want) bytes and reports whether they equal want.
func (r *Reader) Tag(want string) (bool, error) {
	b, err := r.Bytes(len(want))
	if err != nil {
		return false, err
	}
	return string(b) == want, nil
}

func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.off += n
	return nil
}

// Seek moves to off, relative to the start of this reader.
func (r *Reader) Seek(off int) error {
	if off < 0 || off > len(r.buf) {
		return raster.Errorf(raster.Unknown, raster.Truncated,
			"seek to offset %d past end %d", r.base+off, r.base+len(r.buf))
	}
	r.off = off
	return nil
}

// Sub returns a reader over the next n bytes and advances r past them.
func (r *Reader) Sub(n uint32) (*Reader, error) {
	if uint64(n) > uint64(r.Remaining()) {
		return nil, raster.Errorf(raster.Unknown, raster.Truncated,
			"section of %d bytes at offset %d, have %d", n, r.Offset(), r.Remaining())
	}
	end := r.off + int(n)
	sub := &Reader{buf: r.buf[r.off:end:end], base: r.Offset(), order: r.order}
	r.off = end
	return sub, nil
}

// LengthPrefixed reads a u32 length and returns a reader over that many
// following bytes.
func (r *Reader) LengthPrefixed() (*Reader, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	return r.Sub(n)
}
