package cursor

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

func TestReadsRespectByteOrder(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

	le := New(data, binary.LittleEndian)
	if v, err := le.U16(); err != nil || v != 0x0201 {
		t.Fatalf("LE U16 = %#x, %v", v, err)
	}
	if v, err := le.U32(); err != nil || v != 0x06050403 {
		t.Fatalf("LE U32 = %#x, %v", v, err)
	}

	be := New(data, binary.BigEndian)
	if v, err := be.U16(); err != nil || v != 0x0102 {
		t.Fatalf("BE U16 = %#x, %v", v, err)
	}
	if v, err := be.U32(); err != nil || v != 0x03040506 {
		t.Fatalf("BE U32 = %#x, %v", v, err)
	}
	if be.Remaining() != 0 || be.Offset() != 6 {
		t.Fatalf("Remaining = %d, Offset = %d", be.Remaining(), be.Offset())
	}
}

func TestI32(t *testing.T) {
	r := New([]byte{0xfe, 0xff, 0xff, 0xff}, binary.LittleEndian)
	if v, err := r.I32(); err != nil || v != -2 {
		t.Fatalf("I32 = %d, %v", v, err)
	}
}

func TestShortReadsAreTruncated(t *testing.T) {
	for _, tc := range []struct {
		name string
		data []byte
		read func(*Reader) error
	}{
		{"U8", nil, func(r *Reader) error { _, err := r.U8(); return err }},
		{"U16", []byte{0xaa}, func(r *Reader) error { _, err := r.U16(); return err }},
		{"U32", []byte{0xaa, 0xbb, 0xcc}, func(r *Reader) error { _, err := r.U32(); return err }},
		{"I32", []byte{0xaa}, func(r *Reader) error { _, err := r.I32(); return err }},
		{"Bytes", []byte{0xaa}, func(r *Reader) error { _, err := r.Bytes(2); return err }},
		{"BytesNegative", []byte{0xaa}, func(r *Reader) error { _, err := r.Bytes(-1); return err }},
		{"Skip", []byte{0xaa}, func(r *Reader) error { return r.Skip(2) }},
		{"Seek", []byte{0xaa}, func(r *Reader) error { return r.Seek(9) }},
		{"SeekNegative", []byte{0xaa}, func(r *Reader) error { return r.Seek(-1) }},
		{"Sub", []byte{0xaa}, func(r *Reader) error { _, err := r.Sub(2); return err }},
		{"SubHuge", []byte{0xaa}, func(r *Reader) error { _, err := r.Sub(0xffffffff); return err }},
		{"LengthPrefixed", []byte{0xaa}, func(r *Reader) error { _, err := r.LengthPrefixed(); return err }},
		{"LengthPrefixedBody", []byte{0, 0, 0, 2, 0xaa}, func(r *Reader) error { _, err := r.LengthPrefixed(); return err }},
		{"Tag", []byte{'8', 'B', 'P'}, func(r *Reader) error { _, err := r.Tag("8BPS"); return err }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := New(tc.data, binary.BigEndian)
			err := tc.read(r)
			if !errors.Is(err, raster.Truncated) {
				t.Fatalf("err = %v, want Truncated", err)
			}
			if tc.name != "LengthPrefixedBody" && r.Offset() != 0 {
				t.Fatalf("failed read advanced to %d", r.Offset())
			}
		})
	}
}

func TestExactReadsSucceed(t *testing.T) {
	r := New([]byte{0xaa}, binary.BigEndian)
	if v, err := r.U8(); err != nil || v != 0xaa {
		t.Fatalf("U8 = %#x, %v", v, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("Remaining = %d", r.Remaining())
	}
	if _, err := r.U8(); !errors.Is(err, raster.Truncated) {
		t.Fatalf("second U8 err = %v, want Truncated", err)
	}
}

func TestSubTracksAbsoluteOffset(t *testing.T) {
	data := []byte{0, 0, 0, 3, 'a', 'b', 'c', 'z'}
	r := New(data, binary.BigEndian)
	sub, err := r.LengthPrefixed()
	if err != nil {
		t.Fatal(err)
	}
	if sub.Offset() != 4 || sub.Remaining() != 3 {
		t.Fatalf("sub Offset = %d, Remaining = %d", sub.Offset(), sub.Remaining())
	}
	if ok, err := sub.Tag("abc"); err != nil || !ok {
		t.Fatalf("Tag = %v, %v", ok, err)
	}
	if _, err := sub.U8(); !errors.Is(err, raster.Truncated) {
		t.Fatalf("read past sub end: %v", err)
	}
	if b, err := r.U8(); err != nil || b != 'z' {
		t.Fatalf("parent after sub = %q, %v", b, err)
	}
}

func TestBytesDoesNotAliasBeyondSlice(t *testing.T) {
	r := New([]byte{1, 2, 3, 4}, binary.BigEndian)
	b, err := r.Bytes(2)
	if err != nil {
		t.Fatal(err)
	}
	if cap(b) != 2 {
		t.Fatalf("cap = %d, want 2", cap(b))
	}
}
