package bmp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image/color"
	"runtime"
	"testing"

	xbmp "golang.org/x/image/bmp"

	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

var (
	red   = color.RGBA{R: 0xff, A: 0xff}
	green = color.RGBA{G: 0xff, A: 0xff}
	blue  = color.RGBA{B: 0xff, A: 0xff}
	white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// fixture describes a synthetic BMP. Indexed depths read pixels from
// index, direct depths from rgba.
type fixture struct {
	width, height int
	bitCount      uint16
	palette       []color.RGBA
	colorsUsed    uint32
	topDown       bool
	compression   uint32
	headerSize    uint32
	planes        uint16
	index         func(x, y int) int
	rgba          func(x, y int) color.RGBA
}

func (f fixture) bytes(t testing.TB) []byte {
	t.Helper()
	headerSize := f.headerSize
	if headerSize == 0 {
		headerSize = infoHeaderLen
	}
	planes := f.planes
	if planes == 0 {
		planes = 1
	}
	stride := ((f.width*int(f.bitCount) + 31) / 32) * 4
	dataOffset := fileHeaderLen + infoHeaderLen + len(f.palette)*4
	height := int32(f.height)
	if f.topDown {
		height = -height
	}

	var buf bytes.Buffer
	write := func(v interface{}) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("binary.Write: %v", err)
		}
	}
	buf.WriteString("BM")
	write(uint32(dataOffset + stride*f.height))
	write(uint32(0))
	write(uint32(dataOffset))
	write(headerSize)
	write(int32(f.width))
	write(height)
	write(planes)
	write(f.bitCount)
	write(f.compression)
	write(uint32(stride * f.height))
	write(int32(2835))
	write(int32(2835))
	write(f.colorsUsed)
	write(uint32(0))
	for _, p := range f.palette {
		buf.Write([]byte{p.B, p.G, p.R, 0})
	}

	for s := 0; s < f.height; s++ {
		y := f.height - 1 - s
		if f.topDown {
			y = s
		}
		row := make([]byte, stride)
		for x := 0; x < f.width; x++ {
			switch f.bitCount {
			case 1, 4, 8:
				bits := int(f.bitCount)
				perByte := 8 / bits
				shift := 8 - bits*(x%perByte+1)
				row[x/perByte] |= byte(f.index(x, y)) << shift
			case 24:
				c := f.rgba(x, y)
				copy(row[x*3:], []byte{c.B, c.G, c.R})
			case 32:
				c := f.rgba(x, y)
				copy(row[x*4:], []byte{c.B, c.G, c.R, c.A})
			}
		}
		buf.Write(row)
	}
	return buf.Bytes()
}

func (f fixture) want(x, y int) color.RGBA {
	if f.bitCount <= 8 {
		return f.palette[f.index(x, y)]
	}
	c := f.rgba(x, y)
	if f.bitCount == 24 {
		c.A = 0xff
	}
	return c
}

func grayPalette(n int) []color.RGBA {
	pal := make([]color.RGBA, n)
	for i := range pal {
		v := uint8(i * 255 / max(n-1, 1))
		pal[i] = color.RGBA{R: v, G: 255 - v, B: v / 2, A: 0xff}
	}
	return pal
}

func depthFixture(bitCount uint16, width, height int) fixture {
	f := fixture{width: width, height: height, bitCount: bitCount}
	switch bitCount {
	case 1, 4, 8:
		n := 1 << bitCount
		f.palette = grayPalette(n)
		f.index = func(x, y int) int { return (x*7 + y*3) % n }
	default:
		f.rgba = func(x, y int) color.RGBA {
			return color.RGBA{R: uint8(x * 40), G: uint8(y * 60), B: uint8(x ^ y), A: uint8(100 + x + y)}
		}
	}
	return f
}

func checkPixels(t *testing.T, f fixture, img *raster.Image) {
	t.Helper()
	if img.Width != f.width || img.Height != f.height {
		t.Fatalf("size = %dx%d, want %dx%d", img.Width, img.Height, f.width, f.height)
	}
	if len(img.Pix) != f.width*f.height*4 {
		t.Fatalf("len(Pix) = %d, want %d", len(img.Pix), f.width*f.height*4)
	}
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			if got, want := img.At(x, y), f.want(x, y); got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestDecode2x2Scenario(t *testing.T) {
	data := []byte{
		'B', 'M', 70, 0, 0, 0, 0, 0, 0, 0, 54, 0, 0, 0,
		40, 0, 0, 0, 2, 0, 0, 0, 2, 0, 0, 0, 1, 0, 24, 0,
		0, 0, 0, 0, 16, 0, 0, 0, 0x13, 0x0b, 0, 0, 0x13, 0x0b, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
		// bottom row first: blue, white, padding
		255, 0, 0, 255, 255, 255, 0, 0,
		// top row: red, green, padding
		0, 0, 255, 0, 255, 0, 0, 0,
	}
	img, err := Decode(data, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []byte{
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 255, 255, 255, 255,
	}
	if !bytes.Equal(img.Pix, want) {
		t.Fatalf("Pix = %v, want %v", img.Pix, want)
	}
	if img.At(0, 0) != red || img.At(1, 0) != green || img.At(0, 1) != blue || img.At(1, 1) != white {
		t.Fatal("At disagrees with Pix")
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	for _, bitCount := range []uint16{1, 4, 8, 24, 32} {
		// Widths 1..17 exercise every padding remainder for every depth.
		for width := 1; width <= 17; width++ {
			f := depthFixture(bitCount, width, 3)
			img, err := Decode(f.bytes(t), nil)
			if err != nil {
				t.Fatalf("%d-bit width %d: Decode: %v", bitCount, width, err)
			}
			checkPixels(t, f, img)
		}
	}
}

func TestDecodeTopDown(t *testing.T) {
	f := depthFixture(24, 5, 4)
	f.topDown = true
	img, err := Decode(f.bytes(t), nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	checkPixels(t, f, img)
}

func TestDecodeColorsUsed(t *testing.T) {
	f := fixture{
		width: 4, height: 2, bitCount: 8,
		palette:    []color.RGBA{red, green, blue},
		colorsUsed: 3,
		index:      func(x, y int) int { return (x + y) % 3 },
	}
	img, err := Decode(f.bytes(t), nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	checkPixels(t, f, img)

	f.index = func(x, y int) int { return 3 }
	if _, err := Decode(f.bytes(t), nil); !errors.Is(err, raster.Malformed) {
		t.Fatalf("out of range index: err = %v, want Malformed", err)
	}
}

func TestDecodeZeroSize(t *testing.T) {
	for _, f := range []fixture{
		depthFixture(24, 0, 5),
		depthFixture(24, 5, 0),
		depthFixture(8, 0, 0),
	} {
		img, err := Decode(f.bytes(t), nil)
		if err != nil {
			t.Fatalf("%dx%d: Decode: %v", f.width, f.height, err)
		}
		if len(img.Pix) != 0 {
			t.Fatalf("%dx%d: len(Pix) = %d", f.width, f.height, len(img.Pix))
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*fixture)
		patch  func([]byte)
		want   raster.Kind
	}{
		{name: "signature", patch: func(b []byte) { b[0] = 'X' }, want: raster.BadSignature},
		{name: "v5 header", mutate: func(f *fixture) { f.headerSize = 124 }, want: raster.UnsupportedVariant},
		{name: "planes", mutate: func(f *fixture) { f.planes = 2 }, want: raster.UnsupportedVariant},
		{name: "16 bit", patch: func(b []byte) { b[28] = 16 }, want: raster.UnsupportedDepth},
		{name: "rle8", mutate: func(f *fixture) { f.compression = biRLE8 }, want: raster.UnsupportedCompression},
		{name: "rle4", mutate: func(f *fixture) { f.compression = biRLE4 }, want: raster.UnsupportedCompression},
		{name: "bitfields", mutate: func(f *fixture) { f.compression = biBitfields }, want: raster.UnsupportedCompression},
		{name: "unknown compression", mutate: func(f *fixture) { f.compression = 42 }, want: raster.UnsupportedCompression},
		{name: "negative width", patch: func(b []byte) { binary.LittleEndian.PutUint32(b[18:], uint32(0xfffffffe)) }, want: raster.UnsupportedVariant},
		{name: "palette too large", mutate: func(f *fixture) { f.colorsUsed = 300 }, want: raster.UnsupportedVariant},
		{name: "huge", patch: func(b []byte) { binary.LittleEndian.PutUint32(b[18:], 1<<20) }, want: raster.SizeOverflow},
		{name: "data offset", patch: func(b []byte) { binary.LittleEndian.PutUint32(b[10:], 1<<30) }, want: raster.Truncated},
		{name: "data offset in file header", patch: func(b []byte) { binary.LittleEndian.PutUint32(b[10:], 0) }, want: raster.Malformed},
		{name: "data offset in palette", patch: func(b []byte) { binary.LittleEndian.PutUint32(b[10:], 54+255*4) }, want: raster.Malformed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := depthFixture(8, 4, 4)
			if tc.mutate != nil {
				tc.mutate(&f)
			}
			data := f.bytes(t)
			if tc.patch != nil {
				tc.patch(data)
			}
			img, err := Decode(data, nil)
			if img != nil {
				t.Fatal("image returned alongside error")
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			var re *raster.Error
			if !errors.As(err, &re) || re.Format != raster.BMP {
				t.Fatalf("err %v does not carry the bmp format", err)
			}
		})
	}
}

func TestDecodeLimits(t *testing.T) {
	f := depthFixture(24, 20, 20)
	_, err := Decode(f.bytes(t), &Options{Limits: raster.Limits{MaxPixels: 399}})
	if !errors.Is(err, raster.SizeOverflow) {
		t.Fatalf("err = %v, want SizeOverflow", err)
	}
	if _, err := Decode(f.bytes(t), &Options{Limits: raster.Limits{MaxPixels: 400}}); err != nil {
		t.Fatalf("at cap: %v", err)
	}
}

func TestTruncatedPixelsAllocateNothing(t *testing.T) {
	data := depthFixture(24, 2, 2).bytes(t)
	// 8000x8000 is under the default caps; the output buffer alone would
	// be 256 MB.
	binary.LittleEndian.PutUint32(data[18:], 8000)
	binary.LittleEndian.PutUint32(data[22:], 8000)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	img, err := Decode(data, nil)
	runtime.ReadMemStats(&after)
	if img != nil || !errors.Is(err, raster.Truncated) {
		t.Fatalf("img = %v, err = %v", img != nil, err)
	}
	if n := after.TotalAlloc - before.TotalAlloc; n > 1<<20 {
		t.Fatalf("allocated %d bytes before reporting truncation", n)
	}
}

func TestDecodeTruncatedAtEveryOffset(t *testing.T) {
	for _, bitCount := range []uint16{1, 4, 8, 24, 32} {
		data := depthFixture(bitCount, 3, 3).bytes(t)
		for n := 0; n < len(data); n++ {
			img, err := Decode(data[:n], nil)
			if img != nil || !errors.Is(err, raster.Truncated) {
				t.Fatalf("%d-bit cut at %d/%d: img = %v, err = %v", bitCount, n, len(data), img != nil, err)
			}
		}
	}
}

func TestDecodeConfig(t *testing.T) {
	f := depthFixture(4, 7, 3)
	f.topDown = true
	cfg, err := DecodeConfig(f.bytes(t))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != (raster.Config{Format: raster.BMP, Width: 7, Height: 3}) {
		t.Fatalf("cfg = %+v", cfg)
	}

	h, err := ReadHeader(f.bytes(t))
	if err != nil {
		t.Fatal(err)
	}
	if !h.TopDown() || h.BitCount != 4 || h.PaletteLen() != 16 || h.Stride() != 4 {
		t.Fatalf("header = %+v", h)
	}
}

func TestMatchesXImage(t *testing.T) {
	for _, bitCount := range []uint16{8, 24} {
		f := depthFixture(bitCount, 9, 5)
		data := f.bytes(t)
		ours, err := DecodeImage(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("%d-bit: DecodeImage: %v", bitCount, err)
		}
		theirs, err := xbmp.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("%d-bit: x/image/bmp: %v", bitCount, err)
		}
		if ours.Bounds() != theirs.Bounds() {
			t.Fatalf("bounds %v vs %v", ours.Bounds(), theirs.Bounds())
		}
		b := ours.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r0, g0, b0, a0 := ours.At(x, y).RGBA()
				r1, g1, b1, a1 := theirs.At(x, y).RGBA()
				if r0 != r1 || g0 != g1 || b0 != b1 || a0 != a1 {
					t.Fatalf("%d-bit pixel (%d,%d) differs", bitCount, x, y)
				}
			}
		}
	}
}

func FuzzDecode(f *testing.F) {
	for _, bitCount := range []uint16{1, 4, 8, 24, 32} {
		f.Add(depthFixture(bitCount, 5, 3).bytes(f))
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		img, err := Decode(data, &Options{Limits: raster.Limits{MaxPixels: 1 << 20}})
		if err != nil {
			if img != nil {
				t.Fatal("image returned alongside error")
			}
			return
		}
		if len(img.Pix) != img.Width*img.Height*4 {
			t.Fatalf("len(Pix) = %d for %dx%d", len(img.Pix), img.Width, img.Height)
		}
	})
}
