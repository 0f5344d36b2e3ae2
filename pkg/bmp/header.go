package bmp

import (
	"encoding/binary"
	"image/color"

	"github.com/chocolatkey/rasterpreview/pkg/cursor"
	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

const (
	fileHeaderLen = 14
	infoHeaderLen = 40
)

// Compression values from the BITMAPINFOHEADER.
const (
	biRGB       = 0
	biRLE8      = 1
	biRLE4      = 2
	biBitfields = 3
	biJPEG      = 4
	biPNG       = 5
)

var compressionNames = map[uint32]string{
	biRLE8:      "RLE8",
	biRLE4:      "RLE4",
	biBitfields: "BITFIELDS",
	biJPEG:      "JPEG",
	biPNG:       "PNG",
}

// Header is the file header plus BITMAPINFOHEADER.
type Header struct {
	FileSize    uint32
	DataOffset  uint32
	HeaderSize  uint32
	Width       int32
	Height      int32 // Negative for top-down rows
	Planes      uint16
	BitCount    uint16
	Compression uint32
	ColorsUsed  uint32
}

func (h *Header) TopDown() bool { return h.Height < 0 }

// Rows is the absolute row count.
func (h *Header) Rows() int {
	if h.Height < 0 {
		return -int(h.Height)
	}
	return int(h.Height)
}

// Stride is the padded length in bytes of one stored row.
func (h *Header) Stride() int {
	return ((int(h.Width)*int(h.BitCount) + 31) / 32) * 4
}

// PaletteLen is the number of palette entries stored after the header.
func (h *Header) PaletteLen() int {
	if h.BitCount > 8 {
		return 0
	}
	if h.ColorsUsed > 0 {
		return int(h.ColorsUsed)
	}
	return 1 << h.BitCount
}

func errorf(k raster.Kind, format string, args ...interface{}) error {
	return raster.Errorf(raster.BMP, k, format, args...)
}

func readHeader(c *cursor.Reader) (*Header, error) {
	var h Header
	ok, err := c.Tag("BM")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errorf(raster.BadSignature, "missing BM signature")
	}
	if h.FileSize, err = c.U32(); err != nil {
		return nil, err
	}
	if err = c.Skip(4); err != nil {
		return nil, err
	}
	if h.DataOffset, err = c.U32(); err != nil {
		return nil, err
	}

	if h.HeaderSize, err = c.U32(); err != nil {
		return nil, err
	}
	if h.HeaderSize != infoHeaderLen {
		return nil, errorf(raster.UnsupportedVariant, "DIB header size %d, only BITMAPINFOHEADER (40) is supported", h.HeaderSize)
	}
	if h.Width, err = c.I32(); err != nil {
		return nil, err
	}
	if h.Height, err = c.I32(); err != nil {
		return nil, err
	}
	if h.Width < 0 {
		return nil, errorf(raster.UnsupportedVariant, "negative width %d", h.Width)
	}
	if h.Height == -1<<31 {
		return nil, errorf(raster.UnsupportedVariant, "height %d", h.Height)
	}
	if h.Planes, err = c.U16(); err != nil {
		return nil, err
	}
	if h.Planes != 1 {
		return nil, errorf(raster.UnsupportedVariant, "%d planes", h.Planes)
	}
	if h.BitCount, err = c.U16(); err != nil {
		return nil, err
	}
	switch h.BitCount {
	case 1, 4, 8, 24, 32:
	default:
		return nil, errorf(raster.UnsupportedDepth, "%d bits per pixel", h.BitCount)
	}
	if h.Compression, err = c.U32(); err != nil {
		return nil, err
	}
	if h.Compression != biRGB {
		name, ok := compressionNames[h.Compression]
		if !ok {
			return nil, errorf(raster.UnsupportedCompression, "compression %d", h.Compression)
		}
		return nil, errorf(raster.UnsupportedCompression, "%s", name)
	}

	// imageSize, xPelsPerMeter, yPelsPerMeter
	if err = c.Skip(12); err != nil {
		return nil, err
	}
	if h.ColorsUsed, err = c.U32(); err != nil {
		return nil, err
	}
	// colorsImportant
	if err = c.Skip(4); err != nil {
		return nil, err
	}
	if h.BitCount <= 8 && h.ColorsUsed > 1<<h.BitCount {
		return nil, errorf(raster.UnsupportedVariant, "%d palette entries for %d-bit pixels", h.ColorsUsed, h.BitCount)
	}
	if end := fileHeaderLen + infoHeaderLen + 4*h.PaletteLen(); int64(h.DataOffset) < int64(end) {
		return nil, errorf(raster.Malformed, "pixel data at offset %d overlaps the headers ending at %d", h.DataOffset, end)
	}
	return &h, nil
}

// readPalette reads the B,G,R,reserved quads that follow the header. The
// reserved byte is ignored.
func readPalette(c *cursor.Reader, n int) ([]color.RGBA, error) {
	quads, err := c.Bytes(n * 4)
	if err != nil {
		return nil, err
	}
	pal := make([]color.RGBA, n)
	for i := range pal {
		q := quads[i*4 : i*4+4]
		pal[i] = color.RGBA{R: q[2], G: q[1], B: q[0], A: 0xff}
	}
	return pal, nil
}

func newReader(data []byte) *cursor.Reader {
	return cursor.New(data, binary.LittleEndian)
}
