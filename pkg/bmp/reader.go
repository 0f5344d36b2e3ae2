// Package bmp decodes uncompressed Windows bitmaps with a BITMAPINFOHEADER
// at 1, 4, 8, 24 and 32 bits per pixel into RGBA8.
package bmp

import (
	"bytes"
	"image"
	"image/color"
	"io"

	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

type Options struct {
	Limits raster.Limits
}

func (o *Options) limits() raster.Limits {
	if o == nil {
		return raster.DefaultLimits()
	}
	return o.Limits
}

// Decode decodes a complete BMP file held in data. opts may be nil.
// On error the returned image is always nil.
func Decode(data []byte, opts *Options) (*raster.Image, error) {
	img, err := decode(data, opts)
	if err != nil {
		return nil, raster.WithFormat(raster.BMP, err)
	}
	return img, nil
}

// DecodeConfig parses only the headers.
func DecodeConfig(data []byte) (raster.Config, error) {
	h, err := readHeader(newReader(data))
	if err != nil {
		return raster.Config{}, raster.WithFormat(raster.BMP, err)
	}
	return raster.Config{Format: raster.BMP, Width: int(h.Width), Height: h.Rows()}, nil
}

// ReadHeader parses and validates the file and info headers.
func ReadHeader(data []byte) (*Header, error) {
	h, err := readHeader(newReader(data))
	if err != nil {
		return nil, raster.WithFormat(raster.BMP, err)
	}
	return h, nil
}

func decode(data []byte, opts *Options) (*raster.Image, error) {
	c := newReader(data)
	h, err := readHeader(c)
	if err != nil {
		return nil, err
	}
	width, height := int(h.Width), h.Rows()
	limits := opts.limits()
	if _, err = limits.Check(raster.BMP, uint64(width), uint64(height)); err != nil {
		return nil, err
	}

	var pal []color.RGBA
	if h.BitCount <= 8 {
		if pal, err = readPalette(c, h.PaletteLen()); err != nil {
			return nil, err
		}
	}
	if width == 0 || height == 0 {
		return raster.New(raster.BMP, width, height, limits)
	}

	if err = c.Seek(int(h.DataOffset)); err != nil {
		return nil, err
	}
	stride := h.Stride()
	pixels, err := c.Bytes(stride * height)
	if err != nil {
		return nil, err
	}
	img, err := raster.New(raster.BMP, width, height, limits)
	if err != nil {
		return nil, err
	}

	unpack := rowUnpacker(h.BitCount)
	for y := 0; y < height; y++ {
		src := y
		if !h.TopDown() {
			src = height - 1 - y
		}
		row := pixels[src*stride : (src+1)*stride]
		dst := img.Pix[y*width*4 : (y+1)*width*4]
		if err = unpack(row, dst, pal); err != nil {
			return nil, err
		}
	}
	return img, nil
}

type unpackFunc func(row, dst []byte, pal []color.RGBA) error

func rowUnpacker(bitCount uint16) unpackFunc {
	switch bitCount {
	case 24:
		return unpack24
	case 32:
		return unpack32
	}
	return func(row, dst []byte, pal []color.RGBA) error {
		return unpackIndexed(uint(bitCount), row, dst, pal)
	}
}

// unpackIndexed handles 1, 4 and 8 bit rows. Sub-byte indices are packed
// most significant bits first.
func unpackIndexed(bits uint, row, dst []byte, pal []color.RGBA) error {
	perByte := int(8 / bits)
	mask := byte(1<<bits - 1)
	for x := 0; x < len(dst)/4; x++ {
		shift := 8 - bits*uint(x%perByte+1)
		idx := int(row[x/perByte] >> shift & mask)
		if idx >= len(pal) {
			return errorf(raster.Malformed, "palette index %d out of %d entries", idx, len(pal))
		}
		p := pal[idx]
		d := dst[x*4 : x*4+4]
		d[0], d[1], d[2], d[3] = p.R, p.G, p.B, p.A
	}
	return nil
}

func unpack24(row, dst []byte, _ []color.RGBA) error {
	for x := 0; x < len(dst)/4; x++ {
		s := row[x*3 : x*3+3]
		d := dst[x*4 : x*4+4]
		d[0], d[1], d[2], d[3] = s[2], s[1], s[0], 0xff
	}
	return nil
}

func unpack32(row, dst []byte, _ []color.RGBA) error {
	for x := 0; x < len(dst)/4; x++ {
		s := row[x*4 : x*4+4]
		d := dst[x*4 : x*4+4]
		d[0], d[1], d[2], d[3] = s[2], s[1], s[0], s[3]
	}
	return nil
}

// DecodeImage adapts Decode to the image.Decode signature.
func DecodeImage(r io.Reader) (image.Image, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data, nil)
	if err != nil {
		return nil, err
	}
	return img.NRGBA(), nil
}

// DecodeImageConfig adapts DecodeConfig to the image.DecodeConfig signature.
func DecodeImageConfig(r io.Reader) (image.Config, error) {
	data, err := readAll(r)
	if err != nil {
		return image.Config{}, err
	}
	cfg, err := DecodeConfig(data)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: color.NRGBAModel, Width: cfg.Width, Height: cfg.Height}, nil
}

func readAll(r io.Reader) ([]byte, error) {
	if br, ok := r.(*bytes.Reader); ok {
		data := make([]byte, br.Len())
		_, err := io.ReadFull(br, data)
		return data, err
	}
	return io.ReadAll(r)
}
