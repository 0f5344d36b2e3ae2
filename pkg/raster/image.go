package raster

import (
	"image"
	"image/color"
	"math/bits"
)

// Image is a decoded RGBA8 raster with straight alpha. Pix holds
// Width*Height pixels in row-major order, four bytes each.
type Image struct {
	Width  int
	Height int
	Pix    []uint8
}

// Config is what a decoder reports from the header alone.
type Config struct {
	Format Format
	Width  int
	Height int
}

func (m *Image) At(x, y int) color.RGBA {
	i := (y*m.Width + x) * 4
	return color.RGBA{R: m.Pix[i], G: m.Pix[i+1], B: m.Pix[i+2], A: m.Pix[i+3]}
}

func (m *Image) Set(x, y int, c color.RGBA) {
	i := (y*m.Width + x) * 4
	m.Pix[i], m.Pix[i+1], m.Pix[i+2], m.Pix[i+3] = c.R, c.G, c.B, c.A
}

// RGBA wraps m without copying. The two share Pix.
//
// Decoded alpha is straight, not premultiplied; for images with partial
// transparency use NRGBA instead.
func (m *Image) RGBA() *image.RGBA {
	return &image.RGBA{Pix: m.Pix, Stride: m.Width * 4, Rect: image.Rect(0, 0, m.Width, m.Height)}
}

// NRGBA wraps m without copying, keeping the straight alpha semantics of
// the decoders.
func (m *Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{Pix: m.Pix, Stride: m.Width * 4, Rect: image.Rect(0, 0, m.Width, m.Height)}
}

// FillRGB fills m from interleaved 8-bit RGB rows that start stride
// bytes apart. Every pixel becomes opaque.
func (m *Image) FillRGB(bin []byte, stride int) error {
	if m.Width == 0 || m.Height == 0 {
		return nil
	}
	if stride < m.Width*3 {
		return Errorf(Unknown, Malformed, "RGB row of %d bytes for width %d", stride, m.Width)
	}
	if need := stride*(m.Height-1) + m.Width*3; len(bin) < need {
		return Errorf(Unknown, Truncated, "RGB data of %d bytes, need %d", len(bin), need)
	}
	for y := 0; y < m.Height; y++ {
		i := y * stride
		for x := 0; x < m.Width; x++ {
			m.Set(x, y, color.RGBA{
				R: bin[i],
				G: bin[i+1],
				B: bin[i+2],
				A: 255,
			})
			i += 3
		}
	}
	return nil
}

const (
	DefaultMaxDimension = 32768
	DefaultMaxPixels    = 64 * 1024 * 1024
)

// Limits bound the output buffer a hostile header can make a decoder
// allocate. Zero fields fall back to the defaults.
type Limits struct {
	MaxDimension int
	MaxPixels    int64
}

func DefaultLimits() Limits {
	return Limits{MaxDimension: DefaultMaxDimension, MaxPixels: DefaultMaxPixels}
}

func (l Limits) normalized() Limits {
	if l.MaxDimension <= 0 {
		l.MaxDimension = DefaultMaxDimension
	}
	if l.MaxPixels <= 0 {
		l.MaxPixels = DefaultMaxPixels
	}
	return l
}

// Check validates that a width x height RGBA8 buffer neither overflows nor
// exceeds l. It returns the buffer length in bytes.
func (l Limits) Check(f Format, width, height uint64) (int, error) {
	l = l.normalized()
	if width > uint64(l.MaxDimension) || height > uint64(l.MaxDimension) {
		return 0, Errorf(f, SizeOverflow, "%dx%d exceeds dimension cap %d", width, height, l.MaxDimension)
	}
	hi, pixels := bits.Mul64(width, height)
	if hi != 0 || pixels > uint64(l.MaxPixels) {
		return 0, Errorf(f, SizeOverflow, "%dx%d exceeds pixel cap %d", width, height, l.MaxPixels)
	}
	hi, size := bits.Mul64(pixels, 4)
	if hi != 0 || size > uint64(maxInt) {
		return 0, Errorf(f, SizeOverflow, "%dx%d does not fit in memory", width, height)
	}
	return int(size), nil
}

const maxInt = int(^uint(0) >> 1)

// New allocates an image after checking its size against l.
func New(f Format, width, height int, l Limits) (*Image, error) {
	if width < 0 || height < 0 {
		return nil, Errorf(f, UnsupportedVariant, "negative dimensions %dx%d", width, height)
	}
	size, err := l.Check(f, uint64(width), uint64(height))
	if err != nil {
		return nil, err
	}
	return &Image{Width: width, Height: height, Pix: make([]uint8, size)}, nil
}
