package preview

import (
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"sync"

	"github.com/deepteams/webp"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format is an output encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
	WebP Format = "webp"
)

const DefaultQuality = 85

var contentTypes = map[Format]string{
	PNG:  "image/png",
	JPEG: "image/jpeg",
	BMP:  "image/bmp",
	TIFF: "image/tiff",
	WebP: "image/webp",
}

// ParseFormat accepts a format name or common file extension.
func ParseFormat(s string) (Format, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	switch s {
	case "jpg":
		return JPEG, nil
	case "tif":
		return TIFF, nil
	}
	if _, ok := contentTypes[Format(s)]; ok {
		return Format(s), nil
	}
	return "", errors.Errorf("unsupported output format %q", s)
}

func (f Format) ContentType() string { return contentTypes[f] }

// Ext is the file extension, without the dot.
func (f Format) Ext() string { return string(f) }

// Options control how a preview is rendered.
type Options struct {
	Format Format
	// Quality applies to JPEG and WebP, 1 to 100. Zero means
	// DefaultQuality. WebP at 100 is encoded lossless.
	Quality   int
	MaxWidth  int
	MaxHeight int
}

func (o Options) quality() int {
	if o.Quality <= 0 {
		return DefaultQuality
	}
	return min(o.Quality, 100)
}

// Render fits img to the options' bounds and encodes it.
func Render(w io.Writer, img image.Image, opts Options) error {
	return Encode(w, Fit(img, opts.MaxWidth, opts.MaxHeight), opts)
}

// Encode writes img in opts.Format. It does not resize.
func Encode(w io.Writer, img image.Image, opts Options) error {
	var err error
	switch opts.Format {
	case PNG, "":
		enc := png.Encoder{
			CompressionLevel: png.BestSpeed,
			BufferPool:       pngPool,
		}
		err = enc.Encode(w, img)
	case JPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: opts.quality()})
	case BMP:
		err = bmp.Encode(w, img)
	case TIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case WebP:
		wopts := webp.DefaultOptions()
		if q := opts.quality(); q == 100 {
			wopts.Lossless = true
		} else {
			wopts.Quality = float32(q)
		}
		err = webp.Encode(w, img, wopts)
	default:
		return errors.Errorf("unsupported output format %q", opts.Format)
	}
	return errors.Wrapf(err, "failed encoding %s preview", opts.Format)
}

type pngEncoderBufferPool struct {
	pool sync.Pool
}

func (p *pngEncoderBufferPool) Get() *png.EncoderBuffer {
	return p.pool.Get().(*png.EncoderBuffer)
}

func (p *pngEncoderBufferPool) Put(buf *png.EncoderBuffer) {
	p.pool.Put(buf)
}

var pngPool = &pngEncoderBufferPool{
	pool: sync.Pool{
		New: func() any {
			return &png.EncoderBuffer{}
		},
	},
}
