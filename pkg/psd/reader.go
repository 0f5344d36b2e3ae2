// Package psd decodes the flattened image of an Adobe Photoshop document.
//
// Decoding prefers the JPEG or raw thumbnail Photoshop embeds as image
// resource 1036, falling back to the merged composite after the layer and
// mask section. Only Grayscale and RGB documents at 8 or 16 bits per channel,
// stored raw or PackBits-compressed, are supported. Layers are never
// composited.
package psd

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"io"

	"github.com/chocolatkey/rasterpreview/pkg/cursor"
	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

func init() {
	image.RegisterFormat("psd", "8BPS", DecodeImage, DecodeImageConfig)
}

type Options struct {
	Limits raster.Limits
	// JPEG decodes embedded thumbnails. Nil means StdJPEG.
	JPEG JPEGDecoder
	// PreferComposite skips the thumbnail and always decodes the full
	// resolution merged image.
	PreferComposite bool
}

func (o *Options) limits() raster.Limits {
	if o == nil {
		return raster.DefaultLimits()
	}
	return o.Limits
}

func (o *Options) jpeg() JPEGDecoder {
	if o == nil || o.JPEG == nil {
		return StdJPEG
	}
	return o.JPEG
}

func newReader(data []byte) *cursor.Reader {
	return cursor.New(data, binary.BigEndian)
}

// Decode decodes the PSD held in data. opts may be nil. On error the
// returned image is always nil.
func Decode(data []byte, opts *Options) (*raster.Image, error) {
	img, err := decode(data, opts)
	if err != nil {
		return nil, raster.WithFormat(raster.PSD, err)
	}
	return img, nil
}

func decode(data []byte, opts *Options) (*raster.Image, error) {
	c := newReader(data)
	h, err := readHeader(c)
	if err != nil {
		return nil, err
	}
	// Color mode data only matters for Indexed and Duotone.
	if err = skipSection(c); err != nil {
		return nil, err
	}
	resources, err := c.LengthPrefixed()
	if err != nil {
		return nil, err
	}

	if opts == nil || !opts.PreferComposite {
		thumb, err := findThumbnail(resources)
		if err != nil {
			return nil, err
		}
		if thumb != nil {
			img, ok, err := decodeThumbnail(thumb, opts)
			if err != nil {
				return nil, err
			}
			if ok {
				return img, nil
			}
		}
	}

	if err = skipSection(c); err != nil {
		return nil, err
	}
	return readComposite(c, h, opts)
}

// DecodeConfig parses only the file header. The reported size is the
// document's, even when Decode would return the smaller thumbnail.
func DecodeConfig(data []byte) (raster.Config, error) {
	h, err := readHeader(newReader(data))
	if err != nil {
		return raster.Config{}, raster.WithFormat(raster.PSD, err)
	}
	return raster.Config{Format: raster.PSD, Width: int(h.Width), Height: int(h.Height)}, nil
}

// ReadHeader parses and validates the file header.
func ReadHeader(data []byte) (*Header, error) {
	h, err := readHeader(newReader(data))
	if err != nil {
		return nil, raster.WithFormat(raster.PSD, err)
	}
	return h, nil
}

// Resources lists every record of the Image Resources section.
func Resources(data []byte) ([]Resource, error) {
	c := newReader(data)
	if _, err := readHeader(c); err != nil {
		return nil, raster.WithFormat(raster.PSD, err)
	}
	if err := skipSection(c); err != nil {
		return nil, raster.WithFormat(raster.PSD, err)
	}
	section, err := c.LengthPrefixed()
	if err != nil {
		return nil, raster.WithFormat(raster.PSD, err)
	}
	var list []Resource
	err = walkResources(section, func(res Resource) bool {
		list = append(list, res)
		return true
	})
	if err != nil {
		return nil, raster.WithFormat(raster.PSD, err)
	}
	return list, nil
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
	// The header is all DecodeConfig needs.
	data := make([]byte, 26)
	if _, err := io.ReadFull(r, data); err != nil {
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
