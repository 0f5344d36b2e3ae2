package psd

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"io"

	"golang.org/x/image/draw"

	"github.com/chocolatkey/rasterpreview/pkg/cursor"
	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

// JPEGDecoder decodes the JFIF payload of a thumbnail resource.
type JPEGDecoder interface {
	Decode(r io.Reader) (image.Image, error)
}

// JPEGConfigDecoder is implemented by delegates that can report a
// payload's dimensions without decoding it. The size is then checked
// against the limits before Decode runs.
type JPEGConfigDecoder interface {
	DecodeConfig(r io.Reader) (image.Config, error)
}

type stdJPEG struct{}

func (stdJPEG) Decode(r io.Reader) (image.Image, error) { return jpeg.Decode(r) }

func (stdJPEG) DecodeConfig(r io.Reader) (image.Config, error) { return jpeg.DecodeConfig(r) }

// StdJPEG delegates to image/jpeg.
var StdJPEG JPEGDecoder = stdJPEG{}

// Thumbnail resource formats.
const (
	thumbRawRGB  = 0
	thumbJPEGRGB = 1
)

type thumbnailHeader struct {
	Format         uint32
	Width          uint32
	Height         uint32
	WidthBytes     uint32 // Padded row length of the raw format
	TotalSize      uint32
	CompressedSize uint32
	BitsPerPixel   uint16
	Planes         uint16
}

func readThumbnailHeader(c *cursor.Reader) (thumbnailHeader, error) {
	var th thumbnailHeader
	fields := []*uint32{&th.Format, &th.Width, &th.Height, &th.WidthBytes, &th.TotalSize, &th.CompressedSize}
	for _, f := range fields {
		v, err := c.U32()
		if err != nil {
			return th, err
		}
		*f = v
	}
	var err error
	if th.BitsPerPixel, err = c.U16(); err != nil {
		return th, err
	}
	th.Planes, err = c.U16()
	return th, err
}

// decodeThumbnail decodes res. It reports ok=false, without error, when
// the thumbnail is in a format that should be skipped in favor of the
// composite image.
func decodeThumbnail(res *Resource, opts *Options) (img *raster.Image, ok bool, err error) {
	c := cursor.New(res.Data, binary.BigEndian)
	th, err := readThumbnailHeader(c)
	if err != nil {
		return nil, false, err
	}

	switch th.Format {
	case thumbJPEGRGB:
		img, err = decodeJPEGThumbnail(c, th, opts)
	case thumbRawRGB:
		img, err = decodeRawThumbnail(c, th, opts)
	default:
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if res.ID == ResourceThumbnailLegacy {
		swapRB(img)
	}
	return img, true, nil
}

func decodeJPEGThumbnail(c *cursor.Reader, th thumbnailHeader, opts *Options) (*raster.Image, error) {
	payload, err := c.Sub(th.CompressedSize)
	if err != nil {
		return nil, err
	}
	bin := payload.Rest()
	delegate := opts.jpeg()
	if cd, ok := delegate.(JPEGConfigDecoder); ok {
		cfg, err := cd.DecodeConfig(bytes.NewReader(bin))
		if err != nil {
			return nil, raster.Wrap(raster.PSD, raster.DelegateFailed, err, "thumbnail")
		}
		if _, err = opts.limits().Check(raster.PSD, uint64(cfg.Width), uint64(cfg.Height)); err != nil {
			return nil, err
		}
	}
	src, err := delegate.Decode(bytes.NewReader(bin))
	if err != nil {
		return nil, raster.Wrap(raster.PSD, raster.DelegateFailed, err, "thumbnail")
	}
	b := src.Bounds()
	img, err := raster.New(raster.PSD, b.Dx(), b.Dy(), opts.limits())
	if err != nil {
		return nil, err
	}
	dst := img.RGBA()
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return img, nil
}

// decodeRawThumbnail reads interleaved 24-bit RGB rows of WidthBytes each.
func decodeRawThumbnail(c *cursor.Reader, th thumbnailHeader, opts *Options) (*raster.Image, error) {
	if th.BitsPerPixel != 24 || th.Planes != 1 {
		return nil, errorf(raster.UnsupportedVariant, "raw thumbnail with %d bits and %d planes", th.BitsPerPixel, th.Planes)
	}
	if _, err := opts.limits().Check(raster.PSD, uint64(th.Width), uint64(th.Height)); err != nil {
		return nil, err
	}
	if uint64(th.WidthBytes) < 3*uint64(th.Width) {
		return nil, errorf(raster.Malformed, "thumbnail row of %d bytes for width %d", th.WidthBytes, th.Width)
	}
	stride := int(th.WidthBytes)
	bin, err := c.Bytes(stride * int(th.Height))
	if err != nil {
		return nil, err
	}
	img, err := raster.New(raster.PSD, int(th.Width), int(th.Height), opts.limits())
	if err != nil {
		return nil, err
	}
	if err = img.FillRGB(bin, stride); err != nil {
		return nil, err
	}
	return img, nil
}

func swapRB(img *raster.Image) {
	for i := 0; i+2 < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
	}
}
