// Package rasterpreview decodes BMP and PSD files into RGBA8 rasters for
// previewing. The format is picked from the file signature.
package rasterpreview

import (
	"bytes"
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chocolatkey/rasterpreview/pkg/bmp"
	"github.com/chocolatkey/rasterpreview/pkg/psd"
	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

// DefaultMaxInputBytes caps the size of a single input file.
const DefaultMaxInputBytes = 256 << 20

// Sniff identifies the container from its leading bytes.
func Sniff(data []byte) raster.Format {
	switch {
	case bytes.HasPrefix(data, []byte("BM")):
		return raster.BMP
	case bytes.HasPrefix(data, []byte("8BPS")):
		return raster.PSD
	}
	return raster.Unknown
}

// Decoder dispatches to the BMP and PSD decoders. It holds no per-call
// state and is safe for concurrent use.
type Decoder struct {
	limits          raster.Limits
	jpeg            psd.JPEGDecoder
	preferComposite bool
	maxInputBytes   int
	log             logrus.FieldLogger
}

type Option func(*Decoder)

func WithLimits(l raster.Limits) Option {
	return func(d *Decoder) { d.limits = l }
}

// WithJPEG replaces the decoder used for embedded PSD thumbnails.
func WithJPEG(j psd.JPEGDecoder) Option {
	return func(d *Decoder) { d.jpeg = j }
}

func WithPreferComposite(prefer bool) Option {
	return func(d *Decoder) { d.preferComposite = prefer }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Decoder) { d.log = l }
}

// WithMaxInputBytes caps len(data). Zero or less restores the default.
func WithMaxInputBytes(n int) Option {
	return func(d *Decoder) { d.maxInputBytes = n }
}

func New(opts ...Option) *Decoder {
	d := &Decoder{
		limits: raster.DefaultLimits(),
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxInputBytes <= 0 {
		d.maxInputBytes = DefaultMaxInputBytes
	}
	return d
}

// Limits reports the size limits the decoder applies.
func (d *Decoder) Limits() raster.Limits { return d.limits }

func (d *Decoder) checkInput(data []byte) (raster.Format, error) {
	if len(data) > d.maxInputBytes {
		return raster.Unknown, raster.Errorf(raster.Unknown, raster.SizeOverflow,
			"input of %d bytes exceeds cap %d", len(data), d.maxInputBytes)
	}
	f := Sniff(data)
	if f == raster.Unknown {
		return f, raster.Errorf(raster.Unknown, raster.BadSignature, "not a BMP or PSD file")
	}
	return f, nil
}

// Decode decodes data and reports which container it was. On error the
// image is nil.
func (d *Decoder) Decode(data []byte) (*raster.Image, raster.Format, error) {
	start := time.Now()
	f, err := d.checkInput(data)
	if err != nil {
		d.log.WithField("size", len(data)).Debugln("rejected input:", err)
		return nil, f, err
	}

	var img *raster.Image
	switch f {
	case raster.BMP:
		img, err = bmp.Decode(data, &bmp.Options{Limits: d.limits})
	case raster.PSD:
		img, err = psd.Decode(data, &psd.Options{
			Limits:          d.limits,
			JPEG:            d.jpeg,
			PreferComposite: d.preferComposite,
		})
	}

	fields := logrus.Fields{"format": f, "size": len(data), "took": time.Since(start)}
	if err != nil {
		d.log.WithFields(fields).Debugln("decode failed:", err)
		return nil, f, err
	}
	fields["width"], fields["height"] = img.Width, img.Height
	d.log.WithFields(fields).Debugln("decoded")
	return img, f, nil
}

type result struct {
	img *raster.Image
	f   raster.Format
	err error
}

// DecodeContext is Decode that gives up waiting once ctx is done. The
// abandoned decode still runs to completion in the background.
func (d *Decoder) DecodeContext(ctx context.Context, data []byte) (*raster.Image, raster.Format, error) {
	if err := ctx.Err(); err != nil {
		return nil, raster.Unknown, err
	}
	done := make(chan result, 1)
	go func() {
		img, f, err := d.Decode(data)
		done <- result{img, f, err}
	}()
	select {
	case r := <-done:
		return r.img, r.f, r.err
	case <-ctx.Done():
		return nil, Sniff(data), ctx.Err()
	}
}

// DecodeConfig reports the format and canvas size without decoding pixels.
func (d *Decoder) DecodeConfig(data []byte) (raster.Config, error) {
	f, err := d.checkInput(data)
	if err != nil {
		return raster.Config{Format: f}, err
	}
	if f == raster.BMP {
		return bmp.DecodeConfig(data)
	}
	return psd.DecodeConfig(data)
}

var std = New()

// Decode decodes data with default limits.
func Decode(data []byte) (*raster.Image, raster.Format, error) {
	return std.Decode(data)
}
