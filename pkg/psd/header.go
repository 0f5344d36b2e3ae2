package psd

import (
	"fmt"

	"github.com/chocolatkey/rasterpreview/pkg/cursor"
	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

// Color modes
const (
	ModeBitmap       = 0
	ModeGrayscale    = 1
	ModeIndexed      = 2
	ModeRGB          = 3
	ModeCMYK         = 4
	ModeMultichannel = 7
	ModeDuotone      = 8
	ModeLab          = 9
)

var modeNames = map[uint16]string{
	ModeBitmap:       "Bitmap",
	ModeGrayscale:    "Grayscale",
	ModeIndexed:      "Indexed",
	ModeRGB:          "RGB",
	ModeCMYK:         "CMYK",
	ModeMultichannel: "Multichannel",
	ModeDuotone:      "Duotone",
	ModeLab:          "Lab",
}

const maxChannels = 56

// Header is the fixed 26-byte file header.
type Header struct {
	Version  uint16
	Channels uint16
	Height   uint32
	Width    uint32
	Depth    uint16
	Mode     uint16
}

// ModeName returns the human-readable color mode name.
func (h *Header) ModeName() string {
	if name, ok := modeNames[h.Mode]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", h.Mode)
}

// colorChannels is the number of planes the color mode itself needs.
func (h *Header) colorChannels() int {
	if h.Mode == ModeRGB {
		return 3
	}
	return 1
}

func (h *Header) hasAlpha() bool { return int(h.Channels) > h.colorChannels() }

func (h *Header) bytesPerSample() int { return int(h.Depth) / 8 }

func errorf(k raster.Kind, format string, args ...interface{}) error {
	return raster.Errorf(raster.PSD, k, format, args...)
}

func readHeader(c *cursor.Reader) (*Header, error) {
	ok, err := c.Tag("8BPS")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errorf(raster.BadSignature, "missing 8BPS signature")
	}

	var h Header
	if h.Version, err = c.U16(); err != nil {
		return nil, err
	}
	// Reserved, must be zero. Not checked.
	if err = c.Skip(6); err != nil {
		return nil, err
	}
	if h.Channels, err = c.U16(); err != nil {
		return nil, err
	}
	if h.Height, err = c.U32(); err != nil {
		return nil, err
	}
	if h.Width, err = c.U32(); err != nil {
		return nil, err
	}
	if h.Depth, err = c.U16(); err != nil {
		return nil, err
	}
	if h.Mode, err = c.U16(); err != nil {
		return nil, err
	}

	if h.Version != 1 {
		return nil, errorf(raster.UnsupportedVariant, "version %d, only 1 (PSD) is supported", h.Version)
	}
	if h.Depth != 8 && h.Depth != 16 {
		return nil, errorf(raster.UnsupportedDepth, "%d bits per channel", h.Depth)
	}
	if h.Mode != ModeGrayscale && h.Mode != ModeRGB {
		return nil, errorf(raster.UnsupportedColorMode, "%s", h.ModeName())
	}
	if int(h.Channels) < h.colorChannels() || h.Channels > maxChannels {
		return nil, errorf(raster.UnsupportedVariant, "%d channels for %s", h.Channels, h.ModeName())
	}
	if h.Width == 0 || h.Height == 0 {
		return nil, errorf(raster.UnsupportedVariant, "empty canvas %dx%d", h.Width, h.Height)
	}
	return &h, nil
}

// skipSection skips a u32 length-prefixed section.
func skipSection(c *cursor.Reader) error {
	_, err := c.LengthPrefixed()
	return err
}
