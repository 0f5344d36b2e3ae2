package preview

import (
	"bytes"
	"encoding/json"
	"image"

	"github.com/chocolatkey/rasterpreview"
	"github.com/chocolatkey/rasterpreview/pkg/bmp"
	"github.com/chocolatkey/rasterpreview/pkg/psd"
	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

// Info describes a source file.
type Info struct {
	Key    Key
	Format string // raster.Format for BMP and PSD, the image package's name otherwise
	Width  int
	Height int
	Detail interface{} // Has to be JSON serializable
}

// FromConfig builds an Info from a decoder's header-only result.
func FromConfig(key Key, cfg raster.Config) Info {
	return Info{Key: key, Format: string(cfg.Format), Width: cfg.Width, Height: cfg.Height}
}

func (i Info) MarshalJSON() ([]byte, error) {
	result := make(map[string]interface{})
	result["format"] = i.Format
	result["width"] = i.Width
	result["height"] = i.Height

	if !i.Key.IsZero() {
		result["key"] = i.Key.String()
	}

	if i.Detail != nil {
		result["detail"] = i.Detail
	}

	return json.Marshal(result)
}

// Describe reads the headers of a BMP or PSD file, or of any format
// registered with the image package, without decoding pixels.
func Describe(data []byte) (Info, error) {
	key := KeyOf(data)
	switch rasterpreview.Sniff(data) {
	case raster.BMP:
		h, err := bmp.ReadHeader(data)
		if err != nil {
			return Info{}, err
		}
		info := Info{Key: key, Format: string(raster.BMP), Width: int(h.Width), Height: h.Rows()}
		info.Detail = map[string]interface{}{
			"bit_count":   h.BitCount,
			"top_down":    h.TopDown(),
			"colors_used": h.PaletteLen(),
		}
		return info, nil
	case raster.PSD:
		h, err := psd.ReadHeader(data)
		if err != nil {
			return Info{}, err
		}
		resources, err := psd.Resources(data)
		if err != nil {
			return Info{}, err
		}
		ids := make([]uint16, len(resources))
		for i, res := range resources {
			ids[i] = res.ID
		}
		info := Info{Key: key, Format: string(raster.PSD), Width: int(h.Width), Height: int(h.Height)}
		info.Detail = map[string]interface{}{
			"channels":  h.Channels,
			"depth":     h.Depth,
			"mode":      h.ModeName(),
			"resources": ids,
		}
		return info, nil
	}
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, raster.Wrap(raster.Unknown, raster.BadSignature, err, "no decoder")
	}
	return FromConfig(key, raster.Config{Format: raster.Format(name), Width: cfg.Width, Height: cfg.Height}), nil
}
