package psd

import (
	"github.com/chocolatkey/rasterpreview/pkg/cursor"
	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

// Composite image compression methods.
const (
	CompressionRaw = 0
	CompressionRLE = 1
	CompressionZIP = 2
	// CompressionZIPPrediction is ZIP over horizontally delta-encoded rows.
	CompressionZIPPrediction = 3
)

// readChannels reads the merged image data that follows the layer and mask
// section and returns the first `want` planes, each width*height*(depth/8)
// bytes. The remaining planes must be present but are not expanded.
func readChannels(c *cursor.Reader, h *Header, want int) ([][]byte, error) {
	compression, err := c.U16()
	if err != nil {
		return nil, err
	}
	switch compression {
	case CompressionRaw:
		return readRawChannels(c, h, want)
	case CompressionRLE:
		return readRLEChannels(c, h, want)
	}
	return nil, errorf(raster.UnsupportedCompression, "composite compression %d", compression)
}

func planeLen(h *Header) int {
	return int(h.Width) * int(h.Height) * h.bytesPerSample()
}

func readRawChannels(c *cursor.Reader, h *Header, want int) ([][]byte, error) {
	n := planeLen(h)
	all, err := c.Bytes(n * int(h.Channels))
	if err != nil {
		return nil, err
	}
	planes := make([][]byte, want)
	for i := range planes {
		planes[i] = all[i*n : (i+1)*n]
	}
	return planes, nil
}

// readRLEChannels reads a table of Channels*Height u16 row byte counts,
// channel-major, followed by the PackBits rows in the same order.
func readRLEChannels(c *cursor.Reader, h *Header, want int) ([][]byte, error) {
	rows := int(h.Height)
	table, err := c.Bytes(2 * rows * int(h.Channels))
	if err != nil {
		return nil, err
	}
	counts := make([]int, rows*int(h.Channels))
	total := 0
	for i := range counts {
		counts[i] = int(table[2*i])<<8 | int(table[2*i+1])
		total += counts[i]
	}
	data, err := c.Bytes(total)
	if err != nil {
		return nil, err
	}

	// A PackBits run of two or more bytes expands to at most 128.
	rowLen := int(h.Width) * h.bytesPerSample()
	for i, n := range counts[:rows*want] {
		if 64*n < rowLen {
			return nil, errorf(raster.Truncated, "row %d of %d bytes cannot fill %d", i, n, rowLen)
		}
	}
	planes := make([][]byte, want)
	off := 0
	for ch := range planes {
		plane := make([]byte, planeLen(h))
		for y := 0; y < rows; y++ {
			n := counts[ch*rows+y]
			if err := unpackBits(plane[y*rowLen:(y+1)*rowLen], data[off:off+n]); err != nil {
				return nil, err
			}
			off += n
		}
		planes[ch] = plane
	}
	return planes, nil
}

// compose interleaves planes into img. For 16-bit samples only the high
// byte of each big-endian sample is kept.
func compose(h *Header, planes [][]byte, img *raster.Image) {
	step := h.bytesPerSample()
	r, g, b := planes[0], planes[0], planes[0]
	if h.Mode == ModeRGB {
		g, b = planes[1], planes[2]
	}
	var a []byte
	if len(planes) > h.colorChannels() {
		a = planes[h.colorChannels()]
	}

	n := img.Width * img.Height
	for i := 0; i < n; i++ {
		s := i * step
		p := img.Pix[i*4 : i*4+4]
		p[0], p[1], p[2], p[3] = r[s], g[s], b[s], 0xff
		if a != nil {
			p[3] = a[s]
		}
	}
}

func readComposite(c *cursor.Reader, h *Header, opts *Options) (*raster.Image, error) {
	limits := opts.limits()
	if _, err := limits.Check(raster.PSD, uint64(h.Width), uint64(h.Height)); err != nil {
		return nil, err
	}
	want := h.colorChannels()
	if h.hasAlpha() {
		want++
	}
	planes, err := readChannels(c, h, want)
	if err != nil {
		return nil, err
	}
	img, err := raster.New(raster.PSD, int(h.Width), int(h.Height), limits)
	if err != nil {
		return nil, err
	}
	compose(h, planes, img)
	return img, nil
}
