package psd

import "github.com/chocolatkey/rasterpreview/pkg/raster"

// unpackBits expands one PackBits row from src into dst, filling dst
// exactly. A control byte c below 128 copies c+1 literal bytes, c above 128
// repeats the next byte 257-c times, and 128 is a no-op.
func unpackBits(dst, src []byte) error {
	d, s := 0, 0
	for d < len(dst) {
		if s >= len(src) {
			return errorf(raster.Truncated, "row ends after %d of %d bytes", d, len(dst))
		}
		c := src[s]
		s++
		switch {
		case c < 128:
			n := int(c) + 1
			if s+n > len(src) {
				return errorf(raster.Truncated, "literal run of %d with %d bytes left", n, len(src)-s)
			}
			if d+n > len(dst) {
				return errorf(raster.Malformed, "literal run of %d overflows row at %d/%d", n, d, len(dst))
			}
			copy(dst[d:], src[s:s+n])
			s += n
			d += n
		case c > 128:
			n := 257 - int(c)
			if s >= len(src) {
				return errorf(raster.Truncated, "repeat run of %d missing its byte", n)
			}
			if d+n > len(dst) {
				return errorf(raster.Malformed, "repeat run of %d overflows row at %d/%d", n, d, len(dst))
			}
			v := src[s]
			s++
			for end := d + n; d < end; d++ {
				dst[d] = v
			}
		}
	}
	for s < len(src) && src[s] == 128 {
		s++
	}
	if s != len(src) {
		return errorf(raster.Malformed, "%d unused bytes after row", len(src)-s)
	}
	return nil
}
