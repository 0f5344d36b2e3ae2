package psd

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

// packBits is the encoder counterpart of unpackBits. It emits repeat runs
// for two or more equal bytes and literal runs otherwise.
func packBits(src []byte) []byte {
	var out []byte
	for i := 0; i < len(src); {
		j := i + 1
		for j < len(src) && j-i < 128 && src[j] == src[i] {
			j++
		}
		if j-i >= 2 {
			out = append(out, byte(257-(j-i)), src[i])
			i = j
			continue
		}
		j = i + 1
		for j < len(src) && j-i < 128 && !(j+1 < len(src) && src[j] == src[j+1]) {
			j++
		}
		out = append(out, byte(j-i-1))
		out = append(out, src[i:j]...)
		i = j
	}
	return out
}

// psdFixture describes a synthetic document. planes hold raw samples,
// big-endian for 16-bit depth.
type psdFixture struct {
	width, height int
	depth         uint16
	mode          uint16
	version       uint16
	channels      int // Overrides len(planes) in the header when set
	compression   uint16
	planes        [][]byte
	resources     []Resource
	layerData     []byte
}

func (f psdFixture) bytes(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	write := func(v interface{}) {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			t.Fatalf("binary.Write: %v", err)
		}
	}
	version := f.version
	if version == 0 {
		version = 1
	}
	channels := f.channels
	if channels == 0 {
		channels = len(f.planes)
	}

	buf.WriteString("8BPS")
	write(version)
	buf.Write(make([]byte, 6))
	write(uint16(channels))
	write(uint32(f.height))
	write(uint32(f.width))
	write(f.depth)
	write(f.mode)

	write(uint32(0)) // color mode data

	section := resourceSection(f.resources)
	write(uint32(len(section)))
	buf.Write(section)

	write(uint32(len(f.layerData)))
	buf.Write(f.layerData)

	write(f.compression)
	switch f.compression {
	case CompressionRLE:
		rowLen := f.width * int(f.depth) / 8
		var rows [][]byte
		for _, p := range f.planes {
			for y := 0; y < f.height; y++ {
				rows = append(rows, packBits(p[y*rowLen:(y+1)*rowLen]))
			}
		}
		for _, r := range rows {
			write(uint16(len(r)))
		}
		for _, r := range rows {
			buf.Write(r)
		}
	default:
		for _, p := range f.planes {
			buf.Write(p)
		}
	}
	return buf.Bytes()
}

func resourceSection(list []Resource) []byte {
	var buf bytes.Buffer
	for _, res := range list {
		buf.WriteString(resourceSignature)
		binary.Write(&buf, binary.BigEndian, res.ID)
		buf.WriteByte(byte(len(res.Name)))
		buf.WriteString(res.Name)
		if len(res.Name)%2 == 0 {
			buf.WriteByte(0)
		}
		binary.Write(&buf, binary.BigEndian, uint32(len(res.Data)))
		buf.Write(res.Data)
		if len(res.Data)%2 == 1 {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes()
}

// thumbnailData builds the payload of a thumbnail resource.
func thumbnailData(format uint32, width, height int, payload []byte) []byte {
	var buf bytes.Buffer
	widthBytes := (width*24 + 31) / 32 * 4
	for _, v := range []uint32{format, uint32(width), uint32(height), uint32(widthBytes),
		uint32(widthBytes * height), uint32(len(payload))} {
		binary.Write(&buf, binary.BigEndian, v)
	}
	binary.Write(&buf, binary.BigEndian, uint16(24))
	binary.Write(&buf, binary.BigEndian, uint16(1))
	buf.Write(payload)
	return buf.Bytes()
}

func jpegThumbnail(t testing.TB, width, height int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return thumbnailData(thumbJPEGRGB, width, height, buf.Bytes())
}

// rawThumbnail stores interleaved RGB rows padded to four bytes.
func rawThumbnail(width, height int, px func(x, y int) [3]byte) []byte {
	widthBytes := (width*24 + 31) / 32 * 4
	rows := make([]byte, widthBytes*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := px(x, y)
			copy(rows[y*widthBytes+x*3:], p[:])
		}
	}
	return thumbnailData(thumbRawRGB, width, height, rows)
}

// gradientPlanes returns n 8-bit planes with runs and noise so that
// PackBits produces both literal and repeat runs.
func gradientPlanes(n, width, height int) [][]byte {
	planes := make([][]byte, n)
	for ch := range planes {
		p := make([]byte, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := byte(ch*50 + y*10)
				if x%5 >= 3 {
					v = byte(x*31 + ch*7 + y)
				}
				p[y*width+x] = v
			}
		}
		planes[ch] = p
	}
	return planes
}

// widen turns 8-bit planes into 16-bit big-endian planes whose high byte
// is the original sample.
func widen(planes [][]byte) [][]byte {
	out := make([][]byte, len(planes))
	for i, p := range planes {
		w := make([]byte, len(p)*2)
		for j, v := range p {
			w[2*j] = v
			w[2*j+1] = byte(j*13) ^ v
		}
		out[i] = w
	}
	return out
}
