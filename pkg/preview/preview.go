package preview

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Fit scales img down to fit within maxWidth x maxHeight, keeping its
// aspect ratio. A zero bound is unconstrained. Images that already fit are
// returned as is; Fit never upscales.
func Fit(img image.Image, maxWidth, maxHeight int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return img
	}
	scale := 1.0
	if maxWidth > 0 && w > maxWidth {
		scale = float64(maxWidth) / float64(w)
	}
	if maxHeight > 0 && h > maxHeight {
		scale = math.Min(scale, float64(maxHeight)/float64(h))
	}
	if scale >= 1 {
		return img
	}

	dw := max(1, int(math.Round(float64(w)*scale)))
	dh := max(1, int(math.Round(float64(h)*scale)))
	if maxWidth > 0 {
		dw = min(dw, maxWidth)
	}
	if maxHeight > 0 {
		dh = min(dh, maxHeight)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
