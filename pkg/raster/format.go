package raster

type Format string

const (
	Unknown Format = ""
	BMP     Format = "bmp"  // Windows bitmap, BITMAPINFOHEADER only
	PSD     Format = "psd"  // Photoshop document, flattened composite or thumbnail
	JPEG    Format = "jpeg" // Embedded PSD thumbnails
)

func (f Format) String() string {
	if f == Unknown {
		return "unknown"
	}
	return string(f)
}
