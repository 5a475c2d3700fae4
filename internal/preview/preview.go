package preview

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// DefaultMaxSide bounds the longer side of a preview when none is given.
const DefaultMaxSide = 256

// Result is a small rendering of an image file.
type Result struct {
	// Width and Height are the dimensions of the file itself.
	Width  int `json:"width"`
	Height int `json:"height"`

	// PreviewWidth and PreviewHeight are the dimensions of the encoded preview.
	PreviewWidth  int `json:"preview_width"`
	PreviewHeight int `json:"preview_height"`

	// AverageColor is the mean colour of the preview as #rrggbb.
	AverageColor string `json:"average_color"`

	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Generate loads path through cache and returns a PNG preview that fits in a
// maxSide x maxSide box. Images already inside the box are not enlarged.
// maxSide <= 0 selects DefaultMaxSide.
func Generate(cache *Cache, path string, maxSide int) (*Result, error) {
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	small := imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)

	var buf bytes.Buffer
	if err := png.Encode(&buf, small); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	return &Result{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		PreviewWidth:  small.Bounds().Dx(),
		PreviewHeight: small.Bounds().Dy(),
		AverageColor:  averageColor(small),
		ImageBase64:   base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:      "image/png",
	}, nil
}

// averageColor blends the pixels of img in linear RGB, ignoring fully
// transparent ones.
func averageColor(img *image.NRGBA) string {
	var r, g, b float64
	var n int
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px := img.NRGBAAt(x, y)
			if px.A == 0 {
				continue
			}
			lr, lg, lb := colorful.Color{
				R: float64(px.R) / 255,
				G: float64(px.G) / 255,
				B: float64(px.B) / 255,
			}.LinearRgb()
			r, g, b = r+lr, g+lg, b+lb
			n++
		}
	}
	if n == 0 {
		return ""
	}
	return colorful.LinearRgb(r/float64(n), g/float64(n), b/float64(n)).Clamped().Hex()
}
