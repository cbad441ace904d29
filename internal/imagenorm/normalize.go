// Package imagenorm canonicalizes arbitrary input images into the
// single-channel, 8-bit form the recognition engine expects.
package imagenorm

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"

	"github.com/billbox-app/invoice-ocr/internal/common"
)

// Minimum spatial dimensions the recognition engine can work with.
// Smaller inputs are upscaled, never cropped.
const (
	MinWidth  = 20
	MinHeight = 20
)

// Normalize converts img into a single-channel 8-bit buffer of at least
// MinWidth x MinHeight. Multi-channel buffers are reduced to luminance and
// deeper pixel formats are rescaled to the 0..255 range through the Gray
// color model. The only failure is common.ErrInvalidImage, raised when the
// buffer is empty or lacks two spatial dimensions.
func Normalize(img image.Image) (*image.Gray, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", common.ErrInvalidImage)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty bounds %v", common.ErrInvalidImage, b)
	}

	gray := toGray(img)

	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w >= MinWidth && h >= MinHeight {
		return gray, nil
	}

	// Upscale by the larger of the two required factors so both dimensions
	// clear the minimum while the aspect ratio is preserved.
	scaleW, scaleH := 1.0, 1.0
	if w < MinWidth {
		scaleW = float64(MinWidth) / float64(w)
	}
	if h < MinHeight {
		scaleH = float64(MinHeight) / float64(h)
	}
	scale := scaleW
	if scaleH > scale {
		scale = scaleH
	}
	resized := imaging.Resize(gray, int(float64(w)*scale+0.5), int(float64(h)*scale+0.5), imaging.CatmullRom)
	return toGray(resized), nil
}

// FromBytes decodes an encoded image (PNG, JPEG, TIFF, BMP, GIF) and
// normalizes it.
func FromBytes(data []byte) (*image.Gray, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", common.ErrInvalidImage)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", common.ErrInvalidImage, err)
	}
	return Normalize(img)
}

// OpenFile loads an image from disk (honoring EXIF orientation) and
// normalizes it.
func OpenFile(path string) (*image.Gray, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	return Normalize(img)
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}
