package analysis

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	// Decoders for non-JPEG uploads.
	_ "image/gif"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageBytes is the upper bound for the encoded image sent upstream.
	MaxImageBytes = 1 << 20

	maxJPEGQuality  = 100
	minJPEGQuality  = 10
	jpegQualityStep = 10
)

// OptimizedImage is an upload re-encoded to fit the size budget.
type OptimizedImage struct {
	Data    []byte
	Quality int // JPEG quality 10..100
}

// DataURL returns the image as a base64 data URI.
func (o *OptimizedImage) DataURL() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(o.Data)
}

// OptimizeImage decodes data, applies the EXIF orientation, and re-encodes it as
// JPEG at the highest quality (stepping down by 10 from 100) whose output fits
// maxBytes. At the quality floor the encoding is returned whatever its size.
func OptimizeImage(data []byte, maxBytes int) (*OptimizedImage, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if format == "jpeg" {
		if o := imageOrientation(data); o != 1 {
			img = correctOrientation(img, o)
		}
	}
	return encodeWithinBudget(img, maxBytes)
}

func encodeWithinBudget(img image.Image, maxBytes int) (*OptimizedImage, error) {
	var buf bytes.Buffer
	for q := maxJPEGQuality; ; q -= jpegQualityStep {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("failed to encode image at quality %d: %w", q, err)
		}
		if buf.Len() <= maxBytes || q-jpegQualityStep < minJPEGQuality {
			out := make([]byte, buf.Len())
			copy(out, buf.Bytes())
			return &OptimizedImage{Data: out, Quality: q}, nil
		}
	}
}

// imageOrientation reads the EXIF orientation tag, defaulting to 1.
func imageOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// correctOrientation maps pixels so the image displays upright.
// Orientations follow the EXIF 2.3 table; 1 and unknown values are returned as is.
func correctOrientation(img image.Image, orientation int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	var mapXY func(x, y int) (int, int)
	switch orientation {
	case 2: // mirror horizontal
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		mapXY = func(x, y int) (int, int) { return w - 1 - x, y }
	case 3: // rotate 180
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		mapXY = func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }
	case 4: // mirror vertical
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		mapXY = func(x, y int) (int, int) { return x, h - 1 - y }
	case 5: // transpose
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		mapXY = func(x, y int) (int, int) { return y, x }
	case 6: // rotate 90 clockwise
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		mapXY = func(x, y int) (int, int) { return h - 1 - y, x }
	case 7: // transverse
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		mapXY = func(x, y int) (int, int) { return h - 1 - y, w - 1 - x }
	case 8: // rotate 90 counter-clockwise
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		mapXY = func(x, y int) (int, int) { return y, w - 1 - x }
	default:
		return img
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := mapXY(x, y)
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
