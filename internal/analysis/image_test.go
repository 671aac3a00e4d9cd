package analysis

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimizeImageFitsBudget(t *testing.T) {
	img := noiseImage(1200, 1200)
	var raw bytes.Buffer
	require.NoError(t, jpeg.Encode(&raw, img, &jpeg.Options{Quality: 100}))
	require.Greater(t, raw.Len(), MaxImageBytes, "fixture must start over budget")

	out, err := OptimizeImage(raw.Bytes(), MaxImageBytes)
	require.NoError(t, err)
	assert.True(t, len(out.Data) <= MaxImageBytes || out.Quality == minJPEGQuality,
		"size %d at quality %d", len(out.Data), out.Quality)
	assert.Less(t, out.Quality, maxJPEGQuality)

	// The chosen quality is the first one that fits: one step up does not.
	if out.Quality < maxJPEGQuality && len(out.Data) <= MaxImageBytes {
		decoded, _, err := image.Decode(bytes.NewReader(raw.Bytes()))
		require.NoError(t, err)
		var above bytes.Buffer
		require.NoError(t, jpeg.Encode(&above, decoded, &jpeg.Options{Quality: out.Quality + jpegQualityStep}))
		assert.Greater(t, above.Len(), MaxImageBytes)
	}
}

func TestOptimizeImageQualityFloor(t *testing.T) {
	var raw bytes.Buffer
	require.NoError(t, jpeg.Encode(&raw, noiseImage(200, 200), nil))

	out, err := OptimizeImage(raw.Bytes(), 1)
	require.NoError(t, err)
	assert.Equal(t, minJPEGQuality, out.Quality)
	assert.NotEmpty(t, out.Data)
}

func TestOptimizeImageSmallKeepsFullQuality(t *testing.T) {
	out, err := OptimizeImage(gradientJPEG(t, 320, 240), MaxImageBytes)
	require.NoError(t, err)
	assert.Equal(t, maxJPEGQuality, out.Quality)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 240, cfg.Height)
}

func TestOptimizeImageConvertsPNG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 50, 40))
	var raw bytes.Buffer
	require.NoError(t, png.Encode(&raw, src))

	out, err := OptimizeImage(raw.Bytes(), MaxImageBytes)
	require.NoError(t, err)
	_, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Contains(t, out.DataURL(), "data:image/jpeg;base64,")
}

func TestOptimizeImageRejectsGarbage(t *testing.T) {
	_, err := OptimizeImage([]byte{0x01, 0x02, 0x03}, MaxImageBytes)
	assert.Error(t, err)
}

func TestCorrectOrientation(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}

	// 2x1: red on the left, blue on the right
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, red)
	src.Set(1, 0, blue)

	tests := []struct {
		orientation int
		w, h        int
		at          map[image.Point]color.RGBA
	}{
		{1, 2, 1, map[image.Point]color.RGBA{image.Pt(0, 0): red, image.Pt(1, 0): blue}},
		{2, 2, 1, map[image.Point]color.RGBA{image.Pt(0, 0): blue, image.Pt(1, 0): red}},
		{3, 2, 1, map[image.Point]color.RGBA{image.Pt(0, 0): blue, image.Pt(1, 0): red}},
		{6, 1, 2, map[image.Point]color.RGBA{image.Pt(0, 0): red, image.Pt(0, 1): blue}},
		{8, 1, 2, map[image.Point]color.RGBA{image.Pt(0, 0): blue, image.Pt(0, 1): red}},
	}
	for _, tt := range tests {
		out := correctOrientation(src, tt.orientation)
		b := out.Bounds()
		assert.Equal(t, tt.w, b.Dx(), "orientation %d width", tt.orientation)
		assert.Equal(t, tt.h, b.Dy(), "orientation %d height", tt.orientation)
		for p, want := range tt.at {
			assert.Equal(t, want, color.RGBAModel.Convert(out.At(p.X, p.Y)), "orientation %d at %v", tt.orientation, p)
		}
	}
}

func TestImageOrientationWithoutExif(t *testing.T) {
	assert.Equal(t, 1, imageOrientation(gradientJPEG(t, 10, 10)))
}
