package provider

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// testPNG returns a small opaque image fixture.
func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	return encodePNG(t, img)
}

func TestNormalizeFlattensTransparencyOntoWhite(t *testing.T) {
	// Fully transparent input should come out opaque white.
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	out, err := NewNormalizer().Normalize(context.Background(), encodePNG(t, src))
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	r, g, b, a := decoded.At(2, 2).RGBA()
	assert.Equal(t, uint32(0xffff), a)
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)
}

func TestNormalizePartialAlphaBlends(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 128})
	out, err := NewNormalizer().Normalize(context.Background(), encodePNG(t, src))
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	r, g, _, a := decoded.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), a, "output must be opaque")
	assert.Equal(t, uint32(0xffff), r, "red channel stays saturated")
	assert.Greater(t, g, uint32(0), "white shows through half-transparent red")
	assert.Less(t, g, uint32(0xffff))
}

func TestNormalizeDownscalesOversizedImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3000, 1000))
	out, err := NewNormalizer().Normalize(context.Background(), encodePNG(t, src))
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 2048, decoded.Bounds().Dx())
	assert.Less(t, decoded.Bounds().Dy(), 1000, "aspect ratio preserved")
}

func TestNormalizeKeepsSmallImageSize(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 10, 20))
	out, err := NewNormalizer().Normalize(context.Background(), encodePNG(t, src))
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 10, decoded.Bounds().Dx())
	assert.Equal(t, 20, decoded.Bounds().Dy())
}

func TestNormalizeReencodesJPEGAsPNG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	out, err := NewNormalizer().Normalize(context.Background(), buf.Bytes())
	require.NoError(t, err)

	_, err = png.Decode(bytes.NewReader(out))
	assert.NoError(t, err, "output must be PNG regardless of input format")
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := NewNormalizer().Normalize(context.Background(), []byte("definitely not an image"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
