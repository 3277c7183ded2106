package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestThumbnail_KeepsAspectRatio(t *testing.T) {
	out, err := Thumbnail(bytes.NewReader(encodePNG(t, 300, 150)), DefaultThumbnailSize)
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, 100, cfg.Width)
	require.Equal(t, 50, cfg.Height)
}

func TestThumbnail_DoesNotEnlarge(t *testing.T) {
	out, err := Thumbnail(bytes.NewReader(encodePNG(t, 40, 20)), 100)
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, 40, cfg.Width)
	require.Equal(t, 20, cfg.Height)
}

func TestThumbnail_Errors(t *testing.T) {
	_, err := Thumbnail(strings.NewReader("not an image"), 100)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decoding image")

	_, err = Thumbnail(bytes.NewReader(encodePNG(t, 10, 10)), 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be positive")
}
