package render

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	"image/png"
	"io"

	"github.com/nfnt/resize"
)

// DefaultThumbnailSize bounds both thumbnail dimensions.
const DefaultThumbnailSize = 100

// Thumbnail decodes a PNG, JPEG or GIF image and fits it inside a
// maxDim x maxDim box, keeping its aspect ratio. Images already inside
// the box are not enlarged. The result is PNG.
func Thumbnail(r io.Reader, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		return nil, fmt.Errorf("thumbnail size must be positive, got %d", maxDim)
	}

	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	thumb := resize.Thumbnail(uint(maxDim), uint(maxDim), src, resize.Lanczos3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
