package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	// Register decoders for the formats we accept
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

const thumbnailJPEGQuality = 85

// renderThumbnail decodes the image and scales it down to the target width,
// preserving aspect ratio. Images already narrower than the target are
// re-encoded at their original size rather than upscaled.
func renderThumbnail(data []byte, width int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, err)
	}

	bounds := src.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	if srcW <= 0 || srcH <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedMedia)
	}

	dstW := width
	if dstW > srcW {
		dstW = srcW
	}
	dstH := srcH * dstW / srcW
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: thumbnailJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
