package covers

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // GIF decoder registration
	"image/jpeg"
	_ "image/png" // PNG decoder registration

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder registration
)

// DefaultJPEGQuality is used when re-encoding covers
const DefaultJPEGQuality = 90

// transcode decodes any supported image and re-encodes it as JPEG.
// Transparent areas are flattened onto white. If maxDim is positive and the
// image is larger, it is scaled down to fit a maxDim square keeping its
// aspect ratio.
func transcode(data []byte, maxDim, quality int) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), maxDim)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("decode image: empty %s image", format)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// fitWithin returns dimensions no larger than maxDim on either side.
// maxDim <= 0 leaves the size unchanged.
func fitWithin(width, height, maxDim int) (int, int) {
	if maxDim <= 0 || (width <= maxDim && height <= maxDim) {
		return width, height
	}
	if width >= height {
		return maxDim, max(1, height*maxDim/width)
	}
	return max(1, width*maxDim/height), maxDim
}
