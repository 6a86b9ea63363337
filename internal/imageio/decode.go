// Package imageio decodes fetched tile buffers into RGBA pixels.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	stddraw "image/draw"

	// Register stdlib decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	// Register extended decoders from golang.org/x/image.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrEmptyBuffer is returned when a tile buffer contains no data.
var ErrEmptyBuffer = errors.New("imageio: empty buffer")

// Decode decodes a tile buffer, auto-detecting the format, and converts
// the result to RGBA.
func Decode(data []byte) (*image.RGBA, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBuffer
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imageio: decode: %w", err)
	}
	return toRGBA(img), nil
}

// FitToTile scales img to the expected tile dimensions when a source
// serves tiles at a different pixel density than the descriptor declares.
// Images already at the expected size are returned unchanged.
func FitToTile(img *image.RGBA, width, height int) *image.RGBA {
	if img == nil || width <= 0 || height <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// toRGBA converts any decoded image to RGBA without copying when the
// source already is one.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(dst, dst.Bounds(), img, b.Min, stddraw.Src)
	return dst
}
