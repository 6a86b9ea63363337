// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"image"

	"github.com/gogpu/gputypes"
)

// ImageSurface is the built-in software surface: decoded pixels held as a
// plain RGBA image. It is the lowest-priority registered backend and the
// one used when no host backend is registered.
type ImageSurface struct {
	url    string
	width  int
	height int
	img    *image.RGBA

	// geometryFree marks the placement-only resources as released while
	// the texture stays warm.
	geometryFree bool
	closed       bool
}

// NewImageSurface creates a software surface of the given size.
func NewImageSurface(url string, width, height int) *ImageSurface {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &ImageSurface{url: url, width: width, height: height}
}

// URL returns the tile URL this surface was created for.
func (s *ImageSurface) URL() string { return s.url }

// Width returns the surface width in pixels.
func (s *ImageSurface) Width() int { return s.width }

// Height returns the surface height in pixels.
func (s *ImageSurface) Height() int { return s.height }

// SetImage binds decoded pixels to the surface.
func (s *ImageSurface) SetImage(img *image.RGBA) {
	if s.closed {
		logger().Warn("surface: SetImage on closed surface", "url", s.url)
		return
	}
	s.img = img
	s.geometryFree = false
	if img != nil {
		b := img.Bounds()
		s.width = b.Dx()
		s.height = b.Dy()
	}
}

// Image returns the currently bound pixels, or nil.
func (s *ImageSurface) Image() *image.RGBA {
	if s.closed {
		return nil
	}
	return s.img
}

// Format reports the upload layout of the bound pixels.
func (s *ImageSurface) Format() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

// ReleaseGeometry frees placement-only resources; the pixels stay bound.
func (s *ImageSurface) ReleaseGeometry() {
	s.geometryFree = true
}

// GeometryFree reports whether ReleaseGeometry has been called since the
// last SetImage.
func (s *ImageSurface) GeometryFree() bool { return s.geometryFree }

// Closed reports whether the surface has been closed.
func (s *ImageSurface) Closed() bool { return s.closed }

// Close releases the pixels. Close is idempotent.
func (s *ImageSurface) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.img = nil
	return nil
}

// init registers the built-in software backend.
func init() {
	Register("image", 10, func(opts Options) (Surface, error) {
		return NewImageSurface(opts.URL, opts.Width, opts.Height), nil
	}, nil)
}
