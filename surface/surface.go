// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"context"
	"image"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// Surface is a renderable tile surface: one decoded image resource plus
// whatever per-backend state is needed to attach it to a scene graph.
//
// Surfaces are NOT thread-safe. The deepzoom controller confines all
// surface mutation to its own goroutine.
type Surface interface {
	// URL returns the tile URL this surface was created for.
	URL() string

	// Width returns the surface width in pixels.
	Width() int

	// Height returns the surface height in pixels.
	Height() int

	// SetImage binds decoded pixels to the surface. Re-binding a surface
	// that already holds an image replaces it.
	SetImage(img *image.RGBA)

	// Image returns the currently bound pixels, or nil if none are bound.
	Image() *image.RGBA

	// Format returns the pixel format a GPU host should use when
	// uploading the bound image.
	Format() gputypes.TextureFormat

	// ReleaseGeometry frees placement-only resources while keeping the
	// decoded texture alive. Used by the no-pooling release policy when
	// descendants of a tile are still referenced.
	ReleaseGeometry()

	// Close releases all resources. Close is idempotent; the surface
	// must not be used afterwards.
	Close() error
}

// Options configures surface creation.
type Options struct {
	// URL is the tile URL the surface will display.
	URL string

	// Width and Height are the surface dimensions in pixels.
	Width  int
	Height int
}

// loggerPtr stores the package logger, shared with deepzoom.SetLogger.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(discardHandler{}))
}

// SetLogger sets the logger used by the surface package. Called by
// deepzoom.SetLogger; most code should not call it directly.
func SetLogger(l *slog.Logger) {
	if l != nil {
		loggerPtr.Store(l)
	}
}

func logger() *slog.Logger { return loggerPtr.Load() }

// discardHandler drops all records and disables formatting.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
