// Package deepzoom streams arbitrarily large raster images into an
// interactive viewport by decomposing them into a pyramid of fixed-size
// tiles at successive resolutions and loading only the tiles needed for
// the current view.
//
// # Overview
//
// A deep-zoom image is described by a pyramid descriptor (see the pyramid
// subpackage): base dimensions, tile size, overlap, and a URL template
// that resolves every (level, column, row) to a fetchable tile. The
// Controller owns one LevelGrid per active pyramid level, a
// reference-counted tile cache (see the tilecache subpackage), and a
// quad-link DependencyIndex that prevents a low-resolution tile from
// being evicted while any of its higher-resolution descendants is still
// referenced.
//
// # Quick Start
//
//	desc, _ := pyramid.Parse(configJSON)
//	ctrl, _ := deepzoom.NewController(desc,
//	    deepzoom.WithViewportSize(1280, 800))
//
//	// Gesture layer feeds transform events:
//	ctrl.Transformed(deepzoom.TransformEvent{
//	    Scale: 0.25, HasScale: true,
//	    About: deepzoom.Pt(2048, 1024),
//	})
//
//	// Host frame loop pumps completions and the late-arrival sweep:
//	ctrl.Update(time.Now())
//
//	// Renderer attaches whatever is currently available:
//	for _, ps := range ctrl.VisibleSurfaces() {
//	    draw(ps.Surface, ps.Pos, ps.Scale)
//	}
//
// # Architecture
//
// The package is organized into:
//   - Public API: Controller, LevelGrid, Loader, TransformEvent
//   - pyramid: descriptor math, clip offsets, URL templating
//   - tilecache: refcounted entries, warm pool, late arrivals
//   - surface: renderable tile surfaces and the backend registry
//
// # Threading
//
// All grid, cache, and index mutation happens on the goroutine that calls
// Transformed and Update. Loaders may fetch and decode on background
// goroutines, but results are marshalled back through Update; nothing in
// this package blocks waiting for a tile. The view renders whatever is
// available at any level while loads are in flight.
package deepzoom
