// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package surface provides the renderable tile surface abstraction for
// deepzoom.
//
// A Surface binds one decoded tile image to whatever resource the host's
// scene-graph renderer needs to draw it. The core never talks to the GPU:
// the built-in ImageSurface holds plain RGBA pixels, and hosts with GPU
// scene graphs register their own backend through the Registry. Surfaces
// report their pixel format as a gputypes.TextureFormat so a GPU host
// knows the upload layout without conversion.
package surface
