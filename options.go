package deepzoom

import (
	"time"

	"github.com/gogpu/deepzoom/pyramid"
	"github.com/gogpu/deepzoom/tilecache"
)

// DefaultSweepInterval is how often Update runs the late-arrival sweep.
const DefaultSweepInterval = 2 * time.Second

type options struct {
	cache            *tilecache.Cache
	loaderFactory    LoaderFactory
	observer         SurfaceObserver
	viewportW        float64
	viewportH        float64
	deviceResolution float64
	world            Rect
	minimumLevel     int
	maximumLevel     int
	sweepInterval    time.Duration
}

// Option configures a Controller.
type Option func(*options)

func defaultOptions(desc *pyramid.Descriptor) options {
	return options{
		cache: tilecache.New(),
		loaderFactory: func(_ int, cache *tilecache.Cache, complete CompletionFunc) Loader {
			return NewBatchLoader(cache, HTTPFetcher(nil), complete)
		},
		viewportW:        1024,
		viewportH:        1024,
		deviceResolution: 1,
		minimumLevel:     desc.BaseLevel(),
		maximumLevel:     desc.MaxLevel(),
		sweepInterval:    DefaultSweepInterval,
	}
}

// WithCache supplies a shared tile cache. Controllers for images sharing
// one scene can pool their warm tiles this way.
func WithCache(c *tilecache.Cache) Option {
	return func(o *options) {
		if c != nil {
			o.cache = c
		}
	}
}

// WithLoaderFactory selects the loader implementation created per level.
func WithLoaderFactory(f LoaderFactory) Option {
	return func(o *options) {
		if f != nil {
			o.loaderFactory = f
		}
	}
}

// WithViewportSize sets the viewport size in device pixels. It
// determines how many tiles each re-cull considers needed.
func WithViewportSize(w, h float64) Option {
	return func(o *options) {
		if w > 0 && h > 0 {
			o.viewportW = w
			o.viewportH = h
		}
	}
}

// WithDeviceResolution sets the device pixel ratio used in level
// selection. Defaults to 1.
func WithDeviceResolution(r float64) Option {
	return func(o *options) {
		if r > 0 {
			o.deviceResolution = r
		}
	}
}

// WithWorldBounds restricts culling to a world-space region, for images
// that occupy only part of their pyramid. Defaults to the pyramid's
// native extent.
func WithWorldBounds(r Rect) Option {
	return func(o *options) { o.world = r }
}

// WithMinimumLevel sets the coarsest level the controller will select;
// it is also the dependency index's root level.
func WithMinimumLevel(level int) Option {
	return func(o *options) {
		if level >= 0 {
			o.minimumLevel = level
		}
	}
}

// WithMaximumLevel caps level selection below the pyramid's native
// level, for hosts that know finer tiles do not exist remotely.
func WithMaximumLevel(level int) Option {
	return func(o *options) {
		if level >= 0 {
			o.maximumLevel = level
		}
	}
}

// WithSurfaceObserver registers the renderer-side observer notified as
// tiles attach and detach.
func WithSurfaceObserver(obs SurfaceObserver) Option {
	return func(o *options) { o.observer = obs }
}

// WithSweepInterval overrides the late-arrival sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}
