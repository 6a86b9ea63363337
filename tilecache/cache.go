// Package tilecache owns the lifetime of decoded tile resources.
//
// Every tile surface lives in exactly one Cache, reference-counted across
// however many grid cells currently display it. Grids and loaders hold
// only URLs, never owning references; only the cache's refcount-driven
// logic may free a resource. A bounded warm pool keeps recently evicted
// surfaces alive for instant reuse during oscillating viewports, and a
// late-arrival table absorbs decodes that finish after their request was
// cancelled.
package tilecache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/deepzoom/surface"
)

// DefaultWarmPoolSize is the default bound on the warm pool.
const DefaultWarmPoolSize = 32

// Cache is the reference-counted tile surface table.
//
// Cache methods are safe for concurrent use, but the deepzoom controller
// confines all mutation to its own goroutine; the mutex exists so stats
// and sweeps stay safe regardless of host integration mistakes.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	warm    []warmEntry
	late    map[string]*lateEntry

	pooling  bool
	warmSize int

	// Statistics (atomic for zero-allocation reads).
	hits         atomic.Uint64
	misses       atomic.Uint64
	evictions    atomic.Uint64
	warmReuses   atomic.Uint64
	lateArrivals atomic.Uint64
}

// entry is one live cache slot: a surface shared by refcount grid cells.
type entry struct {
	surface  surface.Surface
	refcount int
}

// warmEntry is a released surface kept alive for fast reuse.
type warmEntry struct {
	url     string
	surface surface.Surface
}

// lateEntry is a decode that arrived after its request was cancelled.
// touched is cleared by the sweep; an entry that stays untouched for a
// full sweep interval is destroyed.
type lateEntry struct {
	surface surface.Surface
	touched bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithWarmPool bounds the warm pool at n entries. n <= 0 uses
// DefaultWarmPoolSize.
func WithWarmPool(n int) Option {
	return func(c *Cache) {
		c.pooling = true
		if n > 0 {
			c.warmSize = n
		}
	}
}

// WithoutPooling disables the warm pool: surfaces are destroyed as soon
// as their refcount reaches zero, unless they are late arrivals.
func WithoutPooling() Option {
	return func(c *Cache) {
		c.pooling = false
	}
}

// New creates a cache. Pooling is enabled by default with
// DefaultWarmPoolSize entries.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[string]*entry),
		late:     make(map[string]*lateEntry),
		pooling:  true,
		warmSize: DefaultWarmPoolSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds one reference to url, creating an unbound entry if none
// exists, and returns the new reference count.
func (c *Cache) Register(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok {
		e = &entry{}
		c.entries[url] = e
	}
	e.refcount++
	return e.refcount
}

// Unregister drops one reference to url and returns the remaining count.
// When the count reaches zero the release policy runs: with pooling the
// surface moves to the warm pool, without pooling it is destroyed
// immediately unless it is a late arrival, in which case only its
// geometry resources are freed.
//
// Unregistering an unknown or zero-count url is a programmer error: it is
// logged and made a no-op.
func (c *Cache) Unregister(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok {
		logger().Warn("tilecache: unregister of unknown url", "url", url)
		return 0
	}
	if e.refcount <= 0 {
		logger().Warn("tilecache: unregister below zero", "url", url)
		return 0
	}
	e.refcount--
	if e.refcount > 0 {
		return e.refcount
	}

	delete(c.entries, url)
	c.release(url, e.surface)
	return 0
}

// release applies the refcount-zero policy. Must be called with c.mu held.
func (c *Cache) release(url string, s surface.Surface) {
	if s == nil {
		return
	}
	if !c.pooling {
		if _, isLate := c.late[url]; isLate {
			s.ReleaseGeometry()
			return
		}
		c.evictions.Add(1)
		c.closeSurface(url, s)
		return
	}

	c.warm = append(c.warm, warmEntry{url: url, surface: s})
	for len(c.warm) > c.warmSize {
		oldest := c.warm[0]
		c.warm = c.warm[1:]
		// A tile can become needed again moments after being dropped;
		// never destroy a warm surface whose url is registered again.
		// Hand the surface straight back to the waiting entry instead.
		if e, registered := c.entries[oldest.url]; registered {
			if e.surface == nil {
				e.surface = oldest.surface
				c.warmReuses.Add(1)
				continue
			}
			// The entry was rebound from elsewhere; the warm copy is
			// redundant.
		}
		c.evictions.Add(1)
		c.closeSurface(oldest.url, oldest.surface)
	}
}

// Bind attaches a decoded surface to the registered entry for url.
//
// Binding over an already-bound entry is a programmer error: logged,
// no-op, false. Binding a url with no registered entry is a late
// arrival: the surface is parked in the late table and false is
// returned.
func (c *Cache) Bind(url string, s surface.Surface) bool {
	if s == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok {
		c.lateArrivals.Add(1)
		c.late[url] = &lateEntry{surface: s, touched: true}
		logger().Debug("tilecache: late arrival parked", "url", url)
		return false
	}
	if e.surface != nil {
		logger().Warn("tilecache: bind over already-available url", "url", url)
		return false
	}
	e.surface = s
	return true
}

// Lookup returns the live surface bound to url, if any.
func (c *Cache) Lookup(url string) (surface.Surface, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok || e.surface == nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.surface, true
}

// Registered reports whether url currently holds any references.
func (c *Cache) Registered(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[url]
	return ok
}

// RefCount returns the current reference count of url (0 if absent).
func (c *Cache) RefCount(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[url]; ok {
		return e.refcount
	}
	return 0
}

// Destroy forcibly closes the entry for url. Destroying an entry that is
// still referenced is rejected: logged and false.
func (c *Cache) Destroy(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok {
		return false
	}
	if e.refcount > 0 {
		logger().Warn("tilecache: destroy of referenced entry rejected",
			"url", url, "refcount", e.refcount)
		return false
	}
	delete(c.entries, url)
	if e.surface != nil {
		c.evictions.Add(1)
		c.closeSurface(url, e.surface)
	}
	return true
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// closeSurface closes s, logging failures. Must be called with c.mu held.
func (c *Cache) closeSurface(url string, s surface.Surface) {
	if err := s.Close(); err != nil {
		logger().Warn("tilecache: close surface", "url", url, "error", err)
	}
}

// Stats contains cache statistics for monitoring.
type Stats struct {
	// Entries is the number of live entries.
	Entries int
	// Warm is the number of surfaces in the warm pool.
	Warm int
	// Late is the number of parked late arrivals.
	Late int
	// Hits is the number of Lookup hits.
	Hits uint64
	// Misses is the number of Lookup misses.
	Misses uint64
	// Evictions is the number of surfaces actually destroyed.
	Evictions uint64
	// WarmReuses is the number of surfaces rescued from the warm pool
	// or late table.
	WarmReuses uint64
	// LateArrivals is the number of decodes that arrived after their
	// request was cancelled.
	LateArrivals uint64
}

// Stats returns current statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := len(c.entries)
	warm := len(c.warm)
	late := len(c.late)
	c.mu.Unlock()

	return Stats{
		Entries:      entries,
		Warm:         warm,
		Late:         late,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Evictions:    c.evictions.Load(),
		WarmReuses:   c.warmReuses.Load(),
		LateArrivals: c.lateArrivals.Load(),
	}
}

// loggerPtr stores the package logger, shared with deepzoom.SetLogger.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(discardHandler{}))
}

// SetLogger sets the logger used by the tilecache package. Called by
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
