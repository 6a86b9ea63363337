package deepzoom

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/gogpu/deepzoom/internal/imageio"
	"github.com/gogpu/deepzoom/pyramid"
	"github.com/gogpu/deepzoom/surface"
	"github.com/gogpu/deepzoom/tilecache"
)

// LoaderFactory builds the loader for one level grid. The completion
// callback must be invoked on the controller goroutine (directly for
// in-process loaders, via Drain for background ones).
type LoaderFactory func(level int, cache *tilecache.Cache, complete CompletionFunc) Loader

// PlacedSurface is one renderable tile: a surface plus its world-space
// placement. Pos is the world-space top-left corner; multiplying surface
// pixels by 1/Scale yields world units.
type PlacedSurface struct {
	URL     string
	Level   int
	Pos     Point
	Scale   float64
	Surface surface.Surface
}

// SurfaceObserver is notified as tiles become renderable or are
// withdrawn. Callbacks run on the controller goroutine.
type SurfaceObserver interface {
	SurfaceAttached(PlacedSurface)
	SurfaceDetached(url string)
}

// Controller orchestrates deep-zoom streaming for one pyramid: it owns
// the level grids, the dependency index, and the cache registrations,
// selects the target level from the current scale, culls needed tiles
// against the viewport, and schedules loads.
//
// All methods must be called from a single goroutine, conventionally the
// host's frame loop. Background loaders marshal their results back
// through Update.
type Controller struct {
	desc  *pyramid.Descriptor
	cache *tilecache.Cache
	index *DependencyIndex

	grids   map[int]*LevelGrid
	loaders map[int]Loader

	loaderFactory    LoaderFactory
	observer         SurfaceObserver
	viewportW        float64
	viewportH        float64
	deviceResolution float64
	world            Rect
	minimumLevel     int
	maxLoadable      int
	sweepInterval    time.Duration

	currentLevel int
	scale        float64
	hasScale     bool
	focus        Point
	view         Rect

	fastCount int
	lastSweep time.Time
	active    bool
}

// NewController creates a controller for the given pyramid. The zero
// configuration uses an in-process BatchLoader over HTTP, a shared-nothing
// cache, device resolution 1, and the descriptor's full level range.
func NewController(desc *pyramid.Descriptor, opts ...Option) (*Controller, error) {
	if desc == nil {
		return nil, fmt.Errorf("deepzoom: nil descriptor")
	}
	cfg := defaultOptions(desc)
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maximumLevel > desc.MaxLevel() {
		cfg.maximumLevel = desc.MaxLevel()
	}
	if cfg.minimumLevel > cfg.maximumLevel {
		return nil, fmt.Errorf("deepzoom: minimum level %d above maximum %d",
			cfg.minimumLevel, cfg.maximumLevel)
	}

	c := &Controller{
		desc:             desc,
		cache:            cfg.cache,
		grids:            make(map[int]*LevelGrid),
		loaders:          make(map[int]Loader),
		loaderFactory:    cfg.loaderFactory,
		observer:         cfg.observer,
		viewportW:        cfg.viewportW,
		viewportH:        cfg.viewportH,
		deviceResolution: cfg.deviceResolution,
		world:            cfg.world,
		minimumLevel:     cfg.minimumLevel,
		maxLoadable:      cfg.maximumLevel,
		sweepInterval:    cfg.sweepInterval,
		currentLevel:     -1,
		active:           true,
	}
	c.index = NewDependencyIndex(cfg.minimumLevel, desc.URLForTile)
	if c.world.Empty() {
		c.world = c.nativeBounds()
	}
	return c, nil
}

// nativeBounds derives world bounds from the pyramid's native level,
// where one world unit is one native pixel.
func (c *Controller) nativeBounds() Rect {
	w, h, err := c.desc.Dimensions(c.desc.MaxLevel())
	if err != nil {
		return Rect{}
	}
	return R(0, 0, float64(w), float64(h))
}

// levelForScale maps the current scale to a pyramid level. Scale 1 at
// device resolution 1 selects the native level; each halving steps one
// level coarser, mirroring ScaleAt.
func (c *Controller) levelForScale(scale float64) int {
	level := c.minimumLevel
	if scale > 0 {
		level = int(math.Round(math.Log2(scale*c.deviceResolution))) + c.desc.MaxLevel()
		if level < c.minimumLevel {
			level = c.minimumLevel
		}
	}
	if level > c.maxLoadable {
		level = c.maxLoadable
	}
	return level
}

// Transformed handles one transform event from the gesture layer.
//
// The pivot point is treated as the view center; the world-space view
// rectangle is the viewport size divided by the current scale, centered
// there. Fast events throttle load dispatch to one attempt per three
// consecutive fast events; a settled event resets the throttle and runs
// a full re-evaluation.
func (c *Controller) Transformed(ev TransformEvent) {
	if !c.active {
		return
	}
	if ev.HasScale && ev.Scale > 0 {
		c.scale = ev.Scale
		c.hasScale = true
	}
	if !c.hasScale {
		return
	}
	c.focus = ev.About

	halfW := c.viewportW / (2 * c.scale)
	halfH := c.viewportH / (2 * c.scale)
	c.view = R(c.focus.X-halfW, c.focus.Y-halfH, c.focus.X+halfW, c.focus.Y+halfH)

	dispatch := true
	if ev.Fast {
		c.fastCount++
		dispatch = c.fastCount%3 == 1
	} else {
		c.fastCount = 0
	}

	level := c.levelForScale(c.scale)
	if level == c.currentLevel {
		c.refresh(c.grids[level], dispatch)
		return
	}
	c.switchLevel(level, dispatch)
}

// ThrowFinished is sent by the gesture layer when a physically simulated
// pan or zoom settles. It resets the fast throttle and runs a full
// re-evaluation of the current level.
func (c *Controller) ThrowFinished() {
	if !c.active {
		return
	}
	c.fastCount = 0
	if g, ok := c.grids[c.currentLevel]; ok {
		c.refresh(g, true)
	}
}

// switchLevel cancels the outgoing grid's loader (unless keep-pinned),
// demotes finer levels to hidden, and promotes the target grid.
func (c *Controller) switchLevel(level int, dispatch bool) {
	if old, ok := c.grids[c.currentLevel]; ok && !old.keep {
		if l, ok := c.loaders[c.currentLevel]; ok {
			l.Cancel()
		}
	}
	for lvl, g := range c.grids {
		g.hidden = lvl > level
	}
	c.currentLevel = level

	g, err := c.gridFor(level)
	if err != nil {
		Logger().Warn("deepzoom: level grid unavailable", "level", level, "error", err)
		return
	}
	g.hidden = false
	c.refresh(g, dispatch)
}

// gridFor lazily creates the grid and loader for a level.
func (c *Controller) gridFor(level int) (*LevelGrid, error) {
	if g, ok := c.grids[level]; ok {
		return g, nil
	}
	g, err := newLevelGrid(c.desc, level)
	if err != nil {
		return nil, err
	}
	c.grids[level] = g
	return g, nil
}

// loaderFor lazily creates the loader for a level, binding its
// completion callback to that level's grid.
func (c *Controller) loaderFor(level int) Loader {
	if l, ok := c.loaders[level]; ok {
		return l
	}
	l := c.loaderFactory(level, c.cache, func(res LoadResult) {
		c.completeLoad(level, res)
	})
	c.loaders[level] = l
	return l
}

// refresh re-culls one grid against the current view and schedules the
// resulting delta. Removed tiles leave the dependency index immediately;
// added tiles are registered and scheduled nearest-to-focus first. An
// empty delta dispatches nothing, even right after a level switch.
func (c *Controller) refresh(g *LevelGrid, dispatch bool) {
	if g == nil {
		return
	}
	needed := g.computeNeeded(c.view, c.world)
	added, removed := g.changedTiles(needed, c.focus)

	for _, req := range removed {
		c.evictTile(g, req.URL)
	}

	loader := c.loaderFor(g.level)
	scheduled := false
	for _, req := range added {
		if c.scheduleTile(g, loader, req) {
			scheduled = true
		}
	}
	// Cells whose earlier load failed stay needed; give them another
	// pass on settled events.
	if c.fastCount == 0 {
		for url, pos := range g.needed {
			if _, ok := g.available[url]; ok {
				continue
			}
			if _, ok := g.requested[url]; ok {
				continue
			}
			if c.scheduleTile(g, loader, TileRequest{URL: url, Col: pos.Col, Row: pos.Row}) {
				scheduled = true
			}
		}
	}

	if dispatch && (scheduled || loader.Pending() > 0) {
		loader.LoadAll()
	}
	if g.state != GridStale {
		g.state = GridPopulating
		g.settle()
	}
}

// scheduleTile registers one tile with the index and cache and hands it
// to the loader. Tiles already live in the cache attach immediately.
// Reports whether new loader work was queued.
//
// The grid owns at most one cache reference per cell, however many times
// the cell is re-scheduled before it leaves the view.
func (c *Controller) scheduleTile(g *LevelGrid, loader Loader, req TileRequest) bool {
	c.index.Add(g.level, req.Col, req.Row, req.URL)
	if _, ok := g.registered[req.URL]; !ok {
		g.registered[req.URL] = struct{}{}
		c.cache.Register(req.URL)
	}

	if s, ok := c.cache.Lookup(req.URL); ok {
		c.attach(g, req.URL, TilePos{Col: req.Col, Row: req.Row}, s)
		return false
	}
	if loader.Schedule(req.URL, req.Col, req.Row) {
		g.requested[req.URL] = struct{}{}
		return true
	}
	return false
}

// evictTile releases one grid cell and asks the dependency index to
// drop its node. The cache reference is always released when the cell
// leaves, even if the index refuses the removal because finer
// descendants are still registered; the index node then lingers until
// the normal upward chain reclaims it.
//
// Chained removals only touch index nodes: a chained ancestor that some
// coarser grid still displays keeps that grid's own cache reference.
func (c *Controller) evictTile(g *LevelGrid, url string) {
	c.releaseCell(g, url)
	c.index.Remove(url)
}

// releaseCell drops one grid's bookkeeping for a url and gives back its
// cache reference, notifying the observer if the tile was renderable.
func (c *Controller) releaseCell(g *LevelGrid, url string) {
	delete(g.requested, url)
	if _, ok := g.available[url]; ok {
		delete(g.available, url)
		if c.observer != nil {
			c.observer.SurfaceDetached(url)
		}
	}
	if _, ok := g.registered[url]; ok {
		delete(g.registered, url)
		c.cache.Unregister(url)
	}
}

// completeLoad is the completion callback for one level's loader. It
// runs on the controller goroutine.
func (c *Controller) completeLoad(level int, res LoadResult) {
	g := c.grids[level]
	if g != nil {
		delete(g.requested, res.URL)
	}

	if res.Late {
		c.absorbLate(res)
		return
	}
	if res.Err != nil {
		Logger().Warn("deepzoom: tile load failed",
			"level", level, "url", res.URL, "error", res.Err)
		return
	}

	s := res.Surface
	if s == nil {
		s = c.makeSurface(level, res)
		if s == nil {
			return
		}
	}

	if _, bound := c.cache.Lookup(res.URL); !bound {
		// Bind parks the surface in the late table when the url was
		// unregistered while the load was in flight.
		if !c.cache.Bind(res.URL, s) {
			return
		}
	}
	if g == nil {
		return
	}
	pos, ok := g.needed[res.URL]
	if !ok {
		return
	}
	c.attach(g, res.URL, pos, s)
}

// absorbLate parks a post-destroy result in the cache's late table so a
// prompt revisit can reuse it; the sweep reclaims it otherwise.
func (c *Controller) absorbLate(res LoadResult) {
	if res.Err != nil || res.Surface != nil {
		return
	}
	if res.Image == nil {
		return
	}
	s := surface.NewImageSurface(res.URL, res.Image.Bounds().Dx(), res.Image.Bounds().Dy())
	s.SetImage(res.Image)
	c.cache.PutLate(res.URL, s)
}

// makeSurface builds a surface for freshly decoded pixels, normalizing
// them to the tile's placement size.
func (c *Controller) makeSurface(level int, res LoadResult) surface.Surface {
	_, _, w, h, err := c.desc.TilePlacement(level, res.Col, res.Row)
	if err != nil {
		Logger().Warn("deepzoom: tile placement failed",
			"level", level, "url", res.URL, "error", err)
		return nil
	}
	img := res.Image
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		img = imageio.FitToTile(img, w, h)
	}
	s, err := surface.NewSurface(surface.Options{URL: res.URL, Width: w, Height: h})
	if err != nil {
		Logger().Warn("deepzoom: surface creation failed", "url", res.URL, "error", err)
		return nil
	}
	s.SetImage(img)
	return s
}

// attach marks a tile renderable and notifies the observer.
func (c *Controller) attach(g *LevelGrid, url string, pos TilePos, s surface.Surface) {
	if _, ok := g.available[url]; ok {
		return
	}
	g.available[url] = s
	if c.observer != nil {
		c.observer.SurfaceAttached(c.place(g, url, pos, s))
	}
	g.settle()
}

// place computes a tile's world-space placement.
func (c *Controller) place(g *LevelGrid, url string, pos TilePos, s surface.Surface) PlacedSurface {
	ps := PlacedSurface{URL: url, Level: g.level, Scale: g.scale, Surface: s}
	x, y, _, _, err := c.desc.TilePlacement(g.level, pos.Col, pos.Row)
	if err == nil {
		ps.Pos = Pt(float64(x)/g.scale, float64(y)/g.scale)
	}
	return ps
}

// Update is the host frame pump: it drains background loader
// completions, issues the next load batch where work is pending, and
// drives the periodic late-arrival sweep.
func (c *Controller) Update(now time.Time) {
	if !c.active {
		return
	}
	for _, l := range c.loaders {
		if d, ok := l.(resultDrainer); ok {
			d.Drain(0)
		}
	}
	for _, l := range c.loaders {
		if l.Pending() > 0 {
			l.LoadAll()
		}
	}
	if c.lastSweep.IsZero() || now.Sub(c.lastSweep) >= c.sweepInterval {
		c.cache.SweepLate()
		c.lastSweep = now
	}
}

// Activate makes an off-screen controller live again. Grids are
// reconstructed lazily from the next transform event.
func (c *Controller) Activate() {
	if c.active {
		return
	}
	c.active = true
	if c.hasScale {
		c.Transformed(TransformEvent{Scale: c.scale, HasScale: true, About: c.focus})
	}
}

// Deactivate fully releases the grid set for off-screen reclamation:
// loaders are destroyed, every registration is dropped, and the
// dependency index is cleared. Cache contents drain to the warm pool
// under its normal refcount policy.
func (c *Controller) Deactivate() {
	if !c.active {
		return
	}
	c.active = false

	for _, l := range c.loaders {
		l.Destroy()
	}
	c.loaders = make(map[int]Loader)

	for _, lvl := range c.sortedLevels(true) {
		g := c.grids[lvl]
		g.state = GridStale
		for url := range g.available {
			delete(g.available, url)
			if c.observer != nil {
				c.observer.SurfaceDetached(url)
			}
		}
		for url := range g.registered {
			delete(g.registered, url)
			c.cache.Unregister(url)
		}
	}
	c.index.Clear()
	c.grids = make(map[int]*LevelGrid)
	c.currentLevel = -1
}

// EnsureAllTiles populates every tile of a level and pins it against
// later eviction sweeps. The pin is unbounded: each pinned level stays
// resident until explicitly destroyed.
func (c *Controller) EnsureAllTiles(level int) error {
	if !c.active {
		return fmt.Errorf("deepzoom: controller inactive")
	}
	g, err := c.gridFor(level)
	if err != nil {
		return err
	}
	g.keep = true

	// Before any transform event there is no interaction focus; load
	// outward from the grid center instead.
	focus := c.focus
	if !c.hasScale {
		focus = c.world.Center()
	}
	added, _ := g.changedTiles(g.computeAll(), focus)
	loader := c.loaderFor(level)
	scheduled := false
	for _, req := range added {
		if c.scheduleTile(g, loader, req) {
			scheduled = true
		}
	}
	if scheduled {
		loader.LoadAll()
	}
	g.state = GridPopulating
	g.settle()
	return nil
}

// DestroyTilesAboveLevel evicts every grid finer than level, finest
// first so chained index removal meets no live descendants. Keep-pinned
// grids are spared.
func (c *Controller) DestroyTilesAboveLevel(level int) {
	for _, lvl := range c.sortedLevels(true) {
		if lvl <= level {
			continue
		}
		g := c.grids[lvl]
		if g.keep {
			continue
		}
		g.state = GridStale
		if l, ok := c.loaders[lvl]; ok {
			l.Destroy()
			delete(c.loaders, lvl)
		}
		for url := range g.registered {
			c.evictTile(g, url)
		}
		delete(c.grids, lvl)
		if c.currentLevel == lvl {
			c.currentLevel = -1
		}
	}
}

// DestroyUnneededTiles evicts tiles that are renderable but no longer
// needed by any grid, skipping tiles whose finer descendants are still
// registered in the dependency index.
func (c *Controller) DestroyUnneededTiles() {
	for _, lvl := range c.sortedLevels(true) {
		g := c.grids[lvl]
		if g.keep {
			continue
		}
		for url := range g.available {
			if _, ok := g.needed[url]; ok {
				continue
			}
			if c.index.HasChildren(url) {
				continue
			}
			c.evictTile(g, url)
		}
	}
}

// VisibleSurfaces returns every renderable tile coarse-to-fine, so a
// painter drawing in order layers fine detail over coarse fallback.
// Hidden and stale grids are skipped.
func (c *Controller) VisibleSurfaces() []PlacedSurface {
	var out []PlacedSurface
	for _, lvl := range c.sortedLevels(false) {
		g := c.grids[lvl]
		if g.hidden || g.state == GridStale {
			continue
		}
		urls := make([]string, 0, len(g.available))
		for url := range g.available {
			urls = append(urls, url)
		}
		sort.Strings(urls)
		for _, url := range urls {
			pos, ok := g.needed[url]
			if !ok {
				continue
			}
			out = append(out, c.place(g, url, pos, g.available[url]))
		}
	}
	return out
}

// GridState returns the lifecycle state of one level.
func (c *Controller) GridState(level int) GridState {
	if g, ok := c.grids[level]; ok {
		return g.state
	}
	return GridAbsent
}

// CurrentLevel returns the active level, or -1 before the first
// transform event.
func (c *Controller) CurrentLevel() int { return c.currentLevel }

// Cache exposes the controller's tile cache, chiefly for stats.
func (c *Controller) Cache() *tilecache.Cache { return c.cache }

// sortedLevels returns grid levels ascending, or descending when
// finestFirst is set.
func (c *Controller) sortedLevels(finestFirst bool) []int {
	levels := make([]int, 0, len(c.grids))
	for lvl := range c.grids {
		levels = append(levels, lvl)
	}
	sort.Ints(levels)
	if finestFirst {
		for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
			levels[i], levels[j] = levels[j], levels[i]
		}
	}
	return levels
}
