package deepzoom

import (
	"fmt"
	"math"
	"sort"

	"github.com/gogpu/deepzoom/pyramid"
	"github.com/gogpu/deepzoom/surface"
)

// GridState is the lifecycle state of one level grid.
type GridState int

// Grid lifecycle states.
const (
	// GridAbsent: the grid has not been created yet.
	GridAbsent GridState = iota

	// GridPopulating: tiles are being loaded for the current view.
	GridPopulating

	// GridSettled: every needed tile is available.
	GridSettled

	// GridStale: the grid is scheduled for destruction.
	GridStale
)

// String returns the state name.
func (s GridState) String() string {
	switch s {
	case GridAbsent:
		return "absent"
	case GridPopulating:
		return "populating"
	case GridSettled:
		return "settled"
	case GridStale:
		return "stale"
	default:
		return fmt.Sprintf("GridState(%d)", int(s))
	}
}

// TilePos is a grid-local tile coordinate.
type TilePos struct {
	Col int
	Row int
}

// LevelGrid tracks, for one pyramid level, the set of tiles the current
// viewport needs versus the set currently available, and produces the
// delta between the two on every viewport change.
//
// Grids hold surfaces only by reference; the tile cache owns every
// resource. All mutation goes through the controller's orchestration
// methods so that no two code paths can issue conflicting eviction
// decisions.
type LevelGrid struct {
	level     int
	cols      int
	rows      int
	pixelW    int
	pixelH    int
	scale     float64
	worldTile float64 // world units per tile step at this level

	desc *pyramid.Descriptor

	needed    map[string]TilePos
	available map[string]surface.Surface
	requested map[string]struct{}

	// registered tracks the cache references this grid owns, one per
	// cell it has scheduled. It keeps Register/Unregister balanced no
	// matter how often a cell re-enters the view or is re-scheduled.
	registered map[string]struct{}

	state  GridState
	keep   bool
	hidden bool
}

// newLevelGrid creates the grid for one level. Grids are created lazily
// on first demand for a level.
func newLevelGrid(desc *pyramid.Descriptor, level int) (*LevelGrid, error) {
	cols, rows, err := desc.NumTiles(level)
	if err != nil {
		return nil, err
	}
	w, h, err := desc.Dimensions(level)
	if err != nil {
		return nil, err
	}
	scale := desc.ScaleAt(level)
	return &LevelGrid{
		level:      level,
		cols:       cols,
		rows:       rows,
		pixelW:     w,
		pixelH:     h,
		scale:      scale,
		worldTile:  float64(desc.TileSize()) / scale,
		desc:       desc,
		needed:     make(map[string]TilePos),
		available:  make(map[string]surface.Surface),
		requested:  make(map[string]struct{}),
		registered: make(map[string]struct{}),
		state:      GridPopulating,
	}, nil
}

// Level returns the pyramid level this grid serves.
func (g *LevelGrid) Level() int { return g.level }

// State returns the grid's lifecycle state.
func (g *LevelGrid) State() GridState { return g.state }

// Keep reports whether the grid is pinned against eviction sweeps.
func (g *LevelGrid) Keep() bool { return g.keep }

// Hidden reports whether the grid is currently demoted below the active
// level.
func (g *LevelGrid) Hidden() bool { return g.hidden }

// NeededCount returns the number of tiles the current view requires.
func (g *LevelGrid) NeededCount() int { return len(g.needed) }

// AvailableCount returns the number of loaded tiles.
func (g *LevelGrid) AvailableCount() int { return len(g.available) }

// tileCenter returns the world-space center of a tile.
func (g *LevelGrid) tileCenter(pos TilePos) Point {
	return Point{
		X: (float64(pos.Col) + 0.5) * g.worldTile,
		Y: (float64(pos.Row) + 0.5) * g.worldTile,
	}
}

// computeNeeded maps the world-space viewport into this grid and
// enumerates every tile whose center falls inside the bounds expanded by
// half a tile, so partially visible edge cells are caught. The viewport
// is first intersected with the declared world bounds, taking the
// narrower of the two on each axis. Cells whose URL cannot be resolved
// degrade to "no tile at this cell".
func (g *LevelGrid) computeNeeded(view, world Rect) map[string]TilePos {
	needed := make(map[string]TilePos)

	bounds := view
	if !world.Empty() {
		bounds = view.Intersect(world)
	}
	if bounds.Empty() {
		return needed
	}
	bounds = bounds.Expand(g.worldTile/2, g.worldTile/2)

	c0 := clampInt(int(math.Floor(bounds.Min.X/g.worldTile)), 0, g.cols-1)
	c1 := clampInt(int(math.Ceil(bounds.Max.X/g.worldTile)), 0, g.cols-1)
	r0 := clampInt(int(math.Floor(bounds.Min.Y/g.worldTile)), 0, g.rows-1)
	r1 := clampInt(int(math.Ceil(bounds.Max.Y/g.worldTile)), 0, g.rows-1)

	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			pos := TilePos{Col: col, Row: row}
			if !bounds.Contains(g.tileCenter(pos)) {
				continue
			}
			url, err := g.desc.URLForTile(g.level, col, row)
			if err != nil {
				Logger().Debug("deepzoom: cell unresolvable",
					"level", g.level, "col", col, "row", row, "error", err)
				continue
			}
			needed[url] = pos
		}
	}
	return needed
}

// computeAll enumerates every tile of the level. Used by the keep-pin
// population path.
func (g *LevelGrid) computeAll() map[string]TilePos {
	needed := make(map[string]TilePos, g.cols*g.rows)
	for row := 0; row < g.rows; row++ {
		for col := 0; col < g.cols; col++ {
			url, err := g.desc.URLForTile(g.level, col, row)
			if err != nil {
				continue
			}
			needed[url] = TilePos{Col: col, Row: row}
		}
	}
	return needed
}

// changedTiles installs newNeeded as the grid's needed set and returns
// the delta against the previous one. Added entries come back sorted by
// descending distance from the reference point, so a loader consuming
// from the end of the slice loads the nearest tiles first.
func (g *LevelGrid) changedTiles(newNeeded map[string]TilePos, focus Point) (added, removed []TileRequest) {
	for url, pos := range g.needed {
		if _, ok := newNeeded[url]; !ok {
			removed = append(removed, TileRequest{URL: url, Col: pos.Col, Row: pos.Row})
		}
	}
	for url, pos := range newNeeded {
		if _, ok := g.needed[url]; !ok {
			added = append(added, TileRequest{URL: url, Col: pos.Col, Row: pos.Row})
		}
	}
	g.needed = newNeeded

	sort.Slice(added, func(i, j int) bool {
		di := g.tileCenter(TilePos{Col: added[i].Col, Row: added[i].Row}).DistanceSquared(focus)
		dj := g.tileCenter(TilePos{Col: added[j].Col, Row: added[j].Row}).DistanceSquared(focus)
		return di > dj
	})
	return added, removed
}

// settle flips the grid to GridSettled once everything needed is
// available.
func (g *LevelGrid) settle() {
	if len(g.requested) == 0 && len(g.needed) == len(g.available) {
		g.state = GridSettled
	}
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
