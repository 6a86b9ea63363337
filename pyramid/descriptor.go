// Package pyramid derives tile pyramids for deep-zoom images.
//
// A Descriptor is pure computation: given the base image dimensions, tile
// size, overlap, and an optional clip region, it answers how many levels
// the pyramid has, the pixel dimensions and tile-grid size of every level,
// and the URL of every tile. Level 0 is the coarsest level (the whole
// image fits in at most one tile); MaxLevel is the native-resolution tile
// grid.
package pyramid

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Descriptor types.
const (
	// TypeDZI is a deep-zoom image pyramid derived from base dimensions.
	TypeDZI = "dzi"

	// TypeMap is a slippy-map pyramid: level L has 2^L x 2^L tiles.
	TypeMap = "map"
)

// DefaultMapMaxLevel is the finest level assumed for map-type descriptors
// without an explicit clip range. Level 20 resolves roughly to a mid-sized
// building on the equator.
const DefaultMapMaxLevel = 20

// URL template placeholders.
const (
	placeholderPath   = "{path}"
	placeholderLevel  = "{level}"
	placeholderColumn = "{column}"
	placeholderRow    = "{row}"
	placeholderFormat = "{format}"
)

// Descriptor errors.
var (
	// ErrLevelOutOfRange is returned for levels outside [BaseLevel, MaxLevel].
	ErrLevelOutOfRange = errors.New("pyramid: level out of range")

	// ErrTileOutOfRange is returned for tile coordinates outside the
	// level's grid.
	ErrTileOutOfRange = errors.New("pyramid: tile out of range")

	// ErrBadTemplate is returned when the URL template is missing a
	// required placeholder. It is reported from URLForTile rather than
	// from New so that best-effort display can proceed with whatever
	// levels were resolvable.
	ErrBadTemplate = errors.New("pyramid: malformed URL template")
)

// Clip restricts a descriptor to a sub-region of a larger global tile
// grid. StartCol and StartRow are the region's tile offsets at MaxLevel;
// offsets for coarser levels are derived by halving so that clipped tiles
// stay aligned to the unclipped global grid.
type Clip struct {
	MinLevel int `json:"minLevel"`
	MaxLevel int `json:"maxLevel"`
	StartCol int `json:"startCol"`
	StartRow int `json:"startRow"`
}

// Config is the JSON-serializable descriptor input.
type Config struct {
	TileSize        int    `json:"tileSize"`
	Format          string `json:"format"`
	Overlap         int    `json:"overlap"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Path            string `json:"path"`
	Type            string `json:"type"`
	URLTileTemplate string `json:"urlTileTemplate"`
	Clip            *Clip  `json:"clip,omitempty"`
}

// Offset is the per-level tile-grid offset of a clipped descriptor. The
// integer parts shift column/row indices into the global grid; a nonzero
// fractional part means the region's first tile covers only part of a
// global cell, so the boundary row/column is padded with one extra
// partial tile.
type Offset struct {
	StartCol int
	StartRow int
	FracCol  float64
	FracRow  float64
}

// Descriptor answers level, dimension, tile-grid, and URL queries for one
// deep-zoom pyramid. It is immutable after New and safe for concurrent
// reads.
type Descriptor struct {
	cfg       Config
	numLevels int
	baseLevel int
	maxLevel  int
	offsets   map[int]Offset // level -> offset; nil when unclipped
}

// New validates cfg and computes the pyramid. The URL template is not
// validated here; a malformed template surfaces as an error from
// URLForTile so callers can degrade to "no tile at this cell".
func New(cfg Config) (*Descriptor, error) {
	if cfg.TileSize <= 0 {
		return nil, fmt.Errorf("pyramid: tile size must be positive, got %d", cfg.TileSize)
	}
	if cfg.Type == "" {
		cfg.Type = TypeDZI
	}
	if cfg.Type != TypeDZI && cfg.Type != TypeMap {
		return nil, fmt.Errorf("pyramid: unknown descriptor type %q", cfg.Type)
	}

	d := &Descriptor{cfg: cfg}

	switch cfg.Type {
	case TypeDZI:
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return nil, fmt.Errorf("pyramid: dimensions must be positive, got %dx%d", cfg.Width, cfg.Height)
		}
		maxDim := max(cfg.Width, cfg.Height)
		d.numLevels = int(math.Ceil(math.Log2(float64(maxDim))))
		// One extra halving reserves the level above the log2 count for
		// the native-resolution tile grid.
		d.maxLevel = d.numLevels
	case TypeMap:
		d.maxLevel = DefaultMapMaxLevel
		if cfg.Clip != nil {
			d.maxLevel = cfg.Clip.MaxLevel
		}
		d.numLevels = d.maxLevel + 1
	}

	if cfg.Clip != nil {
		c := cfg.Clip
		if c.MinLevel < 0 || c.MaxLevel < c.MinLevel {
			return nil, fmt.Errorf("pyramid: invalid clip level range [%d, %d]", c.MinLevel, c.MaxLevel)
		}
		d.baseLevel = c.MinLevel
		d.maxLevel = c.MaxLevel
		d.offsets = clipOffsets(c)
	}

	return d, nil
}

// Parse decodes a JSON descriptor config and builds the pyramid.
func Parse(data []byte) (*Descriptor, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("pyramid: parse config: %w", err)
	}
	return New(cfg)
}

// NumLevels returns the number of halvings in the pyramid:
// ceil(log2(max(width, height))) for dzi descriptors.
func (d *Descriptor) NumLevels() int { return d.numLevels }

// BaseLevel returns the coarsest valid level (0 unless clipped).
func (d *Descriptor) BaseLevel() int { return d.baseLevel }

// MaxLevel returns the finest valid level: the native-resolution grid.
func (d *Descriptor) MaxLevel() int { return d.maxLevel }

// TileSize returns the tile edge length in pixels, excluding overlap.
func (d *Descriptor) TileSize() int { return d.cfg.TileSize }

// Overlap returns the number of pixels shared between adjacent tiles.
func (d *Descriptor) Overlap() int { return d.cfg.Overlap }

// Type returns the descriptor type, TypeDZI or TypeMap.
func (d *Descriptor) Type() string { return d.cfg.Type }

// ScaleAt returns the resolution of a level relative to native:
// 1.0 at MaxLevel, halving at every coarser level.
func (d *Descriptor) ScaleAt(level int) float64 {
	return math.Pow(0.5, float64(d.maxLevel-level))
}

// validLevel reports whether level may be queried on this pyramid.
func (d *Descriptor) validLevel(level int) bool {
	return level >= d.baseLevel && level <= d.maxLevel
}

// Dimensions returns the pixel width and height of a level.
func (d *Descriptor) Dimensions(level int) (w, h int, err error) {
	if !d.validLevel(level) {
		return 0, 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrLevelOutOfRange, level, d.baseLevel, d.maxLevel)
	}
	if d.cfg.Type == TypeMap {
		n := d.cfg.TileSize << level
		return n, n, nil
	}
	scale := d.ScaleAt(level)
	w = max(1, int(math.Ceil(float64(d.cfg.Width)*scale)))
	h = max(1, int(math.Ceil(float64(d.cfg.Height)*scale)))
	return w, h, nil
}

// NumTiles returns the tile-grid size of a level. For clipped
// descriptors, a fractional start offset pads the boundary row/column
// with one extra partial tile.
func (d *Descriptor) NumTiles(level int) (cols, rows int, err error) {
	if !d.validLevel(level) {
		return 0, 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrLevelOutOfRange, level, d.baseLevel, d.maxLevel)
	}
	if d.cfg.Type == TypeMap {
		n := 1 << level
		return n, n, nil
	}
	w, h, err := d.Dimensions(level)
	if err != nil {
		return 0, 0, err
	}
	off, _ := d.Offsets(level)
	ts := float64(d.cfg.TileSize)
	cols = max(1, int(math.Ceil(off.FracCol+float64(w)/ts)))
	rows = max(1, int(math.Ceil(off.FracRow+float64(h)/ts)))
	return cols, rows, nil
}

// Offsets returns the clip offset of a level. Unclipped descriptors
// report a zero Offset for every valid level.
func (d *Descriptor) Offsets(level int) (Offset, error) {
	if !d.validLevel(level) {
		return Offset{}, fmt.Errorf("%w: %d not in [%d, %d]", ErrLevelOutOfRange, level, d.baseLevel, d.maxLevel)
	}
	if d.offsets == nil {
		return Offset{}, nil
	}
	return d.offsets[level], nil
}

// URLForTile resolves the tile at (level, col, row) to a URL using the
// descriptor's template. Column and row are local to the clip region; the
// per-level integer start offset shifts them into the global grid.
func (d *Descriptor) URLForTile(level, col, row int) (string, error) {
	cols, rows, err := d.NumTiles(level)
	if err != nil {
		return "", err
	}
	if col < 0 || col >= cols || row < 0 || row >= rows {
		return "", fmt.Errorf("%w: (%d, %d) not in %dx%d grid at level %d",
			ErrTileOutOfRange, col, row, cols, rows, level)
	}

	tmpl := d.cfg.URLTileTemplate
	if !strings.Contains(tmpl, placeholderLevel) ||
		!strings.Contains(tmpl, placeholderColumn) ||
		!strings.Contains(tmpl, placeholderRow) {
		return "", fmt.Errorf("%w: %q", ErrBadTemplate, tmpl)
	}

	off, _ := d.Offsets(level)
	r := strings.NewReplacer(
		placeholderPath, d.cfg.Path,
		placeholderLevel, strconv.Itoa(level),
		placeholderColumn, strconv.Itoa(off.StartCol+col),
		placeholderRow, strconv.Itoa(off.StartRow+row),
		placeholderFormat, d.cfg.Format,
	)
	return r.Replace(tmpl), nil
}

// TilePlacement returns the position and size of a tile in level-pixel
// coordinates, accounting for overlap. Interior tiles extend one overlap
// beyond each shared edge; edge tiles are clamped to the level bounds.
func (d *Descriptor) TilePlacement(level, col, row int) (x, y, w, h int, err error) {
	lw, lh, err := d.Dimensions(level)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	ts := d.cfg.TileSize
	ov := d.cfg.Overlap

	x = col * ts
	y = row * ts
	w = ts
	h = ts
	if col > 0 {
		x -= ov
		w += ov
	}
	if row > 0 {
		y -= ov
		h += ov
	}
	w = min(w+ov, lw-x)
	h = min(h+ov, lh-y)
	return x, y, w, h, nil
}
