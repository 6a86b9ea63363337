package pyramid

import "math"

// clipOffsets precomputes per-level start offsets for a clipped
// descriptor, top-down from the finest level so that sibling tiles share
// exact pixel alignment with the unclipped global grid. Each step toward
// a coarser level halves the start position; the integer part becomes the
// column/row shift and the fractional remainder is kept so NumTiles can
// pad the boundary with a partial tile.
func clipOffsets(c *Clip) map[int]Offset {
	offsets := make(map[int]Offset, c.MaxLevel-c.MinLevel+1)

	col := float64(c.StartCol)
	row := float64(c.StartRow)
	for level := c.MaxLevel; level >= c.MinLevel; level-- {
		ic := math.Floor(col)
		ir := math.Floor(row)
		offsets[level] = Offset{
			StartCol: int(ic),
			StartRow: int(ir),
			FracCol:  col - ic,
			FracRow:  row - ir,
		}
		// Integer division toward zero, matching the pyramid's
		// top-down halving.
		col /= 2
		row /= 2
	}
	return offsets
}
