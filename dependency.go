package deepzoom

// TileKey identifies one tile in the pyramid by level, column, and row.
type TileKey struct {
	Level int
	Col   int
	Row   int
}

// dependencyNode tracks, for one tile, its single parent at the next
// coarser level and up to four children at the next finer level.
type dependencyNode struct {
	key        TileKey
	url        string
	parent     *dependencyNode
	children   [4]*dependencyNode
	childCount int
}

// childSlot returns the quadrant index of a child under its parent.
func childSlot(col, row int) int {
	return (col & 1) | ((row & 1) << 1)
}

// DependencyIndex is the quad-link index over all registered tiles.
//
// It guarantees that a tile at level L is never removed while any
// registered tile at a finer level shares its ancestry chain: removing a
// leaf unlinks it from its parent, and a parent left childless is
// removed too, chaining upward exactly one level at a time. Nodes with
// no parent (at the minimum retained level) form the root set and are
// never removed by chaining, only explicitly.
//
// DependencyIndex is not safe for concurrent use; the controller
// confines it to its own goroutine.
type DependencyIndex struct {
	minimumLevel int
	byURL        map[string]*dependencyNode
	byKey        map[TileKey]*dependencyNode

	// urlFor resolves the URL of transitively created ancestor nodes.
	urlFor func(level, col, row int) (string, error)
}

// NewDependencyIndex creates an index whose root set sits at
// minimumLevel. urlFor resolves tile URLs for ancestors created
// transitively; a resolution failure stops the chain early.
func NewDependencyIndex(minimumLevel int, urlFor func(level, col, row int) (string, error)) *DependencyIndex {
	return &DependencyIndex{
		minimumLevel: minimumLevel,
		byURL:        make(map[string]*dependencyNode),
		byKey:        make(map[TileKey]*dependencyNode),
		urlFor:       urlFor,
	}
}

// Add registers the tile at (level, col, row) under url and links it to
// its parent at (col/2, row/2) one level up, creating ancestors
// transitively until minimumLevel. Adding a url that is already present
// is a no-op.
func (x *DependencyIndex) Add(level, col, row int, url string) {
	if _, ok := x.byURL[url]; ok {
		return
	}
	x.addNode(TileKey{Level: level, Col: col, Row: row}, url)
}

func (x *DependencyIndex) addNode(key TileKey, url string) *dependencyNode {
	if n, ok := x.byKey[key]; ok {
		return n
	}

	n := &dependencyNode{key: key, url: url}
	x.byKey[key] = n
	x.byURL[url] = n

	if key.Level <= x.minimumLevel {
		return n
	}

	// Column/row integer division rounds toward zero, matching the
	// pyramid's top-down halving.
	parentKey := TileKey{Level: key.Level - 1, Col: key.Col / 2, Row: key.Row / 2}
	parent, ok := x.byKey[parentKey]
	if !ok {
		purl, err := x.urlFor(parentKey.Level, parentKey.Col, parentKey.Row)
		if err != nil {
			Logger().Debug("deepzoom: ancestor url unresolvable, chain stops",
				"level", parentKey.Level, "col", parentKey.Col, "row", parentKey.Row, "error", err)
			return n
		}
		parent = x.addNode(parentKey, purl)
	}
	n.parent = parent
	parent.children[childSlot(key.Col, key.Row)] = n
	parent.childCount++
	return n
}

// Remove unregisters url and returns the URLs of every node removed:
// the named node plus any ancestors left childless by the removal
// (chained upward one level at a time, stopping at the root set).
//
// Removing a node that still has registered children would make a
// coarser eviction observable while finer descendants are in use; it is
// logged and made a no-op.
func (x *DependencyIndex) Remove(url string) []string {
	n, ok := x.byURL[url]
	if !ok {
		return nil
	}
	if n.childCount > 0 {
		Logger().Warn("deepzoom: removal of tile with registered descendants rejected",
			"url", url, "level", n.key.Level)
		return nil
	}

	removed := []string{url}
	p := n.parent
	x.unlink(n)
	for p != nil && p.childCount == 0 && p.parent != nil {
		removed = append(removed, p.url)
		next := p.parent
		x.unlink(p)
		p = next
	}
	return removed
}

// unlink detaches n from its parent and drops it from both maps.
func (x *DependencyIndex) unlink(n *dependencyNode) {
	if n.parent != nil {
		n.parent.children[childSlot(n.key.Col, n.key.Row)] = nil
		n.parent.childCount--
		n.parent = nil
	}
	delete(x.byKey, n.key)
	delete(x.byURL, n.url)
}

// Resolve returns the key registered for url.
func (x *DependencyIndex) Resolve(url string) (TileKey, bool) {
	if n, ok := x.byURL[url]; ok {
		return n.key, true
	}
	return TileKey{}, false
}

// HasChildren reports whether url has any registered finer-level
// descendants directly linked to it.
func (x *DependencyIndex) HasChildren(url string) bool {
	n, ok := x.byURL[url]
	return ok && n.childCount > 0
}

// Len returns the number of registered nodes, including transitively
// created ancestors.
func (x *DependencyIndex) Len() int { return len(x.byURL) }

// Clear drops every node.
func (x *DependencyIndex) Clear() {
	x.byURL = make(map[string]*dependencyNode)
	x.byKey = make(map[TileKey]*dependencyNode)
}
