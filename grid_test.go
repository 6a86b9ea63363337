package deepzoom

import (
	"testing"

	"github.com/gogpu/deepzoom/pyramid"
)

func testDescriptor(t *testing.T) *pyramid.Descriptor {
	t.Helper()
	d, err := pyramid.New(pyramid.Config{
		TileSize:        256,
		Format:          ".jpg",
		Width:           4096,
		Height:          4096,
		Type:            pyramid.TypeDZI,
		URLTileTemplate: "{level}/{column}/{row}",
	})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestGridDimensions(t *testing.T) {
	desc := testDescriptor(t)
	g, err := newLevelGrid(desc, desc.MaxLevel())
	if err != nil {
		t.Fatal(err)
	}
	if g.cols != 16 || g.rows != 16 {
		t.Errorf("expected 16x16 grid at native level, got %dx%d", g.cols, g.rows)
	}
	if g.worldTile != 256 {
		t.Errorf("expected world tile 256 at native level, got %g", g.worldTile)
	}

	coarse, err := newLevelGrid(desc, desc.MaxLevel()-1)
	if err != nil {
		t.Fatal(err)
	}
	if coarse.worldTile != 512 {
		t.Errorf("expected world tile 512 one level up, got %g", coarse.worldTile)
	}
}

func TestComputeNeededCulling(t *testing.T) {
	desc := testDescriptor(t)
	g, err := newLevelGrid(desc, desc.MaxLevel())
	if err != nil {
		t.Fatal(err)
	}

	world := R(0, 0, 4096, 4096)
	needed := g.computeNeeded(R(0, 0, 512, 512), world)

	// Half-tile expansion reaches (-128,-128)-(640,640); tile centers at
	// 128 and 384 fall inside, 640 does not.
	if len(needed) != 4 {
		t.Fatalf("expected 4 needed tiles, got %d", len(needed))
	}
	for _, pos := range needed {
		if pos.Col > 1 || pos.Row > 1 {
			t.Errorf("unexpected tile (%d,%d)", pos.Col, pos.Row)
		}
	}
}

func TestComputeNeededClampsToWorld(t *testing.T) {
	desc := testDescriptor(t)
	g, err := newLevelGrid(desc, desc.MaxLevel())
	if err != nil {
		t.Fatal(err)
	}

	// Viewport hangs off the top-left corner; only in-bounds cells count.
	needed := g.computeNeeded(R(-1000, -1000, 300, 300), R(0, 0, 4096, 4096))
	for _, pos := range needed {
		if pos.Col < 0 || pos.Row < 0 {
			t.Errorf("out-of-world tile (%d,%d)", pos.Col, pos.Row)
		}
	}
	if len(needed) == 0 {
		t.Error("expected corner tiles to survive world clamp")
	}

	// Fully outside the world: nothing needed.
	if n := g.computeNeeded(R(-2000, -2000, -1000, -1000), R(0, 0, 4096, 4096)); len(n) != 0 {
		t.Errorf("expected empty set outside world, got %d", len(n))
	}
}

func TestChangedTilesDiff(t *testing.T) {
	desc := testDescriptor(t)
	g, err := newLevelGrid(desc, desc.MaxLevel())
	if err != nil {
		t.Fatal(err)
	}
	world := R(0, 0, 4096, 4096)

	first := g.computeNeeded(R(0, 0, 512, 512), world)
	added, removed := g.changedTiles(first, Pt(256, 256))
	if len(added) != 4 || len(removed) != 0 {
		t.Fatalf("initial diff: added %d removed %d", len(added), len(removed))
	}

	// Pan far right: the original tiles fall out, new ones come in.
	second := g.computeNeeded(R(2048, 0, 2560, 512), world)
	added, removed = g.changedTiles(second, Pt(2304, 256))
	if len(removed) != 4 {
		t.Errorf("expected 4 removed after pan, got %d", len(removed))
	}
	if len(added) == 0 {
		t.Error("expected new tiles after pan")
	}
	for _, req := range removed {
		if req.Col > 1 {
			t.Errorf("unexpected removal (%d,%d)", req.Col, req.Row)
		}
	}

	// Unchanged view produces an empty delta.
	added, removed = g.changedTiles(g.computeNeeded(R(2048, 0, 2560, 512), world), Pt(2304, 256))
	if len(added) != 0 || len(removed) != 0 {
		t.Errorf("expected empty delta, added %d removed %d", len(added), len(removed))
	}
}

func TestChangedTilesOrderedByDistance(t *testing.T) {
	desc := testDescriptor(t)
	g, err := newLevelGrid(desc, desc.MaxLevel())
	if err != nil {
		t.Fatal(err)
	}

	// Tiles in one row at distances 5, 1, 3 tile-steps from the focus.
	focus := g.tileCenter(TilePos{Col: 0, Row: 0})
	needed := make(map[string]TilePos)
	for _, col := range []int{5, 1, 3} {
		url, err := desc.URLForTile(g.level, col, 0)
		if err != nil {
			t.Fatal(err)
		}
		needed[url] = TilePos{Col: col, Row: 0}
	}

	added, _ := g.changedTiles(needed, focus)
	// Farthest first; a loader popping from the end loads 1, then 3,
	// then 5.
	wantCols := []int{5, 3, 1}
	if len(added) != len(wantCols) {
		t.Fatalf("expected %d added, got %d", len(wantCols), len(added))
	}
	for i, req := range added {
		if req.Col != wantCols[i] {
			t.Errorf("position %d: expected col %d, got %d", i, wantCols[i], req.Col)
		}
	}
}

func TestGridSettle(t *testing.T) {
	desc := testDescriptor(t)
	g, err := newLevelGrid(desc, desc.MaxLevel())
	if err != nil {
		t.Fatal(err)
	}

	url, _ := desc.URLForTile(g.level, 0, 0)
	g.needed[url] = TilePos{}
	g.settle()
	if g.state != GridPopulating {
		t.Errorf("expected populating while a tile is missing, got %v", g.state)
	}

	g.available[url] = nil
	g.settle()
	if g.state != GridSettled {
		t.Errorf("expected settled, got %v", g.state)
	}
}

func TestGridStateString(t *testing.T) {
	tests := []struct {
		state GridState
		want  string
	}{
		{GridAbsent, "absent"},
		{GridPopulating, "populating"},
		{GridSettled, "settled"},
		{GridStale, "stale"},
		{GridState(42), "GridState(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}
