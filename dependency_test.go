package deepzoom

import (
	"fmt"
	"testing"
)

func tileURL(level, col, row int) (string, error) {
	return fmt.Sprintf("%d/%d/%d", level, col, row), nil
}

func mustURL(level, col, row int) string {
	url, _ := tileURL(level, col, row)
	return url
}

func TestAddLinksAncestors(t *testing.T) {
	x := NewDependencyIndex(0, tileURL)
	x.Add(3, 5, 6, mustURL(3, 5, 6))

	// The chain 3/5/6 -> 2/2/3 -> 1/1/1 -> 0/0/0 is created transitively.
	for _, url := range []string{"3/5/6", "2/2/3", "1/1/1", "0/0/0"} {
		if _, ok := x.Resolve(url); !ok {
			t.Errorf("expected %s to be registered", url)
		}
	}
	if x.Len() != 4 {
		t.Errorf("expected 4 nodes, got %d", x.Len())
	}
}

func TestAddIsIdempotent(t *testing.T) {
	x := NewDependencyIndex(0, tileURL)
	x.Add(2, 1, 1, mustURL(2, 1, 1))
	x.Add(2, 1, 1, mustURL(2, 1, 1))
	if x.Len() != 3 {
		t.Errorf("expected 3 nodes, got %d", x.Len())
	}
}

func TestRemoveChainsUpward(t *testing.T) {
	x := NewDependencyIndex(0, tileURL)
	x.Add(3, 5, 6, mustURL(3, 5, 6))

	removed := x.Remove("3/5/6")
	// The leaf plus every ancestor left childless goes, but the root
	// (level 0) is never removed by chaining.
	want := map[string]bool{"3/5/6": true, "2/2/3": true, "1/1/1": true}
	if len(removed) != len(want) {
		t.Fatalf("expected %d removals, got %v", len(want), removed)
	}
	for _, url := range removed {
		if !want[url] {
			t.Errorf("unexpected removal %s", url)
		}
	}
	if _, ok := x.Resolve("0/0/0"); !ok {
		t.Error("expected root to survive chained removal")
	}
}

func TestRemoveStopsAtSharedAncestor(t *testing.T) {
	x := NewDependencyIndex(0, tileURL)
	// Two siblings under the same level-2 parent.
	x.Add(3, 4, 6, mustURL(3, 4, 6))
	x.Add(3, 5, 6, mustURL(3, 5, 6))

	removed := x.Remove("3/5/6")
	if len(removed) != 1 || removed[0] != "3/5/6" {
		t.Errorf("expected only the leaf removed, got %v", removed)
	}
	if _, ok := x.Resolve("2/2/3"); !ok {
		t.Error("expected shared parent to survive")
	}
}

func TestRemoveWithChildrenRejected(t *testing.T) {
	x := NewDependencyIndex(0, tileURL)
	x.Add(3, 5, 6, mustURL(3, 5, 6))

	// The level-2 ancestor still has a registered child.
	if removed := x.Remove("2/2/3"); removed != nil {
		t.Errorf("expected rejection, got removals %v", removed)
	}
	if _, ok := x.Resolve("2/2/3"); !ok {
		t.Error("expected rejected node to stay registered")
	}
}

func TestRemoveUnknown(t *testing.T) {
	x := NewDependencyIndex(0, tileURL)
	if removed := x.Remove("ghost"); removed != nil {
		t.Errorf("expected nil, got %v", removed)
	}
}

func TestMinimumLevelRoots(t *testing.T) {
	x := NewDependencyIndex(2, tileURL)
	x.Add(4, 8, 8, mustURL(4, 8, 8))

	// Ancestor creation stops at the minimum level.
	if _, ok := x.Resolve("2/2/2"); !ok {
		t.Error("expected ancestor at minimum level")
	}
	if _, ok := x.Resolve("1/1/1"); ok {
		t.Error("expected no ancestor below minimum level")
	}

	// The minimum-level node is a root: explicit removal works once it
	// is childless.
	x.Remove("4/8/8")
	if _, ok := x.Resolve("2/2/2"); !ok {
		t.Error("expected root to survive chaining")
	}
	x.Remove("2/2/2")
	if x.Len() != 0 {
		t.Errorf("expected empty index, got %d", x.Len())
	}
}

func TestHasChildren(t *testing.T) {
	x := NewDependencyIndex(0, tileURL)
	x.Add(2, 3, 3, mustURL(2, 3, 3))

	if !x.HasChildren("1/1/1") {
		t.Error("expected parent to report children")
	}
	if x.HasChildren("2/3/3") {
		t.Error("expected leaf to report no children")
	}
	if x.HasChildren("ghost") {
		t.Error("expected unknown url to report no children")
	}
}

func TestChildSlot(t *testing.T) {
	tests := []struct {
		col, row, want int
	}{
		{0, 0, 0},
		{1, 0, 1},
		{0, 1, 2},
		{1, 1, 3},
		{4, 6, 0},
		{5, 7, 3},
	}
	for _, tt := range tests {
		if got := childSlot(tt.col, tt.row); got != tt.want {
			t.Errorf("childSlot(%d,%d) = %d, want %d", tt.col, tt.row, got, tt.want)
		}
	}
}

func TestClearIndex(t *testing.T) {
	x := NewDependencyIndex(0, tileURL)
	x.Add(3, 1, 1, mustURL(3, 1, 1))
	x.Clear()
	if x.Len() != 0 {
		t.Errorf("expected empty index, got %d", x.Len())
	}
}
