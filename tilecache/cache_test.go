package tilecache

import (
	"fmt"
	"testing"

	"github.com/gogpu/deepzoom/surface"
)

func newSurface(url string) *surface.ImageSurface {
	return surface.NewImageSurface(url, 16, 16)
}

func TestRegisterRefCounts(t *testing.T) {
	c := New()

	if n := c.Register("a"); n != 1 {
		t.Errorf("expected refcount 1, got %d", n)
	}
	if n := c.Register("a"); n != 2 {
		t.Errorf("expected refcount 2, got %d", n)
	}
	if n := c.Unregister("a"); n != 1 {
		t.Errorf("expected refcount 1 after unregister, got %d", n)
	}
	if !c.Registered("a") {
		t.Error("expected a to stay registered at refcount 1")
	}
	if n := c.Unregister("a"); n != 0 {
		t.Errorf("expected refcount 0, got %d", n)
	}
	if c.Registered("a") {
		t.Error("expected a to be released at refcount 0")
	}
}

func TestUnregisterUnknownIsNoOp(t *testing.T) {
	c := New()
	if n := c.Unregister("ghost"); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
	// Refcount can never go below zero.
	c.Register("a")
	c.Unregister("a")
	if n := c.Unregister("a"); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
}

func TestBindAndLookup(t *testing.T) {
	c := New()
	s := newSurface("a")

	c.Register("a")
	if _, ok := c.Lookup("a"); ok {
		t.Error("expected no surface before bind")
	}
	if !c.Bind("a", s) {
		t.Error("expected bind to succeed")
	}
	got, ok := c.Lookup("a")
	if !ok || got != s {
		t.Error("expected lookup to return the bound surface")
	}

	// Double bind is a consistency violation: no-op, false.
	if c.Bind("a", newSurface("a")) {
		t.Error("expected bind over already-available url to fail")
	}
	if got, _ := c.Lookup("a"); got != s {
		t.Error("expected original surface to survive the double bind")
	}
}

func TestBindWithoutEntryParksLate(t *testing.T) {
	c := New()
	s := newSurface("a")

	if c.Bind("a", s) {
		t.Error("expected bind without registration to return false")
	}
	if c.LateLen() != 1 {
		t.Errorf("expected 1 late entry, got %d", c.LateLen())
	}

	// The parked surface is rescued by TakeWarm.
	got, ok := c.TakeWarm("a")
	if !ok || got != s {
		t.Error("expected late surface to be rescued")
	}
	if c.LateLen() != 0 {
		t.Errorf("expected empty late table, got %d", c.LateLen())
	}
}

func TestReleaseMovesToWarmPool(t *testing.T) {
	c := New()
	s := newSurface("a")

	c.Register("a")
	c.Bind("a", s)
	c.Unregister("a")

	if c.WarmLen() != 1 {
		t.Fatalf("expected 1 warm surface, got %d", c.WarmLen())
	}
	if s.Closed() {
		t.Error("expected pooled surface to stay open")
	}

	got, ok := c.TakeWarm("a")
	if !ok || got != s {
		t.Error("expected warm surface back")
	}
}

func TestWarmPoolBound(t *testing.T) {
	c := New(WithWarmPool(2))

	surfaces := make([]*surface.ImageSurface, 3)
	for i := range surfaces {
		url := fmt.Sprintf("tile-%d", i)
		surfaces[i] = newSurface(url)
		c.Register(url)
		c.Bind(url, surfaces[i])
		c.Unregister(url)
	}

	if c.WarmLen() != 2 {
		t.Errorf("expected warm pool bounded at 2, got %d", c.WarmLen())
	}
	// Oldest overflowed and was destroyed.
	if !surfaces[0].Closed() {
		t.Error("expected oldest warm surface to be closed")
	}
	if surfaces[1].Closed() || surfaces[2].Closed() {
		t.Error("expected newer warm surfaces to stay open")
	}
}

func TestWarmPoolSparesReRegistered(t *testing.T) {
	c := New(WithWarmPool(1))

	a := newSurface("a")
	c.Register("a")
	c.Bind("a", a)
	c.Unregister("a")

	// The url becomes needed again before the pool overflows.
	c.Register("a")

	b := newSurface("b")
	c.Register("b")
	c.Bind("b", b)
	c.Unregister("b")

	if a.Closed() {
		t.Error("expected re-registered surface to be spared from overflow")
	}
	// The overflowed surface is handed back to the waiting entry, not
	// dropped on the floor.
	got, ok := c.Lookup("a")
	if !ok || got != a {
		t.Error("expected overflowed surface rebound to the re-registered entry")
	}
	if c.WarmLen() != 1 {
		t.Errorf("expected only the newer surface in the warm pool, got %d", c.WarmLen())
	}
}

func TestWithoutPoolingDestroysImmediately(t *testing.T) {
	c := New(WithoutPooling())
	s := newSurface("a")

	c.Register("a")
	c.Bind("a", s)
	c.Unregister("a")

	if !s.Closed() {
		t.Error("expected immediate destroy without pooling")
	}
	if c.WarmLen() != 0 {
		t.Errorf("expected empty warm pool, got %d", c.WarmLen())
	}
}

func TestWithoutPoolingLateKeepsTexture(t *testing.T) {
	c := New(WithoutPooling())
	s := newSurface("a")

	// Park a late arrival under the same url, then release the entry.
	c.Register("a")
	c.Bind("a", newSurface("a"))
	c.PutLate("a", s)
	late, _ := c.Lookup("a")
	c.Unregister("a")

	// The released surface only frees geometry; the texture stays for the
	// late path.
	if ls := late.(*surface.ImageSurface); ls.Closed() || !ls.GeometryFree() {
		t.Errorf("expected geometry-only free, closed=%v geometryFree=%v",
			ls.Closed(), ls.GeometryFree())
	}
}

func TestDestroyReferencedRejected(t *testing.T) {
	c := New()
	c.Register("a")
	c.Bind("a", newSurface("a"))

	if c.Destroy("a") {
		t.Error("expected destroy of referenced entry to be rejected")
	}
	if !c.Registered("a") {
		t.Error("expected entry to survive rejected destroy")
	}

	c.Unregister("a")
	if c.Destroy("a") {
		t.Error("expected destroy of released entry to report absent")
	}
}

func TestStats(t *testing.T) {
	c := New()
	c.Register("a")
	c.Bind("a", newSurface("a"))

	c.Lookup("a")
	c.Lookup("a")
	c.Lookup("missing")

	st := c.Stats()
	if st.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", st.Hits)
	}
	if st.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", st.Misses)
	}
	if st.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", st.Entries)
	}
}

func TestClear(t *testing.T) {
	c := New()

	kept := newSurface("kept")
	c.Register("kept")
	c.Bind("kept", kept)

	dropped := newSurface("dropped")
	c.Register("dropped")
	c.Bind("dropped", dropped)
	c.Unregister("dropped")

	c.Clear()

	if !c.Registered("kept") {
		t.Error("expected referenced entry to survive Clear")
	}
	if kept.Closed() {
		t.Error("expected referenced surface to stay open")
	}
	if !dropped.Closed() {
		t.Error("expected pooled surface to be closed by Clear")
	}
	if c.WarmLen() != 0 || c.LateLen() != 0 {
		t.Error("expected warm pool and late table to be emptied")
	}
}
