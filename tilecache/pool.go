package tilecache

import "github.com/gogpu/deepzoom/surface"

// TakeWarm rescues a surface for url from the warm pool or the late
// table, removing it from there. The caller is expected to have
// registered url already and to Bind the returned surface.
func (c *Cache) TakeWarm(url string) (surface.Surface, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, w := range c.warm {
		if w.url != url {
			continue
		}
		c.warm = append(c.warm[:i], c.warm[i+1:]...)
		c.warmReuses.Add(1)
		return w.surface, true
	}

	if l, ok := c.late[url]; ok {
		delete(c.late, url)
		c.warmReuses.Add(1)
		return l.surface, true
	}

	return nil, false
}

// PutLate parks a decode result whose originating request was cancelled
// or superseded. The surface survives at least one full sweep interval;
// if nothing touches it by then, SweepLate destroys it.
func (c *Cache) PutLate(url string, s surface.Surface) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.late[url]; ok {
		c.closeSurface(url, old.surface)
	}
	c.lateArrivals.Add(1)
	c.late[url] = &lateEntry{surface: s, touched: true}
}

// SweepLate runs one sweep of the late table: entries untouched since the
// previous sweep are destroyed, the rest are marked for the next round.
// The controller drives this at a fixed interval. Returns the number of
// surfaces destroyed.
func (c *Cache) SweepLate() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	destroyed := 0
	for url, l := range c.late {
		if l.touched {
			l.touched = false
			continue
		}
		delete(c.late, url)
		c.evictions.Add(1)
		c.closeSurface(url, l.surface)
		destroyed++
	}
	return destroyed
}

// WarmLen returns the number of surfaces currently in the warm pool.
func (c *Cache) WarmLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.warm)
}

// LateLen returns the number of parked late arrivals.
func (c *Cache) LateLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.late)
}

// Clear destroys everything the cache owns: live unreferenced entries,
// the warm pool, and the late table. Entries still referenced are kept
// and logged, honoring the rule that a referenced resource is never
// destroyed.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for url, e := range c.entries {
		if e.refcount > 0 {
			logger().Warn("tilecache: clear skipping referenced entry",
				"url", url, "refcount", e.refcount)
			continue
		}
		delete(c.entries, url)
		if e.surface != nil {
			c.closeSurface(url, e.surface)
		}
	}
	for _, w := range c.warm {
		c.closeSurface(w.url, w.surface)
	}
	c.warm = nil
	for url, l := range c.late {
		c.closeSurface(url, l.surface)
		delete(c.late, url)
	}
}
