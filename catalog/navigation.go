package catalog

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/hupe1980/worklist/geom"
	"github.com/hupe1980/worklist/model"
)

// Navigator moves the current item of a catalog.
type Navigator interface {
	CurrentItem() *model.WorkItem
	GoTo(oid int64) error
	GoFirst() bool
	GoNext() bool
	GoPrevious() bool
	GoNearest(reference orb.Bound) bool
	NearestReference() (orb.Bound, bool)
}

var _ Navigator = (*Cache)(nil)

// Visibility returns which items navigation may visit.
func (c *Cache) Visibility() model.Visibility {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.visibility
}

// SetVisibility changes which items navigation may visit.
func (c *Cache) SetVisibility(v model.Visibility) {
	c.mu.Lock()
	c.visibility = v
	c.mu.Unlock()

	c.NotifyChanged()
}

func (c *Cache) visible(p int) bool {
	return c.visibility.Visible(c.items[p].Status)
}

// setCurrentLocked makes the item at p current and marks it visited.
// c.mu must be held for writing (or c not yet shared).
func (c *Cache) setCurrentLocked(p int) {
	c.current = p
	c.items[p].Visited = true
}

// move runs find under the write lock and makes the result current.
func (c *Cache) move(find func() int) bool {
	c.mu.Lock()
	p := find()
	if p >= 0 {
		c.setCurrentLocked(p)
	}
	c.mu.Unlock()

	if p < 0 {
		return false
	}
	c.NotifyChanged()
	return true
}

// can runs find under the read lock.
func (c *Cache) can(find func() int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return find() >= 0
}

// GoTo makes the item with the given OID current, regardless of visibility.
func (c *Cache) GoTo(oid int64) error {
	p, ok := c.pos[oid]
	if !ok {
		return ErrItemNotFound
	}
	c.move(func() int { return p })
	return nil
}

func (c *Cache) first() int {
	for p := range c.items {
		if c.visible(p) {
			return p
		}
	}
	return -1
}

// next returns the first visited, visible item after the current one.
func (c *Cache) next() int {
	if c.current < 0 {
		return -1
	}
	for p := c.current + 1; p < len(c.items); p++ {
		if c.items[p].Visited && c.visible(p) {
			return p
		}
	}
	return -1
}

// previous returns the last visited, visible item before the current one.
func (c *Cache) previous() int {
	for p := c.current - 1; p >= 0; p-- {
		if c.items[p].Visited && c.visible(p) {
			return p
		}
	}
	return -1
}

// nearest returns the visible, unvisited item whose extent center is closest
// to the center of reference. Ties resolve to the lower OID.
func (c *Cache) nearest(reference orb.Bound) int {
	center := geom.Center(reference)
	best, bestDist := -1, math.Inf(1)

	for p, item := range c.items {
		if p == c.current || item.Visited || item.Extent == nil || !c.visible(p) {
			continue
		}
		if d := geom.Distance(center, geom.Center(*item.Extent)); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

// GoFirst makes the first visible item current.
func (c *Cache) GoFirst() bool { return c.move(c.first) }

// GoNext moves to the next visited, visible item in OID order.
func (c *Cache) GoNext() bool { return c.move(c.next) }

// GoPrevious moves to the previous visited, visible item in OID order.
func (c *Cache) GoPrevious() bool { return c.move(c.previous) }

// GoNearest moves to the closest visible item that has not been visited yet.
func (c *Cache) GoNearest(reference orb.Bound) bool {
	return c.move(func() int { return c.nearest(reference) })
}

// CanGoFirst reports whether GoFirst would move.
func (c *Cache) CanGoFirst() bool { return c.can(c.first) }

// CanGoNext reports whether GoNext would move.
func (c *Cache) CanGoNext() bool { return c.can(c.next) }

// CanGoPrevious reports whether GoPrevious would move.
func (c *Cache) CanGoPrevious() bool { return c.can(c.previous) }

// CanGoNearest reports whether GoNearest would move.
func (c *Cache) CanGoNearest(reference orb.Bound) bool {
	return c.can(func() int { return c.nearest(reference) })
}

// NearestReference returns the extent GoNearest should start from: the
// current item's extent, the area of interest, or the catalog extent.
func (c *Cache) NearestReference() (orb.Bound, bool) {
	if cur := c.CurrentItem(); cur != nil && cur.Extent != nil {
		return *cur.Extent, true
	}
	if c.aoi != nil {
		return c.aoi.Bound(), true
	}
	if c.extent != nil {
		return *c.extent, true
	}
	return orb.Bound{}, false
}
