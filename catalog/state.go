package catalog

import (
	"slices"

	"github.com/hupe1980/worklist/model"
	"github.com/hupe1980/worklist/snapshot"
	"github.com/hupe1980/worklist/statestore"
)

// States exports the review state of all items.
func (c *Cache) States() statestore.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()

	doc := statestore.NewDocument()
	for _, item := range c.items {
		doc.States[item.Identity] = statestore.State{Status: item.Status, Visited: item.Visited}
	}
	if c.current >= 0 {
		id := c.items[c.current].Identity
		doc.Current = &id
	}
	return doc
}

// ApplyStates imports review state. Identities unknown to the catalog are
// ignored; items missing from doc keep their state. Returns the number of
// items updated.
func (c *Cache) ApplyStates(doc statestore.Document) int {
	c.mu.Lock()

	applied := 0
	for id, s := range doc.States {
		p, ok := c.byIdentity[id]
		if !ok || (s.Status != model.StatusPending && s.Status != model.StatusDone) {
			continue
		}
		item := c.items[p]
		if item.Status != s.Status {
			c.statusBitmap(item.Status).Remove(uint32(p))
			c.statusBitmap(s.Status).Add(uint32(p))
			item.Status = s.Status
		}
		item.Visited = s.Visited
		applied++
	}

	if doc.Current != nil {
		if p, ok := c.byIdentity[*doc.Current]; ok {
			c.setCurrentLocked(p)
		}
	}

	c.mu.Unlock()

	c.NotifyChanged()
	return applied
}

// Snapshot serializes the catalog back into a snapshot.
func (c *Cache) Snapshot() *snapshot.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := &snapshot.Snapshot{
		Name:             c.name,
		DisplayName:      c.displayName,
		TypeName:         c.typeName,
		SpatialReference: c.sr,
		Tables:           slices.Clone(c.tables),
		Items:            make([]snapshot.ItemState, 0, len(c.items)),
		AreaOfInterest:   c.aoi,
	}

	for _, item := range c.items {
		s.Items = append(s.Items, snapshot.ItemState{
			OID:          item.OID,
			TableID:      item.Identity.TableID,
			RowID:        item.Identity.RowID,
			Status:       item.Status,
			Visited:      item.Visited,
			Extent:       snapshot.EnvelopeOf(item.Extent),
			GeometryType: item.GeometryType,
		})
	}
	if c.current >= 0 {
		s.CurrentOID = c.items[c.current].OID
	}
	return s
}
