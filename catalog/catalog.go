package catalog

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/paulmach/orb"

	"github.com/hupe1980/worklist/geom"
	"github.com/hupe1980/worklist/index"
	"github.com/hupe1980/worklist/metric"
	"github.com/hupe1980/worklist/model"
	"github.com/hupe1980/worklist/snapshot"
)

// Kind distinguishes display-only catalogs from catalogs backed by a live store.
type Kind uint8

const (
	// KindSnapshot catalogs are display-only; they never hold buffered geometry.
	KindSnapshot Kind = iota
	// KindLive catalogs receive buffered geometry from refresh workers.
	KindLive
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindLive:
		return "live"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// SpatialFilter selects items whose extent overlaps Extent padded by Tolerance.
// A nil or empty Extent selects all items.
type SpatialFilter struct {
	Extent    *orb.Bound
	Tolerance float64
}

// ItemState is the review state of one item as seen by the catalog.
type ItemState struct {
	Status  model.Status
	Visited bool
	Current bool
}

// Catalog is the read and lifecycle surface of a work item catalog.
// Implementations must be safe for concurrent use.
type Catalog interface {
	Name() string
	DisplayName() string
	Kind() Kind
	Count() int
	Extent() *orb.Bound
	SpatialReference() snapshot.SpatialReference

	// Items returns all items in OID order.
	Items() []*model.WorkItem
	// Lookup returns the item with the given OID.
	Lookup(oid int64) (*model.WorkItem, bool)
	// Search returns the items with the given OIDs in ascending order; a nil
	// ids slice returns all items. Unknown OIDs are omitted.
	Search(ids []int64) []*model.WorkItem
	// SearchSpatial returns the items matching filter and, if non-nil, status.
	SearchSpatial(filter SpatialFilter, status *model.Status) []*model.WorkItem

	CurrentItem() *model.WorkItem
	ItemState(item *model.WorkItem) (ItemState, error)
	ItemDisplayGeometry(item *model.WorkItem) orb.Geometry
	BufferedGeometry(item *model.WorkItem) (orb.Geometry, bool, error)

	SetStatus(item *model.WorkItem, status model.Status) error
	SetVisited(item *model.WorkItem, visited bool) error

	// OnChanged registers fn for catalog-level change events.
	OnChanged(fn func()) (unsubscribe func())
	NotifyChanged()
}

// Options configures a catalog.
type Options struct {
	Kind       Kind
	Visibility model.Visibility
	Logger     *slog.Logger
	Metrics    metric.Collector
}

// Cache is the in-memory Catalog implementation.
type Cache struct {
	opts    Options
	logger  *slog.Logger
	metrics metric.Collector

	name     string
	typeName string
	sr       snapshot.SpatialReference
	tables   []snapshot.TableRef
	aoi      *snapshot.Envelope
	extent   *orb.Bound

	// immutable after construction
	items      []*model.WorkItem // sorted by OID
	pos        map[int64]int
	byIdentity map[model.Identity]int
	grid       *index.Grid

	mu          sync.RWMutex
	displayName string
	visibility  model.Visibility
	current     int // position in items, -1 if none
	pending     *roaring.Bitmap
	done        *roaring.Bitmap

	listenersMu  sync.Mutex
	listeners    []listener
	nextListener uint64
}

type listener struct {
	id uint64
	fn func()
}

var _ Catalog = (*Cache)(nil)

// New builds a catalog from a snapshot.
func New(snap *snapshot.Snapshot, optFns ...func(o *Options)) (*Cache, error) {
	opts := Options{Kind: KindSnapshot, Visibility: model.VisibilityTodo}
	for _, fn := range optFns {
		fn(&opts)
	}

	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrMalformedSnapshot)
	}
	if snap.Name == "" {
		return nil, fmt.Errorf("%w: snapshot without name", ErrMalformedSnapshot)
	}

	c := &Cache{
		opts:        opts,
		logger:      opts.Logger,
		metrics:     metric.OrNoop(opts.Metrics),
		name:        snap.Name,
		displayName: snap.DisplayName,
		typeName:    snap.TypeName,
		sr:          snap.SpatialReference,
		tables:      slices.Clone(snap.Tables),
		aoi:         snap.AreaOfInterest,
		visibility:  opts.Visibility,
		current:     -1,
		pos:         make(map[int64]int, len(snap.Items)),
		byIdentity:  make(map[model.Identity]int, len(snap.Items)),
		pending:     roaring.New(),
		done:        roaring.New(),
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.displayName == "" {
		c.displayName = snap.Name
	}

	// Items reference tables by their stable id; older snapshots use the
	// raw table id. Both resolve to the raw id.
	tables := make(map[int64]int64, 2*len(snap.Tables))
	for _, t := range snap.Tables {
		if _, ok := tables[t.ID]; !ok {
			tables[t.ID] = t.ID
		}
	}
	for _, t := range snap.Tables {
		tables[model.UniqueTableID(t.Name, t.ID)] = t.ID
	}

	states := slices.Clone(snap.Items)
	slices.SortFunc(states, func(a, b snapshot.ItemState) int {
		switch {
		case a.OID < b.OID:
			return -1
		case a.OID > b.OID:
			return 1
		default:
			return 0
		}
	})

	c.items = make([]*model.WorkItem, 0, len(states))
	entries := make([]index.Entry, 0, len(states))

	for i, s := range states {
		tableID, ok := tables[s.TableID]
		if !ok {
			return nil, &SnapshotError{OID: s.OID, Reason: fmt.Sprintf("table %d", s.TableID), Err: ErrUnknownTable}
		}
		if s.OID <= 0 {
			return nil, &SnapshotError{OID: s.OID, Reason: "oid must be positive", Err: ErrMalformedSnapshot}
		}
		if _, dup := c.pos[s.OID]; dup {
			return nil, &SnapshotError{OID: s.OID, Reason: "duplicate oid", Err: ErrMalformedSnapshot}
		}
		id := model.Identity{TableID: tableID, RowID: s.RowID}
		if _, dup := c.byIdentity[id]; dup {
			return nil, &SnapshotError{OID: s.OID, Reason: "duplicate " + id.String(), Err: ErrMalformedSnapshot}
		}
		if s.Status != model.StatusPending && s.Status != model.StatusDone {
			return nil, &SnapshotError{OID: s.OID, Reason: s.Status.String(), Err: ErrMalformedSnapshot}
		}

		item := model.NewWorkItem(s.OID, id)
		item.Status = s.Status
		item.Visited = s.Visited
		item.GeometryType = s.GeometryType

		if s.Extent != nil {
			b := s.Extent.Bound()
			if err := geom.ValidateExtent(b); err != nil {
				return nil, &SnapshotError{OID: s.OID, Reason: err.Error(), Err: ErrMalformedSnapshot}
			}
			item.Extent = &b
			entries = append(entries, index.Entry{Key: uint32(i), Extent: b})
			c.extent = geom.Union(c.extent, &b)
		}

		c.pos[s.OID] = i
		c.byIdentity[id] = i
		c.items = append(c.items, item)
		c.statusBitmap(s.Status).Add(uint32(i))
	}

	c.grid = index.Build(entries)

	if snap.CurrentOID != 0 {
		if p, ok := c.pos[snap.CurrentOID]; ok {
			c.setCurrentLocked(p)
		} else {
			c.logger.Warn("current item not in snapshot", "worklist", c.name, "oid", snap.CurrentOID)
		}
	}

	c.logger.Debug("catalog built", "worklist", c.name, "items", len(c.items), "indexed", c.grid.Len())

	return c, nil
}

func (c *Cache) statusBitmap(s model.Status) *roaring.Bitmap {
	if s == model.StatusDone {
		return c.done
	}
	return c.pending
}

// Name returns the unique work list name.
func (c *Cache) Name() string { return c.name }

// DisplayName returns the user-facing name.
func (c *Cache) DisplayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.displayName
}

// Rename changes the display name. The registry key (Name) is unchanged.
func (c *Cache) Rename(displayName string) {
	c.mu.Lock()
	c.displayName = displayName
	c.mu.Unlock()

	c.NotifyChanged()
}

// Kind returns the catalog kind.
func (c *Cache) Kind() Kind { return c.opts.Kind }

// Count returns the number of items.
func (c *Cache) Count() int { return len(c.items) }

// Extent returns the union of all item extents, or nil if no item has one.
func (c *Cache) Extent() *orb.Bound {
	if c.extent == nil {
		return nil
	}
	e := *c.extent
	return &e
}

// SpatialReference returns the spatial reference of all extents.
func (c *Cache) SpatialReference() snapshot.SpatialReference { return c.sr }

// Items returns all items in OID order.
func (c *Cache) Items() []*model.WorkItem {
	return slices.Clone(c.items)
}

// Lookup returns the item with the given OID.
func (c *Cache) Lookup(oid int64) (*model.WorkItem, bool) {
	p, ok := c.pos[oid]
	if !ok {
		return nil, false
	}
	return c.items[p], true
}

// Search implements Catalog.
func (c *Cache) Search(ids []int64) []*model.WorkItem {
	start := time.Now()

	if ids == nil {
		out := c.Items()
		c.metrics.RecordQuery("all", len(out), time.Since(start))
		return out
	}

	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := make([]*model.WorkItem, 0, len(sorted))
	for _, id := range sorted {
		i, found := slices.BinarySearchFunc(c.items, id, func(item *model.WorkItem, oid int64) int {
			switch {
			case item.OID < oid:
				return -1
			case item.OID > oid:
				return 1
			default:
				return 0
			}
		})
		if found {
			out = append(out, c.items[i])
		}
	}

	c.metrics.RecordQuery("ids", len(out), time.Since(start))
	return out
}

// SearchSpatial implements Catalog.
func (c *Cache) SearchSpatial(filter SpatialFilter, status *model.Status) []*model.WorkItem {
	start := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*model.WorkItem

	if geom.IsEmpty(filter.Extent) {
		out = make([]*model.WorkItem, 0, len(c.items))
		for _, item := range c.items {
			if status == nil || item.Status == *status {
				out = append(out, item)
			}
		}
		c.metrics.RecordQuery("all", len(out), time.Since(start))
		return out
	}

	var attr *roaring.Bitmap
	if status != nil {
		attr = c.statusBitmap(*status)
	}

	keys := c.grid.QueryFiltered(*filter.Extent, filter.Tolerance, attr)
	out = make([]*model.WorkItem, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.items[k])
	}

	c.metrics.RecordQuery("spatial", len(out), time.Since(start))
	return out
}

// CurrentItem returns the current item or nil.
func (c *Cache) CurrentItem() *model.WorkItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current < 0 {
		return nil
	}
	return c.items[c.current]
}

// position returns the position of item, or -1 if it is not part of the catalog.
func (c *Cache) position(item *model.WorkItem) int {
	if item == nil {
		return -1
	}
	p, ok := c.pos[item.OID]
	if !ok || c.items[p] != item {
		return -1
	}
	return p
}

// ItemState returns the review state of item.
func (c *Cache) ItemState(item *model.WorkItem) (ItemState, error) {
	p := c.position(item)
	if p < 0 {
		return ItemState{}, ErrForeignItem
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return ItemState{Status: item.Status, Visited: item.Visited, Current: p == c.current}, nil
}

// ItemDisplayGeometry returns the buffered geometry if one is cached, the
// rectangle of the item extent otherwise, or nil if the item has neither.
func (c *Cache) ItemDisplayGeometry(item *model.WorkItem) orb.Geometry {
	if item == nil {
		return nil
	}
	if g, ok := item.BufferedGeometry(); ok && g != nil {
		return g
	}
	if item.Extent != nil {
		return geom.Rectangle(*item.Extent)
	}
	return nil
}

// BufferedGeometry returns the cached geometry of item. ok is false if no
// refresh has populated it yet. Snapshot catalogs return ErrUnsupported.
func (c *Cache) BufferedGeometry(item *model.WorkItem) (orb.Geometry, bool, error) {
	if c.opts.Kind == KindSnapshot {
		return nil, false, ErrUnsupported
	}
	if c.position(item) < 0 {
		return nil, false, ErrForeignItem
	}
	g, ok := item.BufferedGeometry()
	return g, ok, nil
}

// SetStatus changes the status of item and emits one changed event.
func (c *Cache) SetStatus(item *model.WorkItem, status model.Status) error {
	p := c.position(item)
	if p < 0 {
		return ErrForeignItem
	}
	if status != model.StatusPending && status != model.StatusDone {
		return fmt.Errorf("invalid status %s", status)
	}

	c.mu.Lock()
	if item.Status != status {
		c.statusBitmap(item.Status).Remove(uint32(p))
		c.statusBitmap(status).Add(uint32(p))
		item.Status = status
	}
	c.mu.Unlock()

	c.metrics.RecordStatusChange(status)
	c.NotifyChanged()
	return nil
}

// SetVisited changes the visited flag of item and emits one changed event.
func (c *Cache) SetVisited(item *model.WorkItem, visited bool) error {
	if c.position(item) < 0 {
		return ErrForeignItem
	}

	c.mu.Lock()
	item.Visited = visited
	c.mu.Unlock()

	c.NotifyChanged()
	return nil
}

// OnChanged registers fn for change events. Listeners run synchronously in
// registration order on the goroutine that caused the change.
func (c *Cache) OnChanged(fn func()) (unsubscribe func()) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	c.nextListener++
	id := c.nextListener
	c.listeners = append(c.listeners, listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenersMu.Lock()
			defer c.listenersMu.Unlock()
			c.listeners = slices.DeleteFunc(c.listeners, func(l listener) bool { return l.id == id })
		})
	}
}

// NotifyChanged emits a changed event.
func (c *Cache) NotifyChanged() {
	c.listenersMu.Lock()
	listeners := slices.Clone(c.listeners)
	c.listenersMu.Unlock()

	for _, l := range listeners {
		l.fn()
	}
}
