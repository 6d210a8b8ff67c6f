package model

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/paulmach/orb"
)

// Identity identifies the authoritative row a work item represents.
// It is comparable and can be used directly as a map key.
type Identity struct {
	TableID int64
	RowID   int64
}

// String returns a string representation of the Identity.
func (id Identity) String() string {
	return fmt.Sprintf("Row(%d:%d)", id.TableID, id.RowID)
}

// TableIdentity identifies a source table.
type TableIdentity struct {
	ID   int64
	Name string
}

// UniqueTableID returns a table id that stays stable across workspaces.
//
// Unregistered tables (id < 0) are identified by the hash of their name only,
// so relative workspace paths may change. Registered tables combine the name
// hash with the table id.
func UniqueTableID(name string, id int64) int64 {
	h := hashString(name)
	if id < 0 {
		return h
	}
	return h*31 + id
}

func hashString(s string) int64 {
	var h int64 = 23
	for _, c := range s {
		h = h*31 + int64(c)
	}
	return h
}

// Status is the review state of a work item.
type Status uint8

const (
	// StatusPending marks an item that still needs review.
	StatusPending Status = iota
	// StatusDone marks a reviewed item.
	StatusDone
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDone:
		return "done"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus parses "pending"/"todo"/"0" and "done"/"1".
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "todo", "0":
		return StatusPending, nil
	case "done", "1":
		return StatusDone, nil
	default:
		return 0, fmt.Errorf("invalid status %q", s)
	}
}

// Visibility controls which items navigation may visit.
type Visibility uint8

const (
	// VisibilityTodo only exposes pending items to navigation.
	VisibilityTodo Visibility = iota
	// VisibilityAll exposes every item.
	VisibilityAll
)

// Visible reports whether an item with the given status is visible.
func (v Visibility) Visible(s Status) bool {
	return v == VisibilityAll || s == StatusPending
}

// GeometryType is the shape kind of the source feature.
type GeometryType uint8

const (
	GeometryUnknown GeometryType = iota
	GeometryPoint
	GeometryPolyline
	GeometryPolygon
	GeometryMultipatch
)

// String returns the lower-case name of the geometry type.
func (t GeometryType) String() string {
	switch t {
	case GeometryPoint:
		return "point"
	case GeometryPolyline:
		return "polyline"
	case GeometryPolygon:
		return "polygon"
	case GeometryMultipatch:
		return "multipatch"
	default:
		return "unknown"
	}
}

// GeometryTypeOf derives the geometry type from an orb geometry.
func GeometryTypeOf(g orb.Geometry) GeometryType {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return GeometryPoint
	case orb.LineString, orb.MultiLineString, orb.Ring:
		return GeometryPolyline
	case orb.Polygon, orb.MultiPolygon, orb.Bound:
		return GeometryPolygon
	default:
		return GeometryUnknown
	}
}

// buffered wraps a fetched geometry. A nil *buffered means "never fetched";
// a non-nil one with a nil Geometry means "fetched but empty".
type buffered struct {
	geometry orb.Geometry
}

// WorkItem is a single reviewable unit wrapping one authoritative row.
//
// Status and Visited are owned by the catalog holding the item and must only
// be changed through it. The buffered geometry may be replaced concurrently
// by a refresh worker.
type WorkItem struct {
	OID          int64
	Identity     Identity
	Status       Status
	Visited      bool
	Extent       *orb.Bound
	GeometryType GeometryType

	geometry atomic.Pointer[buffered]
}

// NewWorkItem creates a pending, unvisited item without extent.
func NewWorkItem(oid int64, id Identity) *WorkItem {
	return &WorkItem{OID: oid, Identity: id}
}

// BufferedGeometry returns the cached geometry.
// ok is false if no refresh has populated it yet.
func (w *WorkItem) BufferedGeometry() (g orb.Geometry, ok bool) {
	b := w.geometry.Load()
	if b == nil {
		return nil, false
	}
	return b.geometry, true
}

// HasBufferedGeometry reports whether a refresh has populated the geometry.
func (w *WorkItem) HasBufferedGeometry() bool {
	return w.geometry.Load() != nil
}

// SetBufferedGeometry publishes g. The value must be fully built before the call
// and must not be mutated afterwards.
func (w *WorkItem) SetBufferedGeometry(g orb.Geometry) {
	w.geometry.Store(&buffered{geometry: g})
}

// ClearBufferedGeometry resets the item to "never fetched".
func (w *WorkItem) ClearBufferedGeometry() {
	w.geometry.Store(nil)
}

// String returns a string representation of the WorkItem.
func (w *WorkItem) String() string {
	return fmt.Sprintf("Item(oid=%d %s %s)", w.OID, w.Identity, w.Status)
}
