package snapshot

import (
	"context"
	"errors"

	"github.com/paulmach/orb"

	"github.com/hupe1980/worklist/geom"
	"github.com/hupe1980/worklist/model"
)

var (
	// ErrNotFound is returned when no snapshot with the requested name exists.
	ErrNotFound = errors.New("snapshot not found")
	// ErrCorrupt is returned when a snapshot blob cannot be decoded.
	ErrCorrupt = errors.New("corrupt snapshot")
)

// DefaultXYTolerance is used when a snapshot does not specify a tolerance.
const DefaultXYTolerance = 0.001

// Snapshot is the persisted description of one work list.
type Snapshot struct {
	Name             string           `json:"name" yaml:"name"`
	DisplayName      string           `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	TypeName         string           `json:"typeName,omitempty" yaml:"typeName,omitempty"`
	SpatialReference SpatialReference `json:"spatialReference" yaml:"spatialReference"`
	Tables           []TableRef       `json:"tables" yaml:"tables"`
	Items            []ItemState      `json:"items" yaml:"items"`
	// CurrentOID is the oid of the current item; 0 means none.
	CurrentOID     int64     `json:"currentOid,omitempty" yaml:"currentOid,omitempty"`
	AreaOfInterest *Envelope `json:"areaOfInterest,omitempty" yaml:"areaOfInterest,omitempty"`
}

// SpatialReference identifies the coordinate system of all extents.
type SpatialReference struct {
	WKID        int     `json:"wkid" yaml:"wkid"`
	XYTolerance float64 `json:"xyTolerance" yaml:"xyTolerance"`
}

// Tolerance returns XYTolerance or DefaultXYTolerance if unset.
func (sr SpatialReference) Tolerance() float64 {
	if sr.XYTolerance > 0 {
		return sr.XYTolerance
	}
	return DefaultXYTolerance
}

// TableRef is a source table referenced by items.
type TableRef struct {
	ID        int64  `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Workspace string `json:"workspace,omitempty" yaml:"workspace,omitempty"`
}

// ItemState is one persisted work item.
type ItemState struct {
	OID          int64              `json:"oid" yaml:"oid"`
	TableID      int64              `json:"tableId" yaml:"tableId"`
	RowID        int64              `json:"rowId" yaml:"rowId"`
	Status       model.Status       `json:"status" yaml:"status"`
	Visited      bool               `json:"visited,omitempty" yaml:"visited,omitempty"`
	Extent       *Envelope          `json:"extent,omitempty" yaml:"extent,omitempty"`
	GeometryType model.GeometryType `json:"geometryType,omitempty" yaml:"geometryType,omitempty"`
}

// Identity returns the identity of the row the item stands for.
func (s ItemState) Identity() model.Identity {
	return model.Identity{TableID: s.TableID, RowID: s.RowID}
}

// Envelope is a persisted extent.
type Envelope struct {
	XMin float64 `json:"xmin" yaml:"xmin"`
	YMin float64 `json:"ymin" yaml:"ymin"`
	XMax float64 `json:"xmax" yaml:"xmax"`
	YMax float64 `json:"ymax" yaml:"ymax"`
}

// Bound converts the envelope without normalizing it.
func (e Envelope) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e.XMin, e.YMin}, Max: orb.Point{e.XMax, e.YMax}}
}

// EnvelopeOf converts an optional bound. Empty bounds convert to nil.
func EnvelopeOf(b *orb.Bound) *Envelope {
	if geom.IsEmpty(b) {
		return nil
	}
	return &Envelope{XMin: b.Min[0], YMin: b.Min[1], XMax: b.Max[0], YMax: b.Max[1]}
}

// Table returns the table with the given id.
func (s *Snapshot) Table(id int64) (TableRef, bool) {
	for _, t := range s.Tables {
		if t.ID == id {
			return t, true
		}
	}
	return TableRef{}, false
}

// Loader loads snapshots by work list name.
type Loader interface {
	Load(ctx context.Context, name string) (*Snapshot, error)
}

// Saver persists snapshots under their Name.
type Saver interface {
	Save(ctx context.Context, s *Snapshot) error
}
