// Package geom provides the small set of planar operations the work list needs
// on top of github.com/paulmach/orb: extent validation, tolerance padding,
// display rectangles, buffering and WKB conversion.
package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// ErrInvalidExtent is returned for extents with NaN/Inf coordinates or Min > Max.
var ErrInvalidExtent = errors.New("invalid extent")

// NewExtent creates a normalized extent from two corner coordinates.
func NewExtent(xmin, ymin, xmax, ymax float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Min(xmin, xmax), math.Min(ymin, ymax)},
		Max: orb.Point{math.Max(xmin, xmax), math.Max(ymin, ymax)},
	}
}

// ValidateExtent checks xmin <= xmax, ymin <= ymax and finite coordinates.
func ValidateExtent(b orb.Bound) error {
	for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate in %v", ErrInvalidExtent, b)
		}
	}
	if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
		return fmt.Errorf("%w: min exceeds max in %v", ErrInvalidExtent, b)
	}
	return nil
}

// IsEmpty reports whether b is nil or inverted.
func IsEmpty(b *orb.Bound) bool {
	return b == nil || b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1]
}

// Pad expands b by tolerance on every side. Negative tolerances are treated as zero.
func Pad(b orb.Bound, tolerance float64) orb.Bound {
	if tolerance <= 0 {
		return b
	}
	return b.Pad(tolerance)
}

// Overlaps reports whether a and b share at least one point. Touching edges overlap.
func Overlaps(a, b orb.Bound) bool {
	return a.Min[0] <= b.Max[0] && a.Max[0] >= b.Min[0] &&
		a.Min[1] <= b.Max[1] && a.Max[1] >= b.Min[1]
}

// Union returns the smallest extent containing all non-nil extents, or nil.
func Union(extents ...*orb.Bound) *orb.Bound {
	var out *orb.Bound
	for _, e := range extents {
		if IsEmpty(e) {
			continue
		}
		if out == nil {
			u := *e
			out = &u
			continue
		}
		u := out.Union(*e)
		out = &u
	}
	return out
}

// Center returns the center point of b.
func Center(b orb.Bound) orb.Point {
	return b.Center()
}

// Distance is the planar distance between two points.
func Distance(a, b orb.Point) float64 {
	return math.Hypot(a[0]-b[0], a[1]-b[1])
}

// Rectangle synthesizes a closed polygon from an extent.
func Rectangle(b orb.Bound) orb.Polygon {
	return b.ToPolygon()
}

// Buffer returns a display geometry for g. Areal geometries are kept as they
// are; points and lines, which have no area to draw, become their bound padded
// by distance. A nil geometry stays nil.
func Buffer(g orb.Geometry, distance float64) orb.Geometry {
	switch v := g.(type) {
	case nil:
		return nil
	case orb.Polygon:
		return v.Clone()
	case orb.MultiPolygon:
		return v.Clone()
	case orb.Bound:
		return v.Pad(math.Max(distance, 0)).ToPolygon()
	default:
		return Pad(g.Bound(), distance).ToPolygon()
	}
}

// MarshalWKB encodes g as little-endian WKB.
func MarshalWKB(g orb.Geometry) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	return wkb.Marshal(g)
}

// UnmarshalWKB decodes WKB. Empty input decodes to a nil geometry.
func UnmarshalWKB(data []byte) (orb.Geometry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode wkb: %w", err)
	}
	return g, nil
}
