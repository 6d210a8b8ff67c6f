package index

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/paulmach/orb"

	"github.com/hupe1980/worklist/geom"
)

// MaxCellsPerAxis caps the grid resolution on each axis.
const MaxCellsPerAxis = 1024

// Entry is a key with its extent.
type Entry struct {
	Key    uint32
	Extent orb.Bound
}

// Grid is an immutable uniform-grid spatial index.
// It is safe for concurrent use.
type Grid struct {
	entries []Entry
	bounds  orb.Bound

	cols, rows   int
	cellW, cellH float64
	cells        [][]uint32 // entry positions per cell, row-major

	keys *roaring.Bitmap
}

// Build creates a grid over entries. Entries with an invalid extent are skipped.
func Build(entries []Entry) *Grid {
	g := &Grid{keys: roaring.New()}

	for _, e := range entries {
		if geom.ValidateExtent(e.Extent) != nil {
			continue
		}
		if len(g.entries) == 0 {
			g.bounds = e.Extent
		} else {
			g.bounds = g.bounds.Union(e.Extent)
		}
		g.entries = append(g.entries, e)
		g.keys.Add(e.Key)
	}

	if len(g.entries) == 0 {
		return g
	}

	g.layout()

	g.cells = make([][]uint32, g.cols*g.rows)
	for pos, e := range g.entries {
		c0, r0 := g.cell(e.Extent.Min)
		c1, r1 := g.cell(e.Extent.Max)
		for r := r0; r <= r1; r++ {
			for c := c0; c <= c1; c++ {
				i := r*g.cols + c
				g.cells[i] = append(g.cells[i], uint32(pos))
			}
		}
	}

	return g
}

// layout picks the cell size and grid dimensions.
func (g *Grid) layout() {
	width := g.bounds.Max[0] - g.bounds.Min[0]
	height := g.bounds.Max[1] - g.bounds.Min[1]

	var sum float64
	for _, e := range g.entries {
		sum += (e.Extent.Max[0] - e.Extent.Min[0] + e.Extent.Max[1] - e.Extent.Min[1]) / 2
	}
	mean := sum / float64(len(g.entries))

	n := float64(len(g.entries))
	var size float64
	if area := width * height; area > 0 {
		size = math.Max(mean, math.Sqrt(area/n))
	} else {
		// collinear data spreads along a single axis
		size = math.Max(mean, math.Max(width, height)/n)
	}
	if size <= 0 {
		size = math.Max(width, height)
	}

	g.cols, g.cellW = axis(width, size)
	g.rows, g.cellH = axis(height, size)
}

func axis(length, size float64) (int, float64) {
	if length <= 0 || size <= 0 {
		return 1, 0
	}
	n := int(math.Ceil(length / size))
	if n < 1 {
		n = 1
	}
	if n > MaxCellsPerAxis {
		n = MaxCellsPerAxis
	}
	return n, length / float64(n)
}

// cell returns the column and row containing p, clamped to the grid.
func (g *Grid) cell(p orb.Point) (int, int) {
	return slot(p[0]-g.bounds.Min[0], g.cellW, g.cols), slot(p[1]-g.bounds.Min[1], g.cellH, g.rows)
}

func slot(offset, size float64, n int) int {
	if size <= 0 || offset <= 0 {
		return 0
	}
	// clamp before converting, huge offsets overflow int
	f := offset / size
	if f >= float64(n) {
		return n - 1
	}
	return int(f)
}

// Len returns the number of indexed entries.
func (g *Grid) Len() int {
	return len(g.entries)
}

// Bounds returns the union of all indexed extents. ok is false for an empty index.
func (g *Grid) Bounds() (orb.Bound, bool) {
	return g.bounds, len(g.entries) > 0
}

// Query returns the keys whose extent overlaps extent padded by tolerance.
func (g *Grid) Query(extent orb.Bound, tolerance float64) []uint32 {
	return g.QueryFiltered(extent, tolerance, nil)
}

// QueryFiltered is Query restricted to keys contained in filter.
// A nil filter does not restrict the result.
func (g *Grid) QueryFiltered(extent orb.Bound, tolerance float64, filter *roaring.Bitmap) []uint32 {
	if len(g.entries) == 0 || geom.ValidateExtent(extent) != nil {
		return []uint32{}
	}

	q := geom.Pad(extent, tolerance)
	if !geom.Overlaps(q, g.bounds) {
		return []uint32{}
	}

	c0, r0 := g.cell(q.Min)
	c1, r1 := g.cell(q.Max)

	candidates := roaring.New()
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			candidates.AddMany(g.cells[r*g.cols+c])
		}
	}

	result := roaring.New()
	it := candidates.Iterator()
	for it.HasNext() {
		e := g.entries[it.Next()]
		if filter != nil && !filter.Contains(e.Key) {
			continue
		}
		if geom.Overlaps(q, e.Extent) {
			result.Add(e.Key)
		}
	}

	return result.ToArray()
}

// QueryAll returns every indexed key in ascending order.
func (g *Grid) QueryAll() []uint32 {
	return g.keys.ToArray()
}
