package index

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/worklist/geom"
)

func TestGrid_Query(t *testing.T) {
	g := Build([]Entry{
		{Key: 1, Extent: geom.NewExtent(0, 0, 10, 10)},
		{Key: 2, Extent: geom.NewExtent(20, 20, 30, 30)},
	})
	require.Equal(t, 2, g.Len())

	tests := []struct {
		name      string
		extent    orb.Bound
		tolerance float64
		want      []uint32
	}{
		{"partial overlap", geom.NewExtent(5, 5, 15, 15), 0, []uint32{1}},
		{"covers both", geom.NewExtent(-1, -1, 31, 31), 0, []uint32{1, 2}},
		{"disjoint", geom.NewExtent(12, 12, 18, 18), 0, []uint32{}},
		{"touching edge", geom.NewExtent(10, 10, 12, 12), 0, []uint32{1}},
		{"within tolerance", geom.NewExtent(10.0005, 0, 11, 1), 0.001, []uint32{1}},
		{"beyond tolerance", geom.NewExtent(10.01, 0, 11, 1), 0.001, []uint32{}},
		{"outside bounds", geom.NewExtent(100, 100, 200, 200), 0, []uint32{}},
		{"point query", geom.NewExtent(25, 25, 25, 25), 0, []uint32{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Query(tt.extent, tt.tolerance))
		})
	}
}

func TestGrid_QueryFiltered(t *testing.T) {
	g := Build([]Entry{
		{Key: 1, Extent: geom.NewExtent(0, 0, 1, 1)},
		{Key: 2, Extent: geom.NewExtent(0, 0, 1, 1)},
		{Key: 3, Extent: geom.NewExtent(0, 0, 1, 1)},
	})

	all := geom.NewExtent(0, 0, 1, 1)
	assert.Equal(t, []uint32{1, 3}, g.QueryFiltered(all, 0, roaring.BitmapOf(1, 3, 99)))
	assert.Equal(t, []uint32{}, g.QueryFiltered(all, 0, roaring.New()))
	assert.Equal(t, []uint32{1, 2, 3}, g.QueryFiltered(all, 0, nil))
}

func TestGrid_Empty(t *testing.T) {
	for _, entries := range [][]Entry{nil, {}} {
		g := Build(entries)
		require.NotNil(t, g)
		assert.Equal(t, 0, g.Len())
		assert.Empty(t, g.Query(geom.NewExtent(0, 0, 1, 1), 1))
		assert.NotNil(t, g.Query(geom.NewExtent(0, 0, 1, 1), 1))
		assert.Empty(t, g.QueryAll())

		_, ok := g.Bounds()
		assert.False(t, ok)
	}
}

func TestGrid_InvalidInput(t *testing.T) {
	inverted := orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{0, 0}}

	g := Build([]Entry{
		{Key: 1, Extent: geom.NewExtent(0, 0, 1, 1)},
		{Key: 2, Extent: inverted},
	})
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, []uint32{1}, g.QueryAll())
	assert.Empty(t, g.Query(inverted, 0))
}

func TestGrid_IdenticalPoints(t *testing.T) {
	var entries []Entry
	for i := uint32(0); i < 50; i++ {
		entries = append(entries, Entry{Key: i, Extent: geom.NewExtent(3, 3, 3, 3)})
	}
	g := Build(entries)

	assert.Len(t, g.Query(geom.NewExtent(3, 3, 3, 3), 0), 50)
	assert.Empty(t, g.Query(geom.NewExtent(4, 4, 5, 5), 0.5))
}

func TestGrid_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	entries := make([]Entry, 2000)
	for i := range entries {
		x, y := rng.Float64()*1000, rng.Float64()*1000
		w, h := rng.Float64()*20, rng.Float64()*20
		entries[i] = Entry{Key: uint32(i * 3), Extent: geom.NewExtent(x, y, x+w, y+h)}
	}
	// a far outlier stretches the bounds
	entries = append(entries, Entry{Key: 1, Extent: geom.NewExtent(1e6, 1e6, 1e6+1, 1e6+1)})

	g := Build(entries)

	for i := 0; i < 200; i++ {
		x, y := rng.Float64()*1100-50, rng.Float64()*1100-50
		q := geom.NewExtent(x, y, x+rng.Float64()*100, y+rng.Float64()*100)
		tol := rng.Float64()

		want := []uint32{}
		padded := geom.Pad(q, tol)
		for _, e := range entries {
			if geom.Overlaps(padded, e.Extent) {
				want = append(want, e.Key)
			}
		}
		sort.Slice(want, func(a, b int) bool { return want[a] < want[b] })

		assert.Equal(t, want, g.Query(q, tol))
	}
}

func TestGrid_ContainedItemsAreFound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	entries := make([]Entry, 500)
	for i := range entries {
		x, y := rng.Float64()*100, rng.Float64()*100
		entries[i] = Entry{Key: uint32(i), Extent: geom.NewExtent(x, y, x+rng.Float64(), y+rng.Float64())}
	}
	g := Build(entries)

	for _, e := range entries {
		assert.Contains(t, g.Query(e.Extent, 0), e.Key)
	}
}

func TestGrid_HugeQueryBox(t *testing.T) {
	g := Build([]Entry{
		{Key: 1, Extent: geom.NewExtent(0, 0, 10, 10)},
		{Key: 2, Extent: geom.NewExtent(20, 20, 30, 30)},
	})

	assert.Equal(t, []uint32{1, 2}, g.Query(geom.NewExtent(-1e22, -1e22, 1e22, 1e22), 0))
	assert.Equal(t, []uint32{1, 2}, g.Query(geom.NewExtent(-1e300, -1e300, 1e300, 1e300), 0))
}

func TestGrid_CollinearPoints(t *testing.T) {
	entries := make([]Entry, 100)
	for i := range entries {
		x := float64(i)
		entries[i] = Entry{Key: uint32(i), Extent: geom.NewExtent(x, 0, x, 0)}
	}
	g := Build(entries)

	assert.Greater(t, g.cols, 1)
	assert.Equal(t, 1, g.rows)

	assert.Equal(t, []uint32{10, 11, 12}, g.Query(geom.NewExtent(10, -1, 12, 1), 0))
	assert.Equal(t, []uint32{99}, g.Query(geom.NewExtent(99, 0, 200, 0), 0))
	assert.Equal(t, []uint32{}, g.Query(geom.NewExtent(10.2, 0, 10.8, 0), 0))

	for _, e := range entries {
		assert.Equal(t, []uint32{e.Key}, g.Query(e.Extent, 0))
	}
}
