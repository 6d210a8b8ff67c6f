package testutil

import (
	"fmt"
	"math/rand"
	"slices"
	"sync"

	"github.com/paulmach/orb"

	"github.com/hupe1980/worklist/gdb"
	"github.com/hupe1980/worklist/geom"
	"github.com/hupe1980/worklist/model"
	"github.com/hupe1980/worklist/snapshot"
)

// World is a square area used as default generation bound.
var World = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1000, 1000}}

// DefaultTableID is the table all generated items reference.
const DefaultTableID int64 = 1

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Extent returns a random extent inside within whose edges are at most
// maxSize long. maxSize 0 yields point extents.
func (r *RNG) Extent(within orb.Bound, maxSize float64) orb.Bound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.extent(within, maxSize)
}

func (r *RNG) extent(within orb.Bound, maxSize float64) orb.Bound {
	w := r.rand.Float64() * maxSize
	h := r.rand.Float64() * maxSize
	x := within.Min[0] + r.rand.Float64()*max(within.Max[0]-within.Min[0]-w, 0)
	y := within.Min[1] + r.rand.Float64()*max(within.Max[1]-within.Min[1]-h, 0)
	return geom.NewExtent(x, y, x+w, y+h)
}

// Items generates n pending items with OIDs 1..n and random extents inside
// within. Roughly one item in twenty has no extent.
func (r *RNG) Items(n int, within orb.Bound) []snapshot.ItemState {
	r.mu.Lock()
	defer r.mu.Unlock()

	maxSize := (within.Max[0] - within.Min[0]) / 50
	items := make([]snapshot.ItemState, 0, n)
	for i := 1; i <= n; i++ {
		s := snapshot.ItemState{
			OID:          int64(i),
			TableID:      DefaultTableID,
			RowID:        int64(1000 + i),
			GeometryType: model.GeometryPolygon,
		}
		if r.rand.Intn(20) != 0 {
			b := r.extent(within, maxSize)
			s.Extent = snapshot.EnvelopeOf(&b)
		}
		items = append(items, s)
	}
	return items
}

// Snapshot generates a snapshot named name with n random items.
func (r *RNG) Snapshot(name string, n int, within orb.Bound) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Name:        name,
		DisplayName: fmt.Sprintf("%s (%d)", name, n),
		TypeName:    "issues",
		SpatialReference: snapshot.SpatialReference{
			WKID:        3857,
			XYTolerance: snapshot.DefaultXYTolerance,
		},
		Tables: []snapshot.TableRef{{ID: DefaultTableID, Name: "ISSUES", Workspace: "memory"}},
		Items:  r.Items(n, within),
	}
}

// GridSnapshot returns a snapshot with cols*rows unit squares laid out on a
// grid with the given spacing. OIDs run row by row starting at 1.
func GridSnapshot(name string, cols, rows int, spacing float64) *snapshot.Snapshot {
	snap := &snapshot.Snapshot{
		Name:   name,
		Tables: []snapshot.TableRef{{ID: DefaultTableID, Name: "ISSUES"}},
	}
	oid := int64(1)
	for y := range rows {
		for x := range cols {
			b := geom.NewExtent(float64(x)*spacing, float64(y)*spacing, float64(x)*spacing+1, float64(y)*spacing+1)
			snap.Items = append(snap.Items, snapshot.ItemState{
				OID:     oid,
				TableID: DefaultTableID,
				RowID:   oid,
				Extent:  snapshot.EnvelopeOf(&b),
			})
			oid++
		}
	}
	return snap
}

// Populate stores the extent rectangle of every item with an extent in store.
func Populate(store *gdb.MemoryStore, snap *snapshot.Snapshot) {
	for _, s := range snap.Items {
		if s.Extent == nil {
			continue
		}
		store.Put(s.Identity(), geom.Rectangle(s.Extent.Bound()))
	}
}

// BruteForceQuery returns the OIDs of all items whose extent overlaps query
// padded by tolerance, in ascending order.
func BruteForceQuery(items []snapshot.ItemState, query orb.Bound, tolerance float64) []int64 {
	padded := geom.Pad(query, tolerance)

	out := []int64{}
	for _, s := range items {
		if s.Extent == nil {
			continue
		}
		if geom.Overlaps(padded, s.Extent.Bound()) {
			out = append(out, s.OID)
		}
	}
	slices.Sort(out)
	return out
}
