package catalog

import (
	"errors"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/worklist/geom"
	"github.com/hupe1980/worklist/metric"
	"github.com/hupe1980/worklist/model"
	"github.com/hupe1980/worklist/snapshot"
	"github.com/hupe1980/worklist/statestore"
)

func env(xmin, ymin, xmax, ymax float64) *snapshot.Envelope {
	return &snapshot.Envelope{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}
}

func newSnapshot(items ...snapshot.ItemState) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Name:   "issues",
		Tables: []snapshot.TableRef{{ID: 1, Name: "ISSUES"}},
		Items:  items,
	}
}

func item(oid int64, extent *snapshot.Envelope) snapshot.ItemState {
	return snapshot.ItemState{OID: oid, TableID: 1, RowID: oid * 100, Extent: extent}
}

func mustNew(t *testing.T, snap *snapshot.Snapshot, optFns ...func(o *Options)) *Cache {
	t.Helper()
	c, err := New(snap, optFns...)
	require.NoError(t, err)
	return c
}

func oids(items []*model.WorkItem) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.OID)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func TestSearchSpatial(t *testing.T) {
	c := mustNew(t, newSnapshot(
		item(1, env(0, 0, 10, 10)),
		item(2, env(20, 20, 30, 30)),
	))

	got := c.SearchSpatial(SpatialFilter{Extent: ptr(geom.NewExtent(5, 5, 15, 15))}, nil)
	assert.Equal(t, []int64{1}, oids(got))

	got = c.SearchSpatial(SpatialFilter{Extent: ptr(geom.NewExtent(-1, -1, 31, 31))}, nil)
	assert.Equal(t, []int64{1, 2}, oids(got))

	got = c.SearchSpatial(SpatialFilter{Extent: ptr(geom.NewExtent(12, 12, 18, 18)), Tolerance: 1}, nil)
	assert.Empty(t, got)

	got = c.SearchSpatial(SpatialFilter{Extent: ptr(geom.NewExtent(10.5, 10.5, 18, 18)), Tolerance: 1}, nil)
	assert.Equal(t, []int64{1}, oids(got))
}

func TestSearchSpatial_ContainedAlwaysFound(t *testing.T) {
	var items []snapshot.ItemState
	for i := int64(1); i <= 200; i++ {
		x, y := float64(i%20)*7, float64(i/20)*11
		items = append(items, item(i, env(x, y, x+3, y+2)))
	}
	c := mustNew(t, newSnapshot(items...))

	for _, it := range c.Items() {
		got := c.SearchSpatial(SpatialFilter{Extent: it.Extent}, nil)
		assert.Contains(t, oids(got), it.OID)
	}
}

func TestSearchSpatial_StatusFallback(t *testing.T) {
	done := item(2, env(0, 0, 1, 1))
	done.Status = model.StatusDone
	noExtentDone := item(4, nil)
	noExtentDone.Status = model.StatusDone

	c := mustNew(t, newSnapshot(
		item(1, env(0, 0, 1, 1)),
		done,
		item(3, nil),
		noExtentDone,
		item(5, env(50, 50, 60, 60)),
	))

	pending := model.StatusPending
	got := c.SearchSpatial(SpatialFilter{}, &pending)
	assert.Equal(t, []int64{1, 3, 5}, oids(got), "absent extent returns every pending item")

	empty := orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{0, 0}}
	got = c.SearchSpatial(SpatialFilter{Extent: &empty}, &pending)
	assert.Equal(t, []int64{1, 3, 5}, oids(got), "empty extent behaves like an absent one")

	got = c.SearchSpatial(SpatialFilter{}, nil)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, oids(got))

	doneStatus := model.StatusDone
	got = c.SearchSpatial(SpatialFilter{Extent: ptr(geom.NewExtent(0, 0, 100, 100))}, &doneStatus)
	assert.Equal(t, []int64{2}, oids(got), "items without extent are excluded from spatial queries")
}

func TestSearch_IDs(t *testing.T) {
	c := mustNew(t, newSnapshot(item(9, nil), item(2, nil), item(7, nil), item(1, nil)))

	assert.Equal(t, []int64{7}, oids(c.Search([]int64{7})))

	got := c.Search([]int64{42})
	assert.NotNil(t, got)
	assert.Empty(t, got)

	assert.Equal(t, []int64{1, 7, 9}, oids(c.Search([]int64{9, 42, 1, 7, 7})))
	assert.Equal(t, []int64{1, 2, 7, 9}, oids(c.Search(nil)))
	assert.Empty(t, c.Search([]int64{}))
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name  string
		snap  *snapshot.Snapshot
		want  error
		oid   int64
		check bool
	}{
		{"nil snapshot", nil, ErrMalformedSnapshot, 0, false},
		{"no name", &snapshot.Snapshot{}, ErrMalformedSnapshot, 0, false},
		{"unknown table", newSnapshot(item(1, nil), snapshot.ItemState{OID: 2, TableID: 99, RowID: 1}), ErrUnknownTable, 2, true},
		{"duplicate oid", newSnapshot(item(1, nil), snapshot.ItemState{OID: 1, TableID: 1, RowID: 5}), ErrMalformedSnapshot, 1, true},
		{"duplicate identity", newSnapshot(item(1, nil), snapshot.ItemState{OID: 2, TableID: 1, RowID: 100}), ErrMalformedSnapshot, 2, true},
		{"zero oid", newSnapshot(item(0, nil)), ErrMalformedSnapshot, 0, true},
		{"inverted extent", newSnapshot(item(3, env(10, 0, 0, 10))), ErrMalformedSnapshot, 3, true},
		{"invalid status", newSnapshot(snapshot.ItemState{OID: 4, TableID: 1, RowID: 1, Status: 7}), ErrMalformedSnapshot, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.snap)
			assert.Nil(t, c)
			require.ErrorIs(t, err, tt.want)

			if tt.check {
				var se *SnapshotError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, tt.oid, se.OID)
			}
		})
	}
}

func TestNew_TableReferences(t *testing.T) {
	snap := &snapshot.Snapshot{
		Name: "issues",
		Tables: []snapshot.TableRef{
			{ID: 1, Name: "ISSUES_POINTS"},
			{ID: 2, Name: "ISSUES_LINES"},
		},
		Items: []snapshot.ItemState{
			{OID: 1, TableID: model.UniqueTableID("ISSUES_LINES", 2), RowID: 10},
			{OID: 2, TableID: 1, RowID: 10},
		},
	}

	c := mustNew(t, snap)

	items := c.Search(nil)
	require.Len(t, items, 2)
	assert.Equal(t, model.Identity{TableID: 2, RowID: 10}, items[0].Identity)
	assert.Equal(t, model.Identity{TableID: 1, RowID: 10}, items[1].Identity)

	out := c.Snapshot()
	assert.Equal(t, int64(2), out.Items[0].TableID)
	assert.Equal(t, int64(1), out.Items[1].TableID)
}

func TestNew_TableReferenceSameRowTwice(t *testing.T) {
	snap := newSnapshot(
		snapshot.ItemState{OID: 1, TableID: model.UniqueTableID("ISSUES", 1), RowID: 10},
		snapshot.ItemState{OID: 2, TableID: 1, RowID: 10},
	)

	_, err := New(snap)
	require.ErrorIs(t, err, ErrMalformedSnapshot)
}

func TestNew_Defaults(t *testing.T) {
	c := mustNew(t, newSnapshot(item(1, env(0, 0, 1, 1)), item(2, env(5, 5, 6, 8)), item(3, nil)))

	assert.Equal(t, "issues", c.Name())
	assert.Equal(t, "issues", c.DisplayName())
	assert.Equal(t, KindSnapshot, c.Kind())
	assert.Equal(t, 3, c.Count())
	assert.Equal(t, snapshot.DefaultXYTolerance, c.SpatialReference().Tolerance())
	assert.Nil(t, c.CurrentItem())

	require.NotNil(t, c.Extent())
	assert.Equal(t, geom.NewExtent(0, 0, 6, 8), *c.Extent())

	empty := mustNew(t, newSnapshot(item(1, nil)))
	assert.Nil(t, empty.Extent())

	none := mustNew(t, newSnapshot())
	assert.Equal(t, 0, none.Count())
	assert.Empty(t, none.SearchSpatial(SpatialFilter{Extent: ptr(geom.NewExtent(0, 0, 1, 1))}, nil))
}

func TestNew_CurrentFromSnapshot(t *testing.T) {
	snap := newSnapshot(item(1, nil), item(2, nil))
	snap.CurrentOID = 2

	c := mustNew(t, snap)
	cur := c.CurrentItem()
	require.NotNil(t, cur)
	assert.Equal(t, int64(2), cur.OID)
	assert.True(t, cur.Visited)

	snap.CurrentOID = 99
	c = mustNew(t, snap)
	assert.Nil(t, c.CurrentItem())
}

func TestSetStatus(t *testing.T) {
	m := &metric.Basic{}
	c := mustNew(t, newSnapshot(item(1, env(0, 0, 1, 1)), item(2, env(0, 0, 1, 1))), func(o *Options) {
		o.Metrics = m
	})

	var events int
	c.OnChanged(func() { events++ })

	it, ok := c.Lookup(1)
	require.True(t, ok)

	require.NoError(t, c.SetStatus(it, model.StatusDone))
	assert.Equal(t, 1, events)
	assert.Equal(t, int64(1), m.Stats().StatusDoneCount)

	pending := model.StatusPending
	extent := ptr(geom.NewExtent(0, 0, 1, 1))
	assert.Equal(t, []int64{2}, oids(c.SearchSpatial(SpatialFilter{Extent: extent}, &pending)))

	require.NoError(t, c.SetStatus(it, model.StatusPending))
	assert.Equal(t, 2, events)
	assert.Equal(t, []int64{1, 2}, oids(c.SearchSpatial(SpatialFilter{Extent: extent}, &pending)))

	require.NoError(t, c.SetVisited(it, true))
	assert.Equal(t, 3, events)
	state, err := c.ItemState(it)
	require.NoError(t, err)
	assert.Equal(t, ItemState{Status: model.StatusPending, Visited: true}, state)

	foreign := model.NewWorkItem(1, model.Identity{TableID: 1, RowID: 100})
	assert.ErrorIs(t, c.SetStatus(foreign, model.StatusDone), ErrForeignItem)
	assert.ErrorIs(t, c.SetVisited(nil, true), ErrForeignItem)
	_, err = c.ItemState(foreign)
	assert.ErrorIs(t, err, ErrForeignItem)
	assert.Equal(t, 3, events)

	assert.Error(t, c.SetStatus(it, model.Status(9)))
}

func TestOnChanged_Unsubscribe(t *testing.T) {
	c := mustNew(t, newSnapshot(item(1, nil)))

	var a, b int
	unsubA := c.OnChanged(func() { a++ })
	c.OnChanged(func() { b++ })

	c.NotifyChanged()
	unsubA()
	unsubA()
	c.NotifyChanged()

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestBufferedGeometry(t *testing.T) {
	snap := newSnapshot(item(1, env(0, 0, 2, 2)), item(2, nil))

	display := mustNew(t, snap)
	it, _ := display.Lookup(1)
	_, _, err := display.BufferedGeometry(it)
	assert.ErrorIs(t, err, ErrUnsupported)

	live := mustNew(t, snap, func(o *Options) { o.Kind = KindLive })
	it, _ = live.Lookup(1)

	g, ok, err := live.BufferedGeometry(it)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, g)

	assert.Equal(t, geom.Rectangle(geom.NewExtent(0, 0, 2, 2)), live.ItemDisplayGeometry(it))

	poly := geom.NewExtent(0.5, 0.5, 1, 1).ToPolygon()
	it.SetBufferedGeometry(poly)

	g, ok, err = live.BufferedGeometry(it)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, poly, g)
	assert.Equal(t, poly, live.ItemDisplayGeometry(it))

	noExtent, _ := live.Lookup(2)
	assert.Nil(t, live.ItemDisplayGeometry(noExtent))

	_, _, err = live.BufferedGeometry(model.NewWorkItem(5, model.Identity{}))
	assert.ErrorIs(t, err, ErrForeignItem)
}

func TestStates_RoundTrip(t *testing.T) {
	snap := newSnapshot(item(1, nil), item(2, nil), item(3, nil))
	c := mustNew(t, snap)

	it, _ := c.Lookup(2)
	require.NoError(t, c.SetStatus(it, model.StatusDone))
	require.NoError(t, c.GoTo(3))

	doc := c.States()
	require.NotNil(t, doc.Current)
	assert.Equal(t, model.Identity{TableID: 1, RowID: 300}, *doc.Current)

	doc.States[model.Identity{TableID: 77, RowID: 1}] = statestore.State{Status: model.StatusDone}

	fresh := mustNew(t, snap)
	var events int
	fresh.OnChanged(func() { events++ })

	assert.Equal(t, 3, fresh.ApplyStates(doc))
	assert.Equal(t, 1, events)
	assert.Equal(t, c.States(), fresh.States())

	done := model.StatusDone
	assert.Equal(t, []int64{2}, oids(fresh.SearchSpatial(SpatialFilter{}, &done)))
}

func TestSnapshot_IdentityRoundTrip(t *testing.T) {
	in := newSnapshot(item(3, env(0, 0, 1, 1)), item(1, nil), snapshot.ItemState{OID: 2, TableID: 1, RowID: -5})
	in.DisplayName = "My Issues"

	c := mustNew(t, in)

	data, err := snapshot.Encode(c.Snapshot(), nil, snapshot.CompressionZstd)
	require.NoError(t, err)
	decoded, err := snapshot.Decode(data)
	require.NoError(t, err)

	reloaded := mustNew(t, decoded)
	for _, oid := range []int64{1, 2, 3} {
		a, _ := c.Lookup(oid)
		b, ok := reloaded.Lookup(oid)
		require.True(t, ok)
		assert.Equal(t, a.Identity, b.Identity)
	}
	assert.Equal(t, model.Identity{TableID: 1, RowID: -5}, reloaded.Search([]int64{2})[0].Identity)
	assert.Equal(t, "My Issues", reloaded.DisplayName())
}

func TestRename(t *testing.T) {
	c := mustNew(t, newSnapshot())

	var events int
	c.OnChanged(func() { events++ })

	c.Rename("Review 2")
	assert.Equal(t, "Review 2", c.DisplayName())
	assert.Equal(t, "issues", c.Name())
	assert.Equal(t, 1, events)
}

func TestConcurrentQueriesAndMutations(t *testing.T) {
	var items []snapshot.ItemState
	for i := int64(1); i <= 100; i++ {
		items = append(items, item(i, env(float64(i), 0, float64(i)+1, 1)))
	}
	c := mustNew(t, newSnapshot(items...), func(o *Options) { o.Kind = KindLive })

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			it, _ := c.Lookup(int64(i%100 + 1))
			_ = c.SetStatus(it, model.Status(i%2))
		}
	}()
	go func() {
		defer wg.Done()
		pending := model.StatusPending
		for i := 0; i < 200; i++ {
			c.SearchSpatial(SpatialFilter{Extent: ptr(geom.NewExtent(0, 0, 50, 1))}, &pending)
			c.SearchSpatial(SpatialFilter{}, &pending)
		}
	}()
	go func() {
		defer wg.Done()
		for _, it := range c.Items() {
			it.SetBufferedGeometry(geom.Rectangle(*it.Extent))
			c.ItemDisplayGeometry(it)
		}
	}()
	wg.Wait()
}
