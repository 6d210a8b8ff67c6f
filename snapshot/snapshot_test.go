package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/worklist/blobstore"
	"github.com/hupe1980/worklist/codec"
	"github.com/hupe1980/worklist/geom"
	"github.com/hupe1980/worklist/model"
)

func sample() *Snapshot {
	return &Snapshot{
		Name:             "issues",
		DisplayName:      "Issues",
		TypeName:         "IssueWorkList",
		SpatialReference: SpatialReference{WKID: 2056, XYTolerance: 0.01},
		Tables: []TableRef{
			{ID: 12, Name: "ISSUES_POLYGONS", Workspace: "issues.gpkg"},
		},
		Items: []ItemState{
			{OID: 1, TableID: 12, RowID: 100, Extent: &Envelope{0, 0, 10, 10}, GeometryType: model.GeometryPolygon},
			{OID: 2, TableID: 12, RowID: 101, Status: model.StatusDone, Visited: true},
		},
		CurrentOID: 2,
	}
}

func TestEncodeDecode(t *testing.T) {
	codecs := []codec.Codec{codec.GoJSON{}, codec.JSON{}, codec.YAML{}}
	compressions := []Compression{CompressionNone, CompressionZstd, CompressionLZ4}

	for _, c := range codecs {
		for _, comp := range compressions {
			data, err := Encode(sample(), c, comp)
			require.NoError(t, err)

			got, err := Decode(data)
			require.NoError(t, err, "%s/%d", c.Name(), comp)
			assert.Equal(t, sample(), got, "%s/%d", c.Name(), comp)
		}
	}
}

func TestEncode_CompressionFrames(t *testing.T) {
	data, err := Encode(sample(), nil, CompressionZstd)
	require.NoError(t, err)
	assert.Equal(t, zstdMagic, data[:4])

	data, err = Encode(sample(), nil, CompressionLZ4)
	require.NoError(t, err)
	assert.Equal(t, lz4Magic, data[:4])

	data, err = Encode(sample(), nil, CompressionNone)
	require.NoError(t, err)
	assert.Equal(t, headerMagic, data[:4])
}

func TestDecode_PlainJSON(t *testing.T) {
	s, err := Decode([]byte(` {"name":"sel","tables":[{"id":1,"name":"T"}],"items":[{"oid":1,"tableId":1,"rowId":9}]}`))
	require.NoError(t, err)
	assert.Equal(t, "sel", s.Name)
	require.Len(t, s.Items, 1)
	assert.Equal(t, model.Identity{TableID: 1, RowID: 9}, s.Items[0].Identity())
	assert.Zero(t, s.CurrentOID)
}

func TestDecode_Corrupt(t *testing.T) {
	tests := map[string][]byte{
		"garbage":       []byte("not a snapshot"),
		"truncated":     []byte("WLST"),
		"bad version":   append([]byte("WLST"), 9, 0),
		"unknown codec": append([]byte("WLST"), formatVersion, 3, 'x', 'm', 'l'),
		"bad payload":   append([]byte("WLST"), formatVersion, 4, 'j', 's', 'o', 'n', '{'),
		"bad zstd":      append(append([]byte{}, zstdMagic...), 1, 2, 3),
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestEnvelope(t *testing.T) {
	b := geom.NewExtent(1, 2, 3, 4)
	e := EnvelopeOf(&b)
	require.NotNil(t, e)
	assert.Equal(t, b, e.Bound())
	assert.Nil(t, EnvelopeOf(nil))
}

func TestSpatialReference_Tolerance(t *testing.T) {
	assert.Equal(t, DefaultXYTolerance, SpatialReference{}.Tolerance())
	assert.Equal(t, 0.5, SpatialReference{XYTolerance: 0.5}.Tolerance())
}

func TestBlobLoader(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	loader := NewBlobLoader(store, func(o *Options) {
		o.Compression = CompressionZstd
	})

	_, err := loader.Load(ctx, "issues")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, loader.Save(ctx, sample()))

	got, err := loader.Load(ctx, "issues")
	require.NoError(t, err)
	assert.Equal(t, sample(), got)

	names, err := loader.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"issues"}, names)

	assert.Error(t, loader.Save(ctx, &Snapshot{}))
}

func TestBlobLoader_NameFromBlob(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "unnamed.wl", []byte(`{"tables":[],"items":[]}`)))

	s, err := NewBlobLoader(store).Load(ctx, "unnamed")
	require.NoError(t, err)
	assert.Equal(t, "unnamed", s.Name)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "zstd": CompressionZstd, "lz4": CompressionLZ4} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("gzip")
	assert.Error(t, err)
}
