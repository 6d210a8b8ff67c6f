package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/worklist"
	"github.com/hupe1980/worklist/blobstore"
	"github.com/hupe1980/worklist/gdb"
	"github.com/hupe1980/worklist/metric/prom"
	"github.com/hupe1980/worklist/snapshot"
	"github.com/hupe1980/worklist/statestore"
	"github.com/hupe1980/worklist/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	session *worklist.Session
	store   *gdb.MemoryStore
	handler http.Handler
}

func newFixture(t *testing.T, sessionOpts ...worklist.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	loader := snapshot.NewBlobLoader(blobstore.NewMemoryStore())
	snap := testutil.GridSnapshot("issues", 3, 3, 10)
	require.NoError(t, loader.Save(ctx, snap))
	require.NoError(t, loader.Save(ctx, testutil.GridSnapshot("live", 2, 2, 10)))

	col := prom.New()
	reg := prometheus.NewRegistry()
	col.MustRegister(reg)

	s := worklist.New(append([]worklist.Option{worklist.WithMetricsCollector(col)}, sessionOpts...)...)
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.Load(ctx, loader, "issues")
	require.NoError(t, err)
	_, err = s.Load(ctx, loader, "live", worklist.AsLive())
	require.NoError(t, err)

	store := gdb.NewMemoryStore(1)
	liveSnap, err := loader.Load(ctx, "live")
	require.NoError(t, err)
	testutil.Populate(store, liveSnap)

	srv := New(s, func(o *Options) {
		o.Gatherer = reg
		o.Store = store
	})
	return &fixture{session: s, store: store, handler: srv.Handler()}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func featureIDs(t *testing.T, w *httptest.ResponseRecorder) []float64 {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	require.NoError(t, err)
	ids := make([]float64, 0, len(fc.Features))
	for _, feat := range fc.Features {
		ids = append(ids, feat.Properties.MustFloat64("id"))
	}
	return ids
}

func TestServer_Healthz(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestServer_ListWorklists(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/worklists", "")
	require.Equal(t, http.StatusOK, w.Code)

	var out []worklistInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "issues", out[0].Name)
	assert.Equal(t, 9, out[0].Count)
	assert.Equal(t, "live", out[1].Kind)
}

func TestServer_Rows(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []float64{1}, featureIDs(t, f.do(http.MethodGet, "/worklists/issues/rows?bbox=0,0,1,1&tolerance=0", "")))
	assert.Equal(t, []float64{2, 7}, featureIDs(t, f.do(http.MethodGet, "/worklists/issues/rows?ids=7,2,42", "")))
	assert.Empty(t, featureIDs(t, f.do(http.MethodGet, "/worklists/issues/rows?ids=", "")))
	assert.Len(t, featureIDs(t, f.do(http.MethodGet, "/worklists/issues/rows", "")), 9)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/worklists/issues/rows?bbox=1,2,3", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/worklists/issues/rows?tolerance=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/worklists/issues/rows?status=maybe", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/worklists/nope/rows", "").Code)
}

func TestServer_SetStatus(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/worklists/issues/items/3/status", `{"status":"done"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"oid":3,"status":"done"}`, w.Body.String())

	assert.Equal(t, []float64{3}, featureIDs(t, f.do(http.MethodGet, "/worklists/issues/rows?status=done", "")))

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/worklists/issues/items/42/status", `{"status":"done"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/worklists/issues/items/x/status", `{"status":"done"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/worklists/issues/items/3/status", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/worklists/issues/items/3/status", `{"status":"maybe"}`).Code)
}

func TestServer_Navigate(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/worklists/issues/navigate/first", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Moved   bool      `json:"moved"`
		Current *itemView `json:"current"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Moved)
	require.NotNil(t, resp.Current)
	assert.Equal(t, int64(1), resp.Current.OID)
	assert.True(t, resp.Current.Visited)
	assert.Equal(t, "pending", resp.Current.Status)

	w = f.do(http.MethodPost, "/worklists/issues/navigate/next", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Moved)
	assert.Equal(t, int64(1), resp.Current.OID)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/worklists/issues/navigate/sideways", "").Code)
}

func TestServer_Commit(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotImplemented, f.do(http.MethodPost, "/worklists/issues/commit", "").Code)

	states := statestore.NewMemoryStore()
	f = newFixture(t, worklist.WithStateStore(states))
	f.do(http.MethodPost, "/worklists/issues/items/2/status", `{"status":"done"}`)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/worklists/issues/commit", "").Code)

	doc, err := states.Load(context.Background(), "issues")
	require.NoError(t, err)
	assert.Len(t, doc.States, 9)
}

func TestServer_Refresh(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/worklists/issues/refresh", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/worklists/nope/refresh", "").Code)

	require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/worklists/live/refresh", "").Code)

	cat, err := f.session.Catalog("live")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		for _, item := range cat.Items() {
			if _, ok := item.BufferedGeometry(); !ok {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/worklists/issues/rows", "")

	w := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "worklist_queries_total")
}
