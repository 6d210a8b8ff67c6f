package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/worklist"
	"github.com/hupe1980/worklist/catalog"
	"github.com/hupe1980/worklist/gdb"
	"github.com/hupe1980/worklist/geom"
	"github.com/hupe1980/worklist/model"
	"github.com/hupe1980/worklist/vdataset"
)

// ShutdownTimeout bounds graceful shutdown in ListenAndServe.
const ShutdownTimeout = 10 * time.Second

// ErrBadRequest wraps parameter parse errors.
var ErrBadRequest = errors.New("bad request")

// Options configures a Server.
type Options struct {
	// Logger receives access logs. Defaults to a discarding logger.
	Logger *slog.Logger
	// Gatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// Store backs POST /worklists/:name/refresh. Refreshes are rejected
	// when nil.
	Store gdb.Store
}

// Server serves a worklist.Session over HTTP.
type Server struct {
	session *worklist.Session
	opts    Options
	router  *gin.Engine
}

// New creates a Server with all routes registered.
func New(session *worklist.Session, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Gatherer: prometheus.DefaultGatherer,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		session: session,
		opts:    opts,
		router:  gin.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(gin.Recovery(), accessLog(s.opts.Logger))

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	wl := r.Group("/worklists")
	{
		wl.GET("", s.listWorklists)
		wl.GET("/:name/rows", s.rows)
		wl.POST("/:name/items/:oid/status", s.setStatus)
		wl.POST("/:name/navigate/:op", s.navigate)
		wl.POST("/:name/commit", s.commit)
		wl.POST("/:name/refresh", s.refresh)
	}
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func accessLog(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Debug("http_access",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

// statusOf maps session errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, worklist.ErrInvalidNavigation):
		return http.StatusBadRequest
	case errors.Is(err, worklist.ErrNotFound), errors.Is(err, vdataset.ErrNotFound),
		errors.Is(err, catalog.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrUnsupported):
		return http.StatusConflict
	case errors.Is(err, worklist.ErrNoStateStore):
		return http.StatusNotImplemented
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), gin.H{"error": err.Error()})
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type worklistInfo struct {
	Name        string     `json:"name"`
	DisplayName string     `json:"displayName"`
	Kind        string     `json:"kind"`
	Count       int        `json:"count"`
	Extent      *orb.Bound `json:"extent,omitempty"`
}

func (s *Server) listWorklists(c *gin.Context) {
	cats := s.session.Registry().GetAll()
	out := make([]worklistInfo, 0, len(cats))
	for _, cat := range cats {
		out = append(out, worklistInfo{
			Name:        cat.Name(),
			DisplayName: cat.DisplayName(),
			Kind:        cat.Kind().String(),
			Count:       cat.Count(),
			Extent:      cat.Extent(),
		})
	}
	c.JSON(http.StatusOK, out)
}

// parseFilter reads ids, bbox, tolerance and status query parameters.
func parseFilter(c *gin.Context) (vdataset.QueryFilter, error) {
	var f vdataset.QueryFilter

	if v, ok := c.GetQuery("ids"); ok {
		f.ObjectIDs = []int64{}
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return f, errors.Join(ErrBadRequest, err)
			}
			f.ObjectIDs = append(f.ObjectIDs, id)
		}
	}

	if v := c.Query("bbox"); v != "" {
		parts := strings.Split(v, ",")
		if len(parts) != 4 {
			return f, errors.Join(ErrBadRequest, errors.New("bbox needs xmin,ymin,xmax,ymax"))
		}
		var n [4]float64
		for i, p := range parts {
			x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return f, errors.Join(ErrBadRequest, err)
			}
			n[i] = x
		}
		b := geom.NewExtent(n[0], n[1], n[2], n[3])
		f.Extent = &b
	}

	if v := c.Query("tolerance"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 {
			return f, errors.Join(ErrBadRequest, errors.New("invalid tolerance"))
		}
		f.Tolerance = &t
	}

	if v := c.Query("status"); v != "" {
		st, err := model.ParseStatus(v)
		if err != nil {
			return f, errors.Join(ErrBadRequest, err)
		}
		f.Status = &st
	}

	return f, nil
}

func (s *Server) rows(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		abort(c, err)
		return
	}

	rows, err := s.session.Query(c.Request.Context(), c.Param("name"), f)
	if err != nil {
		abort(c, err)
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, r := range rows {
		feat := geojson.NewFeature(r.Shape)
		feat.ID = r.ID
		feat.Properties = geojson.Properties{
			vdataset.FieldID:        r.ID,
			vdataset.FieldStatus:    r.Status,
			vdataset.FieldVisited:   r.Visited,
			vdataset.FieldIsCurrent: r.IsCurrent,
		}
		fc.Append(feat)
	}
	c.JSON(http.StatusOK, fc)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) setStatus(c *gin.Context) {
	oid, err := strconv.ParseInt(c.Param("oid"), 10, 64)
	if err != nil {
		abort(c, errors.Join(ErrBadRequest, err))
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.Join(ErrBadRequest, err))
		return
	}
	st, err := model.ParseStatus(req.Status)
	if err != nil {
		abort(c, errors.Join(ErrBadRequest, err))
		return
	}

	if err := s.session.SetStatus(c.Request.Context(), c.Param("name"), oid, st); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"oid": oid, "status": st.String()})
}

type itemView struct {
	OID     int64      `json:"oid"`
	Status  string     `json:"status"`
	Visited bool       `json:"visited"`
	Extent  *orb.Bound `json:"extent,omitempty"`
}

func (s *Server) navigate(c *gin.Context) {
	cur, moved, err := s.session.Navigate(c.Request.Context(), c.Param("name"), c.Param("op"))
	if err != nil {
		abort(c, err)
		return
	}

	resp := gin.H{"moved": moved, "current": nil}
	if cur != nil {
		view := itemView{OID: cur.OID, Extent: cur.Extent}
		if cat, err := s.session.Catalog(c.Param("name")); err == nil {
			if st, err := cat.ItemState(cur); err == nil {
				view.Status, view.Visited = st.Status.String(), st.Visited
			}
		}
		resp["current"] = view
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) commit(c *gin.Context) {
	if err := s.session.Commit(c.Request.Context(), c.Param("name")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) refresh(c *gin.Context) {
	if s.opts.Store == nil {
		abort(c, errors.Join(catalog.ErrUnsupported, errors.New("no geometry store configured")))
		return
	}
	if _, err := s.session.Refresh(c.Request.Context(), c.Param("name"), s.opts.Store); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
