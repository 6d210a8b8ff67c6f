package worklist

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/worklist/catalog"
	"github.com/hupe1980/worklist/gdb"
	"github.com/hupe1980/worklist/metric"
	"github.com/hupe1980/worklist/model"
	"github.com/hupe1980/worklist/refresh"
	"github.com/hupe1980/worklist/registry"
	"github.com/hupe1980/worklist/snapshot"
	"github.com/hupe1980/worklist/statestore"
	"github.com/hupe1980/worklist/vdataset"
)

// Navigation operations accepted by Navigate.
const (
	NavigateFirst    = "first"
	NavigateNext     = "next"
	NavigatePrevious = "previous"
	NavigateNearest  = "nearest"
)

// Session owns the registry of open work lists and the background refreshes
// running for them.
type Session struct {
	opts     options
	logger   *Logger
	metrics  metric.Collector
	registry *registry.Registry

	mu        sync.Mutex
	refreshes map[string]*refresh.Handle
	closed    bool
}

// New creates a Session.
func New(opts ...Option) *Session {
	o := options{loadLimit: 4}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = NoopLogger()
	}

	return &Session{
		opts:    o,
		logger:  logger,
		metrics: metric.OrNoop(o.metrics),
		registry: registry.New(func(ro *registry.Options) {
			ro.Logger = logger.Logger
			ro.ErrorHandler = o.errorHandler
		}),
		refreshes: make(map[string]*refresh.Handle),
	}
}

// Registry returns the registry of open work lists. Subscribe observers on it
// to follow additions, removals and modifications.
func (s *Session) Registry() *registry.Registry {
	return s.registry
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Load reads the snapshot name from loader, builds its catalog, applies the
// stored review state and registers the catalog.
func (s *Session) Load(ctx context.Context, loader snapshot.Loader, name string, opts ...LoadOption) (*catalog.Cache, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	lo := loadOptions{kind: catalog.KindSnapshot, visibility: model.VisibilityTodo}
	for _, fn := range opts {
		fn(&lo)
	}

	cat, err := s.build(ctx, loader, name, lo)
	if err != nil {
		err = translateError(name, err)
		s.logger.LogLoad(ctx, name, 0, err)
		return nil, err
	}

	if !s.registry.Add(cat) {
		err := &ErrLoad{Name: cat.Name(), cause: ErrAlreadyLoaded}
		s.logger.LogLoad(ctx, cat.Name(), 0, err)
		return nil, err
	}

	s.logger.LogLoad(ctx, cat.Name(), cat.Count(), nil)
	return cat, nil
}

func (s *Session) build(ctx context.Context, loader snapshot.Loader, name string, lo loadOptions) (*catalog.Cache, error) {
	snap, err := loader.Load(ctx, name)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.New(snap, func(o *catalog.Options) {
		o.Kind = lo.kind
		o.Visibility = lo.visibility
		o.Logger = s.logger.Logger
		o.Metrics = s.metrics
	})
	if err != nil {
		return nil, err
	}

	if s.opts.stateStore != nil && !lo.ignoreState {
		doc, err := s.opts.stateStore.Load(ctx, cat.Name())
		if err != nil {
			return nil, fmt.Errorf("load state: %w", err)
		}
		applied := cat.ApplyStates(doc)
		s.logger.DebugContext(ctx, "stored state applied", "worklist", cat.Name(), "items", applied)
	}

	return cat, nil
}

// LoadAll loads names concurrently. On error the work lists loaded so far stay
// registered and are returned alongside the first error; entries for failed
// names are nil.
func (s *Session) LoadAll(ctx context.Context, loader snapshot.Loader, names []string, opts ...LoadOption) ([]*catalog.Cache, error) {
	out := make([]*catalog.Cache, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.opts.loadLimit))

	for i, name := range names {
		g.Go(func() error {
			c, err := s.Load(gctx, loader, name, opts...)
			if err != nil {
				return err
			}
			out[i] = c
			return nil
		})
	}

	return out, g.Wait()
}

// Catalog returns the catalog registered under name.
func (s *Session) Catalog(name string) (catalog.Catalog, error) {
	c, ok := s.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return c, nil
}

// Refresh starts populating the buffered geometries of the live work list
// name from store and returns immediately. A refresh already running for the
// name is canceled. Workers announce their completion through the catalog's
// change event.
func (s *Session) Refresh(ctx context.Context, name string, store gdb.Store) (*refresh.Handle, error) {
	c, err := s.Catalog(name)
	if err != nil {
		return nil, err
	}
	if c.Kind() != catalog.KindLive {
		return nil, fmt.Errorf("%w: %s is a %s work list", catalog.ErrUnsupported, name, c.Kind())
	}

	optFns := []func(*refresh.Options){
		func(o *refresh.Options) {
			o.Logger = s.logger.With("worklist", name)
			o.Metrics = s.metrics
			o.Controller = s.opts.controller
		},
	}
	optFns = append(optFns, s.opts.refreshOptions...)
	optFns = append(optFns, func(o *refresh.Options) {
		next := o.OnWorkerDone
		o.OnWorkerDone = func() {
			c.NotifyChanged()
			if next != nil {
				next()
			}
		}
	})

	coord := refresh.New(store, optFns...)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if prev := s.refreshes[name]; prev != nil {
		prev.Cancel()
	}
	h := coord.Start(context.WithoutCancel(ctx), c.Items())
	s.refreshes[name] = h
	s.mu.Unlock()

	go s.watch(name, h)

	return h, nil
}

// watch logs the outcome of h and forgets it once it has stopped.
func (s *Session) watch(name string, h *refresh.Handle) {
	<-h.Done()

	s.mu.Lock()
	if s.refreshes[name] == h {
		delete(s.refreshes, name)
	}
	s.mu.Unlock()

	stats, _ := h.Stats()
	s.logger.LogRefresh(context.Background(), name, stats)
}

// CancelRefresh cancels the refresh running for name without waiting for it.
func (s *Session) CancelRefresh(name string) bool {
	s.mu.Lock()
	h, ok := s.refreshes[name]
	delete(s.refreshes, name)
	s.mu.Unlock()

	if ok {
		h.Cancel()
	}
	return ok
}

// Dataset returns a closed virtual dataset resolving names in the registry.
func (s *Session) Dataset() *vdataset.Dataset {
	return vdataset.New(s.registry, func(o *vdataset.Options) {
		o.Logger = s.logger.Logger
		o.Metrics = s.metrics
	})
}

// OpenDataset opens a virtual dataset for connectionID. Closing it cancels
// the refresh of its work list.
func (s *Session) OpenDataset(ctx context.Context, connectionID string) (*vdataset.Dataset, error) {
	d := s.Dataset()

	names, err := d.Open(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	name := names[0]
	d.AttachCanceller(func() { s.CancelRefresh(name) })
	return d, nil
}

// Query runs a dataset query against the work list name.
func (s *Session) Query(ctx context.Context, name string, f vdataset.QueryFilter) ([]vdataset.Row, error) {
	d := s.Dataset()
	if _, err := d.Open(ctx, name); err != nil {
		s.logger.LogQuery(ctx, name, 0, err)
		return nil, err
	}
	defer d.Close()

	rows, err := d.Query(ctx, f)
	s.logger.LogQuery(ctx, name, len(rows), err)
	return rows, err
}

// SetStatus changes the status of item oid in the work list name.
func (s *Session) SetStatus(ctx context.Context, name string, oid int64, status model.Status) error {
	c, err := s.Catalog(name)
	if err != nil {
		return err
	}

	item, ok := c.Lookup(oid)
	if !ok {
		err = fmt.Errorf("%w: oid %d", catalog.ErrItemNotFound, oid)
	} else {
		err = c.SetStatus(item, status)
	}

	s.logger.LogStatus(ctx, name, oid, status, err)
	return err
}

// Navigate moves the current item of the work list name and returns the
// current item afterwards. moved is false if no item qualified.
func (s *Session) Navigate(ctx context.Context, name, op string) (current *model.WorkItem, moved bool, err error) {
	c, err := s.Catalog(name)
	if err != nil {
		return nil, false, err
	}

	nav, ok := c.(catalog.Navigator)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s does not support navigation", catalog.ErrUnsupported, name)
	}

	switch op {
	case NavigateFirst:
		moved = nav.GoFirst()
	case NavigateNext:
		moved = nav.GoNext()
	case NavigatePrevious:
		moved = nav.GoPrevious()
	case NavigateNearest:
		if ref, ok := nav.NearestReference(); ok {
			moved = nav.GoNearest(ref)
		}
	default:
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidNavigation, op)
	}

	s.logger.DebugContext(ctx, "navigated", "worklist", name, "op", op, "moved", moved)
	return nav.CurrentItem(), moved, nil
}

type stateExporter interface {
	States() statestore.Document
}

// Commit persists the review state of the work list name.
func (s *Session) Commit(ctx context.Context, name string) error {
	if s.opts.stateStore == nil {
		return ErrNoStateStore
	}

	c, err := s.Catalog(name)
	if err != nil {
		return err
	}

	exp, ok := c.(stateExporter)
	if !ok {
		return fmt.Errorf("%w: %s cannot export state", catalog.ErrUnsupported, name)
	}

	doc := exp.States()
	err = s.opts.stateStore.Save(ctx, name, doc)
	s.logger.LogCommit(ctx, name, len(doc.States), err)
	return err
}

// Remove cancels the refresh of name and unregisters its catalog.
func (s *Session) Remove(name string) bool {
	c, ok := s.registry.Get(name)
	if !ok {
		return false
	}
	s.CancelRefresh(name)
	return s.registry.Remove(c)
}

// Close cancels all refreshes and unregisters all catalogs. It does not wait
// for refresh workers to stop.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handles := s.refreshes
	s.refreshes = make(map[string]*refresh.Handle)
	s.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	for _, c := range s.registry.GetAll() {
		s.registry.Remove(c)
	}
	return nil
}
