package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/worklist/gdb"
	"github.com/hupe1980/worklist/metric"
	"github.com/hupe1980/worklist/model"
	"github.com/hupe1980/worklist/resource"
)

// DefaultWorkers is the number of workers used when Options.Workers is not set.
const DefaultWorkers = 3

// Options configures a Coordinator.
type Options struct {
	// Workers is the number of parallel workers. Defaults to DefaultWorkers.
	Workers int

	// LockOSThread pins every worker to its OS thread for its whole lifetime.
	// Use it for stores whose sessions have thread affinity.
	LockOSThread bool

	// Controller optionally limits concurrent runs and the store call rate.
	Controller *resource.Controller

	Logger  *slog.Logger
	Metrics metric.Collector

	// OnWorkerDone is called once by every worker that finished its whole
	// partition without being canceled.
	OnWorkerDone func()
}

// Stats summarizes one run.
type Stats struct {
	Scheduled int64
	Refreshed int64
	Failed    int64
	Canceled  bool
}

// Coordinator runs refresh workers against a store.
type Coordinator struct {
	store   gdb.Store
	opts    Options
	logger  *slog.Logger
	metrics metric.Collector
}

// New creates a Coordinator.
func New(store gdb.Store, optFns ...func(o *Options)) *Coordinator {
	opts := Options{Workers: DefaultWorkers}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Coordinator{
		store:   store,
		opts:    opts,
		logger:  logger,
		metrics: metric.OrNoop(opts.Metrics),
	}
}

// Partition returns the items assigned to worker out of workers:
// items[worker], items[worker+workers], items[worker+2*workers], ...
func Partition(items []*model.WorkItem, worker, workers int) []*model.WorkItem {
	if workers <= 0 || worker < 0 || worker >= workers {
		return nil
	}

	out := make([]*model.WorkItem, 0, (len(items)+workers-1)/workers)
	for i := worker; i < len(items); i += workers {
		out = append(out, items[i])
	}
	return out
}

type counters struct {
	refreshed atomic.Int64
	failed    atomic.Int64
}

// Run refreshes every item without cached geometry and blocks until all
// workers have stopped.
func (c *Coordinator) Run(ctx context.Context, items []*model.WorkItem) Stats {
	pending := make([]*model.WorkItem, 0, len(items))
	for _, item := range items {
		if !item.HasBufferedGeometry() {
			pending = append(pending, item)
		}
	}

	stats := Stats{Scheduled: int64(len(pending))}
	if len(pending) == 0 {
		return stats
	}

	if err := c.opts.Controller.AcquireBackground(ctx); err != nil {
		stats.Canceled = true
		return stats
	}
	defer c.opts.Controller.ReleaseBackground()

	workers := min(c.opts.Workers, len(pending))

	c.logger.Debug("refresh started", "items", len(pending), "workers", workers)
	start := time.Now()

	var (
		wg  sync.WaitGroup
		cnt counters
	)

	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, w, Partition(pending, w, workers), &cnt)
		}()
	}
	wg.Wait()

	stats.Refreshed = cnt.refreshed.Load()
	stats.Failed = cnt.failed.Load()
	stats.Canceled = ctx.Err() != nil

	c.logger.Debug("refresh finished",
		"refreshed", stats.Refreshed,
		"failed", stats.Failed,
		"canceled", stats.Canceled,
		"duration", time.Since(start),
	)

	return stats
}

func (c *Coordinator) worker(ctx context.Context, id int, batch []*model.WorkItem, cnt *counters) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("refresh worker panicked", "worker", id, "panic", r)
		}
	}()

	if c.opts.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	if ctx.Err() != nil {
		return
	}

	sess, err := c.store.OpenSession(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error("refresh worker could not open session", "worker", id, "error", err)
		}
		return
	}
	defer func() {
		if err := sess.Close(); err != nil {
			c.logger.Warn("closing store session", "worker", id, "error", err)
		}
	}()

	for _, item := range batch {
		if ctx.Err() != nil {
			return
		}
		if err := c.opts.Controller.AcquireCall(ctx); err != nil {
			return
		}

		start := time.Now()
		err := sess.RefreshGeometry(ctx, item)
		c.metrics.RecordRefresh(time.Since(start), err)

		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return
			}
			cnt.failed.Add(1)
			c.logger.Warn("refresh item failed", "worker", id, "oid", item.OID, "row", item.Identity, "error", err)
			continue
		}
		cnt.refreshed.Add(1)
	}

	if ctx.Err() == nil && c.opts.OnWorkerDone != nil {
		c.opts.OnWorkerDone()
	}
}

// Handle controls a refresh started with Start.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	stats  Stats
}

// Start runs the refresh in the background and returns immediately.
func (c *Coordinator) Start(ctx context.Context, items []*model.WorkItem) *Handle {
	ctx, cancel := context.WithCancel(ctx)

	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer cancel()
		h.stats = c.Run(ctx, items)
	}()

	return h
}

// Cancel requests the workers to stop. It does not wait and may be called
// any number of times.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once every worker has stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Stats returns the run summary. ok is false while the run is in progress.
func (h *Handle) Stats() (s Stats, ok bool) {
	select {
	case <-h.done:
		return h.stats, true
	default:
		return Stats{}, false
	}
}
