// Package metric defines the collector interface the work list engine reports
// operational metrics to, with a no-op and a basic in-memory implementation.
// See package prom for a Prometheus-backed collector.
package metric

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/worklist/model"
)

// Collector receives operational metrics.
// Implementations must be safe for concurrent use.
type Collector interface {
	// RecordQuery is called after each catalog query.
	// kind is "ids", "spatial" or "all"; results is the number of items returned.
	RecordQuery(kind string, results int, duration time.Duration)

	// RecordRefresh is called after each item geometry refresh.
	// err is nil if successful.
	RecordRefresh(duration time.Duration, err error)

	// RecordStatusChange is called after an item's status was set.
	RecordStatusChange(status model.Status)
}

// Noop is a no-op implementation of Collector.
type Noop struct{}

func (Noop) RecordQuery(string, int, time.Duration) {}
func (Noop) RecordRefresh(time.Duration, error)     {}
func (Noop) RecordStatusChange(model.Status)        {}

// Basic provides simple in-memory metrics collection.
// Useful for debugging and tests without external dependencies.
type Basic struct {
	QueryCount         atomic.Int64
	QueryResults       atomic.Int64
	QueryTotalNanos    atomic.Int64
	RefreshCount       atomic.Int64
	RefreshErrors      atomic.Int64
	RefreshTotalNanos  atomic.Int64
	StatusPendingCount atomic.Int64
	StatusDoneCount    atomic.Int64
}

// RecordQuery implements Collector.
func (b *Basic) RecordQuery(_ string, results int, duration time.Duration) {
	b.QueryCount.Add(1)
	b.QueryResults.Add(int64(results))
	b.QueryTotalNanos.Add(duration.Nanoseconds())
}

// RecordRefresh implements Collector.
func (b *Basic) RecordRefresh(duration time.Duration, err error) {
	b.RefreshCount.Add(1)
	b.RefreshTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RefreshErrors.Add(1)
	}
}

// RecordStatusChange implements Collector.
func (b *Basic) RecordStatusChange(status model.Status) {
	if status == model.StatusDone {
		b.StatusDoneCount.Add(1)
		return
	}
	b.StatusPendingCount.Add(1)
}

// Stats returns a snapshot of current metrics.
func (b *Basic) Stats() BasicStats {
	return BasicStats{
		QueryCount:         b.QueryCount.Load(),
		QueryResults:       b.QueryResults.Load(),
		QueryAvgNanos:      avg(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
		RefreshCount:       b.RefreshCount.Load(),
		RefreshErrors:      b.RefreshErrors.Load(),
		RefreshAvgNanos:    avg(b.RefreshTotalNanos.Load(), b.RefreshCount.Load()),
		StatusPendingCount: b.StatusPendingCount.Load(),
		StatusDoneCount:    b.StatusDoneCount.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicStats is a snapshot of Basic state.
type BasicStats struct {
	QueryCount         int64
	QueryResults       int64
	QueryAvgNanos      int64
	RefreshCount       int64
	RefreshErrors      int64
	RefreshAvgNanos    int64
	StatusPendingCount int64
	StatusDoneCount    int64
}

// OrNoop returns c, or Noop if c is nil.
func OrNoop(c Collector) Collector {
	if c == nil {
		return Noop{}
	}
	return c
}
