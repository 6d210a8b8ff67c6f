// Package prom provides a metric.Collector backed by Prometheus client_golang.
//
//	c := prom.New()
//	c.MustRegister(prometheus.DefaultRegisterer)
//	http.Handle("/metrics", promhttp.Handler())
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/worklist/model"
)

// Collector exports work list metrics as Prometheus counters and histograms.
type Collector struct {
	queries       *prometheus.CounterVec
	queryResults  *prometheus.HistogramVec
	queryLatency  *prometheus.HistogramVec
	refreshes     *prometheus.CounterVec
	refreshTime   prometheus.Histogram
	statusChanges *prometheus.CounterVec
}

// New creates an unregistered collector.
func New() *Collector {
	return &Collector{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worklist_queries_total",
			Help: "Total number of catalog queries",
		}, []string{"kind"}),
		queryResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worklist_query_results",
			Help:    "Number of items returned per catalog query",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000},
		}, []string{"kind"}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worklist_query_duration_seconds",
			Help:    "Catalog query duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worklist_refreshes_total",
			Help: "Total number of item geometry refreshes by result",
		}, []string{"result"}),
		refreshTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worklist_refresh_duration_seconds",
			Help:    "Item geometry refresh duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worklist_status_changes_total",
			Help: "Total number of item status changes by new status",
		}, []string{"status"}),
	}
}

// Collectors returns all Prometheus collectors for registration.
func (c *Collector) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.queries, c.queryResults, c.queryLatency, c.refreshes, c.refreshTime, c.statusChanges}
}

// Register registers all metrics with r.
func (c *Collector) Register(r prometheus.Registerer) error {
	for _, col := range c.Collectors() {
		if err := r.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister is like Register but panics on error.
func (c *Collector) MustRegister(r prometheus.Registerer) {
	r.MustRegister(c.Collectors()...)
}

// RecordQuery implements metric.Collector.
func (c *Collector) RecordQuery(kind string, results int, duration time.Duration) {
	c.queries.WithLabelValues(kind).Inc()
	c.queryResults.WithLabelValues(kind).Observe(float64(results))
	c.queryLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordRefresh implements metric.Collector.
func (c *Collector) RecordRefresh(duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.refreshes.WithLabelValues(result).Inc()
	c.refreshTime.Observe(duration.Seconds())
}

// RecordStatusChange implements metric.Collector.
func (c *Collector) RecordStatusChange(status model.Status) {
	c.statusChanges.WithLabelValues(status.String()).Inc()
}
