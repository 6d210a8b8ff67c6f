package worklist

import (
	"github.com/hupe1980/worklist/catalog"
	"github.com/hupe1980/worklist/metric"
	"github.com/hupe1980/worklist/model"
	"github.com/hupe1980/worklist/refresh"
	"github.com/hupe1980/worklist/resource"
	"github.com/hupe1980/worklist/statestore"
)

type options struct {
	logger         *Logger
	metrics        metric.Collector
	stateStore     statestore.Store
	controller     *resource.Controller
	refreshOptions []func(*refresh.Options)
	errorHandler   func(error)
	loadLimit      int
}

// Option configures a Session.
type Option func(*options)

// WithLogger configures the logger. Pass nil to disable logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetricsCollector configures a metrics collector for queries, refreshes
// and status changes. Pass nil to disable metrics collection.
//
// Example with Prometheus:
//
//	pc := prom.New()
//	pc.MustRegister(prometheus.DefaultRegisterer)
//	s := worklist.New(worklist.WithMetricsCollector(pc))
func WithMetricsCollector(c metric.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithStateStore configures where item review state is loaded from and
// committed to.
func WithStateStore(s statestore.Store) Option {
	return func(o *options) {
		o.stateStore = s
	}
}

// WithResourceController limits concurrent refresh runs and store calls
// across all work lists of the session.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithRefreshOptions configures the refresh coordinator used by Refresh.
func WithRefreshOptions(optFns ...func(*refresh.Options)) Option {
	return func(o *options) {
		o.refreshOptions = append(o.refreshOptions, optFns...)
	}
}

// WithObserverErrorHandler receives errors raised by registry observers.
func WithObserverErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}

// WithLoadConcurrency limits how many work lists LoadAll loads in parallel.
// Defaults to 4.
func WithLoadConcurrency(n int) Option {
	return func(o *options) {
		o.loadLimit = n
	}
}

type loadOptions struct {
	kind        catalog.Kind
	visibility  model.Visibility
	ignoreState bool
}

// LoadOption configures a single Load.
type LoadOption func(*loadOptions)

// AsLive loads the work list as a live catalog whose geometries are
// refreshed from the authoritative store.
func AsLive() LoadOption {
	return func(o *loadOptions) {
		o.kind = catalog.KindLive
	}
}

// WithVisibility sets which items navigation visits.
func WithVisibility(v model.Visibility) LoadOption {
	return func(o *loadOptions) {
		o.visibility = v
	}
}

// IgnoreStoredState skips applying state from the state store.
func IgnoreStoredState() LoadOption {
	return func(o *loadOptions) {
		o.ignoreState = true
	}
}
