package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/worklist/catalog"
)

var (
	// ErrNotRegistered is returned when a name is not in the registry.
	ErrNotRegistered = errors.New("registry: work list not registered")

	// ErrObserverPanic wraps a panic raised by an observer.
	ErrObserverPanic = errors.New("registry: observer panicked")
)

// Observer receives registry notifications. Implementations must be
// comparable so they can be unsubscribed; use pointer receivers.
//
// Notifications are delivered one at a time, even when catalogs change on
// several goroutines. Callbacks must not add or remove work lists
// synchronously.
type Observer interface {
	Added(c catalog.Catalog) error
	Removed(c catalog.Catalog) error
	Modified(c catalog.Catalog) error
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnAdded    func(c catalog.Catalog) error
	OnRemoved  func(c catalog.Catalog) error
	OnModified func(c catalog.Catalog) error
}

var _ Observer = (*ObserverFuncs)(nil)

// Added implements Observer.
func (f *ObserverFuncs) Added(c catalog.Catalog) error {
	if f.OnAdded == nil {
		return nil
	}
	return f.OnAdded(c)
}

// Removed implements Observer.
func (f *ObserverFuncs) Removed(c catalog.Catalog) error {
	if f.OnRemoved == nil {
		return nil
	}
	return f.OnRemoved(c)
}

// Modified implements Observer.
func (f *ObserverFuncs) Modified(c catalog.Catalog) error {
	if f.OnModified == nil {
		return nil
	}
	return f.OnModified(c)
}

// Binding associates a display layer with a registered catalog.
type Binding struct {
	ID    uuid.UUID
	Layer string
}

// Options configures a Registry.
type Options struct {
	Logger *slog.Logger

	// ErrorHandler receives the joined observer errors of one notification.
	ErrorHandler func(err error)
}

type entry struct {
	catalog  catalog.Catalog
	stop     func()
	bindings []Binding
}

// Registry maps work-list names to open catalogs.
type Registry struct {
	opts   Options
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	layers  map[uuid.UUID]string

	observersMu sync.Mutex
	observers   []Observer

	// serializes observer callbacks
	notifyMu sync.Mutex
}

// New creates an empty Registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Registry{
		opts:    opts,
		logger:  logger,
		entries: make(map[string]*entry),
		layers:  make(map[uuid.UUID]string),
	}
}

// Add registers c under its name and notifies observers. If the name is
// already taken, the existing entry is kept and Add returns false.
func (r *Registry) Add(c catalog.Catalog) bool {
	name := c.Name()

	r.mu.Lock()
	if _, ok := r.entries[name]; ok {
		r.mu.Unlock()
		r.logger.Debug("work list already registered", "worklist", name)
		return false
	}
	e := &entry{catalog: c}
	r.entries[name] = e
	r.order = append(r.order, name)
	e.stop = c.OnChanged(func() { r.NotifyModified(c) })
	r.mu.Unlock()

	r.logger.Debug("work list registered", "worklist", name)
	r.NotifyAdded(c)
	return true
}

// Remove unregisters c and notifies observers. Only the registered instance
// is removed; another catalog with the same name is left alone.
func (r *Registry) Remove(c catalog.Catalog) bool {
	if c == nil {
		return false
	}
	name := c.Name()

	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok || e.catalog != c {
		r.mu.Unlock()
		return false
	}
	r.removeLocked(name, e)
	r.mu.Unlock()

	e.stop()

	r.logger.Debug("work list unregistered", "worklist", name)
	r.NotifyRemoved(c)
	return true
}

func (r *Registry) removeLocked(name string, e *entry) {
	delete(r.entries, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	for _, b := range e.bindings {
		delete(r.layers, b.ID)
	}
}

// Get returns the catalog registered under name.
func (r *Registry) Get(name string) (catalog.Catalog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.catalog, true
}

// GetAll returns all catalogs in registration order.
func (r *Registry) GetAll() []catalog.Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]catalog.Catalog, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].catalog)
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of registered catalogs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Bind records that the display layer identified by layer shows the catalog
// registered under name.
func (r *Registry) Bind(name, layer string) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	b := Binding{ID: uuid.New(), Layer: layer}
	e.bindings = append(e.bindings, b)
	r.layers[b.ID] = name
	return b.ID, nil
}

// Bindings returns the layer bindings of the catalog registered under name.
func (r *Registry) Bindings(name string) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil
	}
	return slices.Clone(e.bindings)
}

// LayerRemoved drops the binding id. When it was the last binding of its
// catalog, the catalog is removed from the registry as well.
func (r *Registry) LayerRemoved(id uuid.UUID) bool {
	r.mu.Lock()
	name, ok := r.layers[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.layers, id)

	e := r.entries[name]
	e.bindings = slices.DeleteFunc(e.bindings, func(b Binding) bool { return b.ID == id })
	if len(e.bindings) > 0 {
		r.mu.Unlock()
		return true
	}
	r.removeLocked(name, e)
	r.mu.Unlock()

	e.stop()

	r.logger.Debug("last layer removed, work list unregistered", "worklist", name)
	r.NotifyRemoved(e.catalog)
	return true
}

// Subscribe adds o to the observers.
func (r *Registry) Subscribe(o Observer) {
	r.observersMu.Lock()
	defer r.observersMu.Unlock()
	r.observers = append(r.observers, o)
}

// Unsubscribe removes o from the observers.
func (r *Registry) Unsubscribe(o Observer) {
	r.observersMu.Lock()
	defer r.observersMu.Unlock()
	r.observers = slices.DeleteFunc(r.observers, func(x Observer) bool { return x == o })
}

// NotifyAdded calls Added on every observer.
func (r *Registry) NotifyAdded(c catalog.Catalog) {
	r.notify("added", c, Observer.Added)
}

// NotifyRemoved calls Removed on every observer.
func (r *Registry) NotifyRemoved(c catalog.Catalog) {
	r.notify("removed", c, Observer.Removed)
}

// NotifyModified calls Modified on every observer.
func (r *Registry) NotifyModified(c catalog.Catalog) {
	r.notify("modified", c, Observer.Modified)
}

func (r *Registry) notify(event string, c catalog.Catalog, call func(Observer, catalog.Catalog) error) {
	r.observersMu.Lock()
	observers := slices.Clone(r.observers)
	r.observersMu.Unlock()

	var errs []error
	r.notifyMu.Lock()
	for i, o := range observers {
		if err := safeCall(o, c, call); err != nil {
			errs = append(errs, fmt.Errorf("observer %d: %w", i, err))
		}
	}
	r.notifyMu.Unlock()

	err := errors.Join(errs...)
	if err == nil {
		return
	}

	r.logger.Warn("observer notification failed", "event", event, "worklist", c.Name(), "error", err)
	if r.opts.ErrorHandler != nil {
		r.opts.ErrorHandler(err)
	}
}

func safeCall(o Observer, c catalog.Catalog, call func(Observer, catalog.Catalog) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrObserverPanic, rec)
		}
	}()
	return call(o, c)
}
