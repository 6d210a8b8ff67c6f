package gdb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"

	"github.com/hupe1980/worklist/geom"
	"github.com/hupe1980/worklist/model"
)

// ErrRowNotFound is returned when the row behind a work item no longer exists.
var ErrRowNotFound = errors.New("gdb: row not found")

// ErrClosed is returned by a session that has been closed.
var ErrClosed = errors.New("gdb: session closed")

// Store opens sessions against the authoritative store.
type Store interface {
	OpenSession(ctx context.Context) (Session, error)
}

// Session is a scoped handle on the store. It is not safe for concurrent use.
type Session interface {
	// RefreshGeometry fetches the row behind item and publishes its buffered
	// geometry on the item.
	RefreshGeometry(ctx context.Context, item *model.WorkItem) error
	Close() error
}

// MemoryStore is an in-memory Store keyed by row identity.
type MemoryStore struct {
	mu             sync.RWMutex
	rows           map[model.Identity]orb.Geometry
	failures       map[model.Identity]error
	bufferDistance float64

	opened  atomic.Int64
	closed  atomic.Int64
	fetches atomic.Int64

	// BeforeFetch, if set, runs before every fetch. Tests use it to block
	// workers or to inject panics.
	BeforeFetch func(ctx context.Context, item *model.WorkItem)
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(bufferDistance float64) *MemoryStore {
	return &MemoryStore{
		rows:           make(map[model.Identity]orb.Geometry),
		failures:       make(map[model.Identity]error),
		bufferDistance: bufferDistance,
	}
}

// Put stores the geometry of a row.
func (s *MemoryStore) Put(id model.Identity, g orb.Geometry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id] = g
}

// Delete removes a row.
func (s *MemoryStore) Delete(id model.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
}

// Fail makes every fetch of id return err.
func (s *MemoryStore) Fail(id model.Identity, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = err
}

// Sessions returns how many sessions were opened and closed.
func (s *MemoryStore) Sessions() (opened, closed int64) {
	return s.opened.Load(), s.closed.Load()
}

// Fetches returns the number of RefreshGeometry calls.
func (s *MemoryStore) Fetches() int64 {
	return s.fetches.Load()
}

// OpenSession implements Store.
func (s *MemoryStore) OpenSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.opened.Add(1)
	return &memorySession{store: s}, nil
}

type memorySession struct {
	store  *MemoryStore
	closed bool
}

func (m *memorySession) RefreshGeometry(ctx context.Context, item *model.WorkItem) error {
	if m.closed {
		return ErrClosed
	}

	s := m.store
	s.fetches.Add(1)

	if s.BeforeFetch != nil {
		s.BeforeFetch(ctx, item)
	}

	s.mu.RLock()
	err, failing := s.failures[item.Identity]
	g, ok := s.rows[item.Identity]
	s.mu.RUnlock()

	if failing {
		return err
	}
	if !ok {
		return ErrRowNotFound
	}

	item.SetBufferedGeometry(geom.Buffer(g, s.bufferDistance))
	return nil
}

func (m *memorySession) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.store.closed.Add(1)
	return nil
}
