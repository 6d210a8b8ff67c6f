// Package statestore persists the review state of work items (status, visited
// flag and current item) separately from the snapshot, so progress survives a
// reload of an unchanged snapshot.
//
// Backends:
//
//   - MemoryStore: in-process, for tests
//   - FileStore: one YAML document per work list
//   - redis.Store: one Redis hash per work list
//   - dynamodb.Store: one DynamoDB partition per work list
package statestore

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/worklist/model"
)

// ErrInvalidName is returned for work list names that cannot be used as a key.
var ErrInvalidName = errors.New("invalid work list name")

// State is the persisted review state of one item.
type State struct {
	Status  model.Status
	Visited bool
}

// Document is the review state of one work list.
type Document struct {
	Current *model.Identity
	States  map[model.Identity]State
}

// NewDocument returns an empty document.
func NewDocument() Document {
	return Document{States: make(map[model.Identity]State)}
}

// Entry is the flat form of one item state used by the backends.
type Entry struct {
	TableID int64  `yaml:"tableId"`
	RowID   int64  `yaml:"rowId"`
	Status  string `yaml:"status"`
	Visited bool   `yaml:"visited,omitempty"`
}

// Identity returns the identity of the entry.
func (e Entry) Identity() model.Identity {
	return model.Identity{TableID: e.TableID, RowID: e.RowID}
}

// Entries returns the states ordered by identity.
func (d Document) Entries() []Entry {
	ids := slices.SortedFunc(maps.Keys(d.States), func(a, b model.Identity) int {
		return cmp.Or(cmp.Compare(a.TableID, b.TableID), cmp.Compare(a.RowID, b.RowID))
	})

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		s := d.States[id]
		entries = append(entries, Entry{TableID: id.TableID, RowID: id.RowID, Status: s.Status.String(), Visited: s.Visited})
	}
	return entries
}

// Add parses e into the document.
func (d *Document) Add(e Entry) error {
	status, err := model.ParseStatus(e.Status)
	if err != nil {
		return err
	}
	if d.States == nil {
		d.States = make(map[model.Identity]State)
	}
	d.States[e.Identity()] = State{Status: status, Visited: e.Visited}
	return nil
}

// Store loads and saves documents by work list name.
// Loading a work list that was never saved returns an empty document.
type Store interface {
	Load(ctx context.Context, workList string) (Document, error)
	Save(ctx context.Context, workList string, doc Document) error
}

// ValidateName rejects names that would escape a key namespace.
func ValidateName(workList string) error {
	if workList == "" || strings.ContainsAny(workList, `/\`) || workList == "." || workList == ".." {
		return ErrInvalidName
	}
	return nil
}

// MemoryStore keeps documents in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, workList string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[workList]
	if !ok {
		return NewDocument(), nil
	}
	return clone(doc), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, workList string, doc Document) error {
	if err := ValidateName(workList); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[workList] = clone(doc)
	return nil
}

func clone(d Document) Document {
	out := Document{States: maps.Clone(d.States)}
	if out.States == nil {
		out.States = make(map[model.Identity]State)
	}
	if d.Current != nil {
		c := *d.Current
		out.Current = &c
	}
	return out
}
