// Package redis stores work item review state in Redis.
//
// Each work list owns two keys under a configurable prefix:
//
//	<prefix><name>:items    hash  "tableId:rowId" -> "status:visited"
//	<prefix><name>:current  string "tableId:rowId"
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/worklist/model"
	"github.com/hupe1980/worklist/statestore"
)

// DefaultPrefix is prepended to all keys.
const DefaultPrefix = "worklist:"

// Store implements statestore.Store on a Redis client.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New creates a Store. An empty prefix selects DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) itemsKey(workList string) string   { return s.prefix + workList + ":items" }
func (s *Store) currentKey(workList string) string { return s.prefix + workList + ":current" }

// Load implements statestore.Store.
func (s *Store) Load(ctx context.Context, workList string) (statestore.Document, error) {
	if err := statestore.ValidateName(workList); err != nil {
		return statestore.Document{}, err
	}

	fields, err := s.client.HGetAll(ctx, s.itemsKey(workList)).Result()
	if err != nil {
		return statestore.Document{}, fmt.Errorf("load state of %s: %w", workList, err)
	}

	doc := statestore.NewDocument()
	for field, value := range fields {
		id, err := parseIdentity(field)
		if err != nil {
			return statestore.Document{}, err
		}
		state, err := parseState(value)
		if err != nil {
			return statestore.Document{}, err
		}
		doc.States[id] = state
	}

	current, err := s.client.Get(ctx, s.currentKey(workList)).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return statestore.Document{}, fmt.Errorf("load state of %s: %w", workList, err)
	default:
		id, err := parseIdentity(current)
		if err != nil {
			return statestore.Document{}, err
		}
		doc.Current = &id
	}

	return doc, nil
}

// Save implements statestore.Store. The document replaces the stored one in a
// single MULTI/EXEC transaction.
func (s *Store) Save(ctx context.Context, workList string, doc statestore.Document) error {
	if err := statestore.ValidateName(workList); err != nil {
		return err
	}

	values := make(map[string]any, len(doc.States))
	for id, state := range doc.States {
		values[formatIdentity(id)] = formatState(state)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.itemsKey(workList), s.currentKey(workList))
		if len(values) > 0 {
			pipe.HSet(ctx, s.itemsKey(workList), values)
		}
		if doc.Current != nil {
			pipe.Set(ctx, s.currentKey(workList), formatIdentity(*doc.Current), 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save state of %s: %w", workList, err)
	}
	return nil
}

func formatIdentity(id model.Identity) string {
	return strconv.FormatInt(id.TableID, 10) + ":" + strconv.FormatInt(id.RowID, 10)
}

func parseIdentity(s string) (model.Identity, error) {
	table, row, ok := strings.Cut(s, ":")
	if !ok {
		return model.Identity{}, fmt.Errorf("invalid identity %q", s)
	}
	t, err := strconv.ParseInt(table, 10, 64)
	if err != nil {
		return model.Identity{}, fmt.Errorf("invalid identity %q: %w", s, err)
	}
	r, err := strconv.ParseInt(row, 10, 64)
	if err != nil {
		return model.Identity{}, fmt.Errorf("invalid identity %q: %w", s, err)
	}
	return model.Identity{TableID: t, RowID: r}, nil
}

func formatState(s statestore.State) string {
	visited := "0"
	if s.Visited {
		visited = "1"
	}
	return s.Status.String() + ":" + visited
}

func parseState(s string) (statestore.State, error) {
	status, visited, ok := strings.Cut(s, ":")
	if !ok {
		return statestore.State{}, fmt.Errorf("invalid state %q", s)
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return statestore.State{}, err
	}
	return statestore.State{Status: st, Visited: visited == "1"}, nil
}
