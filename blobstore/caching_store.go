package blobstore

import (
	"context"
	"slices"

	"github.com/hupe1980/worklist/internal/cache"
)

// DefaultCacheBytes is the cache capacity used by NewCachingStore when
// capacity <= 0.
const DefaultCacheBytes = 64 << 20

// CachingStore wraps a Store and keeps recently read blobs in memory.
type CachingStore struct {
	inner Store
	cache *cache.LRU
}

// NewCachingStore creates a new CachingStore holding at most capacity bytes.
func NewCachingStore(inner Store, capacity int64) *CachingStore {
	if capacity <= 0 {
		capacity = DefaultCacheBytes
	}
	return &CachingStore{
		inner: inner,
		cache: cache.NewLRU(capacity),
	}
}

// Get returns a copy of the cached blob or reads it from the inner store.
func (s *CachingStore) Get(ctx context.Context, name string) ([]byte, error) {
	if data, ok := s.cache.Get(name); ok {
		return slices.Clone(data), nil
	}

	data, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.Set(name, slices.Clone(data))
	return data, nil
}

// Put writes through to the inner store and invalidates the cached copy.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.cache.Remove(name)
	return s.inner.Put(ctx, name, data)
}

// Delete removes the blob from the inner store and the cache.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.cache.Remove(name)
	return s.inner.Delete(ctx, name)
}

// List is not cached.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Stats returns cache hits and misses.
func (s *CachingStore) Stats() (hits, misses int64) {
	return s.cache.Stats()
}
