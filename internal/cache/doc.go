// Package cache provides a byte-bounded LRU cache for immutable blobs.
//
// Snapshot files fetched from remote object stores are small and immutable
// between saves, so keeping recently used ones in memory avoids a round trip
// per load.
package cache
