// Package blobstore provides storage abstraction for persisted work list snapshots.
//
// Store is the interface for reading and writing whole blobs. Snapshots are
// small (thousands of items), so there is no streaming or range API.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests and ephemeral sessions
//   - LocalStore: local filesystem with atomic rename on write
//   - minio.Store: MinIO and other S3-compatible servers
//   - s3.Store: Amazon S3 with the SDK upload manager
//
// # Custom Implementations
//
//	type Store interface {
//	    Get(ctx, name) ([]byte, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
