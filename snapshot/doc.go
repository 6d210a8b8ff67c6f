// Package snapshot defines the persisted description of a work list and how it
// is loaded from and saved to a blobstore.
//
// A snapshot lists the source tables, the items with their identity, extent and
// lifecycle state, and the current item. It carries no geometry beyond the
// extents; display geometry is fetched later from the authoritative store.
//
// # Blob Format
//
//	[compression frame]      optional: zstd or lz4 frame, detected by magic bytes
//	  "WLST" | version | len(codec) | codec | payload
//
// Plain JSON documents (starting with '{') are accepted as well, which keeps
// hand-written fixtures readable.
package snapshot
