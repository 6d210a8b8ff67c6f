// Package catalog implements the in-memory work item catalog: the item set of
// one work list, a spatial index over the item extents, per-item review state
// and the current-item pointer.
//
// # Construction
//
// A catalog is built in one step from a snapshot. Construction fails without a
// partial result if an item references a table missing from the snapshot, or
// if OIDs, identities or extents are malformed.
//
// # Queries
//
//   - Search: by OID, each id resolved by binary search
//   - SearchSpatial: extent + tolerance via the spatial index, with an optional
//     status filter applied as a roaring bitmap
//
// An absent or empty extent in SearchSpatial does not match nothing: it returns
// every item with the requested status, including items without extent. Callers
// rely on this to ask for "everything still pending" cheaply.
//
// # Change Events
//
// SetStatus, SetVisited and navigation emit one catalog-level changed event per
// call, never per-item events. Refresh workers call NotifyChanged when they
// finish their batch.
package catalog
