// Package index provides the static spatial index used by work-item catalogs.
//
// The index is a uniform grid ("spatial hash") over the union of all item
// extents. It is built once from a finite set of entries and never mutated;
// a rebuild replaces the whole structure.
//
// # Cell Sizing
//
// The cell edge is the larger of the mean item size and the edge that would
// give roughly one entry per cell. Each axis is capped at MaxCellsPerAxis, so
// outliers far away from the rest of the data cannot blow up memory.
//
// # Queries
//
//   - Query: keys whose extent overlaps the query extent padded by a tolerance
//   - QueryFiltered: as Query, restricted to keys in a roaring bitmap
//   - QueryAll: every indexed key
//
// Overlap is inclusive: extents that only touch match. Results are returned in
// ascending key order without duplicates.
//
// # Degenerate Input
//
// Building from no entries yields a usable index that answers every query
// with an empty result:
//
//	g := index.Build(nil)
//	g.Query(bound, 0) // []
package index
