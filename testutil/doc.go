// Package testutil provides testing utilities for worklist.
//
// This package is intended for use in tests and benchmarks only.
// It generates deterministic snapshots and extents and computes brute-force
// spatial query results to check the index against.
//
// # Random Snapshots
//
//	rng := testutil.NewRNG(seed)
//	snap := rng.Snapshot("issues", 1000, testutil.World)
//
// # Ground Truth
//
//	want := testutil.BruteForceQuery(snap.Items, query, tolerance)
package testutil
