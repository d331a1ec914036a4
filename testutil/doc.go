// Package testutil provides testing utilities for dualmat.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random edge sets and array contents.
//
// # Random Edge Generation
//
//	rng := testutil.NewRNG(seed)
//	edges := rng.Edges(1000, 64)        // uniform rows and columns
//	skewed := rng.ZipfEdges(1000, 64, 1.5) // power-law row degrees
//
// # Entry Multisets
//
//	want := testutil.EdgeCounts(edges)
package testutil
