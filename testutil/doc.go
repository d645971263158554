// Package testutil provides testing utilities for tcpool.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Workloads
//
//	rng := testutil.NewRNG(seed)
//	sizes := rng.Sizes(1000, 1024, 64<<10, 0.05)
//
// # Overlap Checking
//
//	shadow := testutil.NewShadow(8)
//	require.NoError(t, shadow.Add(pos, n))
//	n, err := shadow.Remove(pos)
package testutil
