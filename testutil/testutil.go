package testutil

import (
	"math/rand/v2"
	"sync"
)

// RNG is a seeded, goroutine-safe source of allocation workloads.
type RNG struct {
	mu   sync.Mutex
	seed int64
	src  *rand.PCG
	rand *rand.Rand
}

// NewRNG returns an RNG seeded with seed. Two RNGs with the same seed
// produce the same sequence.
func NewRNG(seed int64) *RNG {
	src := rand.NewPCG(uint64(seed), 0x7463706f6f6c) //nolint:gosec // seed bits are reused as is
	return &RNG{
		seed: seed,
		src:  src,
		rand: rand.New(src), //nolint:gosec // deterministic test data
	}
}

// Reset rewinds the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.src.Seed(uint64(r.seed), 0x7463706f6f6c) //nolint:gosec // see NewRNG
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a value in [0, n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float64 returns a value in [0, 1).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Size returns a request size in [lo, hi].
func (r *RNG) Size(lo, hi uint64) uint64 {
	if hi <= lo {
		return lo
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.rand.Uint64N(hi-lo+1)
}

// Sizes returns n request sizes where small sizes dominate: with
// probability hugeRate a size is drawn from (small, huge], otherwise
// from [1, small].
func (r *RNG) Sizes(n int, small, huge uint64, hugeRate float64) []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	sizes := make([]uint64, n)
	for i := range sizes {
		if r.rand.Float64() < hugeRate {
			sizes[i] = small + 1 + r.rand.Uint64N(huge-small)
		} else {
			sizes[i] = 1 + r.rand.Uint64N(small)
		}
	}
	return sizes
}

// Zipf returns a value in [0, n) where small values are far more likely,
// for picking victims among recently allocated blocks. s must be > 1.
func (r *RNG) Zipf(n int, s float64) int {
	if n <= 1 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	z := rand.NewZipf(r.rand, s, 1, uint64(n-1)) //nolint:gosec // n > 1
	return int(z.Uint64())                       //nolint:gosec // bounded by n-1
}
