package testutil

import (
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/dualmat/array"
	"github.com/hupe1980/dualmat/sparse"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic test data
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// Intn returns a pseudo-random number in [0, n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// FillUniform fills dst with random values in range [0, 1).
// Locks only once per call (preferred over calling Float32 in a loop).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// Float4s generates n tuples with components in [0, 1).
func (r *RNG) Float4s(n int) []array.Float4 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]array.Float4, n)
	for i := range out {
		out[i] = array.Float4{
			X: r.rand.Float32(),
			Y: r.rand.Float32(),
			Z: r.rand.Float32(),
			W: r.rand.Float32(),
		}
	}
	return out
}

// Edges generates n edges with uniform rows and columns in [0, dim) and
// weights in (0, 1]. Duplicate (row, col) pairs may occur.
func (r *RNG) Edges(n, dim int) []sparse.Edge {
	r.mu.Lock()
	defer r.mu.Unlock()

	edges := make([]sparse.Edge, n)
	for i := range edges {
		edges[i] = sparse.Edge{
			Row:    int32(r.rand.Intn(dim)), //nolint:gosec // dim fits int32 in tests
			Col:    int32(r.rand.Intn(dim)), //nolint:gosec // dim fits int32 in tests
			Weight: 1 - r.rand.Float32(),
		}
	}
	return edges
}

// ZipfEdges generates n edges whose rows follow a Zipf distribution with
// skew s, leaving many rows empty and a few heavily populated.
func (r *RNG) ZipfEdges(n, dim int, s float64) []sparse.Edge {
	r.mu.Lock()
	defer r.mu.Unlock()

	edges := make([]sparse.Edge, n)
	for i := range edges {
		edges[i] = sparse.Edge{
			Row:    int32(r.zipfLocked(dim, s)), //nolint:gosec // dim fits int32 in tests
			Col:    int32(r.rand.Intn(dim)),     //nolint:gosec // dim fits int32 in tests
			Weight: 1 - r.rand.Float32(),
		}
	}
	return edges
}

// Zipf returns a Zipfian-distributed value in [0, n).
// Uses Zipf's law: P(k) ∝ 1/k^s where s is the skew parameter.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

// zipfLocked is the internal implementation (caller must hold lock).
func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1
		}
	}

	return n - 1
}

// EdgeCounts returns the multiset of edges as a count map, for comparing
// entry sets while ignoring order.
func EdgeCounts[S ~[]sparse.Edge](edges S) map[sparse.Edge]int {
	counts := make(map[sparse.Edge]int, len(edges))
	for _, e := range edges {
		counts[e]++
	}
	return counts
}

// Scale returns a copy of edges with every weight divided by norm.
func Scale(edges []sparse.Edge, norm float32) []sparse.Edge {
	out := make([]sparse.Edge, len(edges))
	for i, e := range edges {
		e.Weight /= norm
		out[i] = e
	}
	return out
}
