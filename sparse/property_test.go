package sparse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dualmat/accel"
	"github.com/hupe1980/dualmat/sparse"
	"github.com/hupe1980/dualmat/testutil"
)

func checkInvariants(t *testing.T, m *sparse.Matrix) {
	t.Helper()

	counts := make(map[int]int)
	lastPos := make(map[int]int)
	prev := -1
	for pos, e := range m.All() {
		k := int(e.Key(m.Orientation()))
		require.GreaterOrEqual(t, k, prev, "keys must be non-decreasing")
		if k != prev {
			start, ok := m.Start(k)
			require.True(t, ok)
			require.Equal(t, pos, start, "index must point at first entry of key %d", k)
			require.Zero(t, counts[k], "entries of key %d are not contiguous", k)
		}
		counts[k]++
		lastPos[k] = pos
		prev = k
	}

	total := 0
	for k := range m.NumRowsCols() {
		s, ok := m.Start(k)
		if !ok {
			assert.Zero(t, counts[k])
			continue
		}
		require.GreaterOrEqual(t, s, 0)
		require.Less(t, s, m.NumEntries())
		require.Equal(t, counts[k], m.Degree(k))
		total += m.Degree(k)
	}
	require.Equal(t, m.NumEntries(), total)
	require.Equal(t, uint64(len(counts)), m.Keys().GetCardinality())
}

func TestBuild_Invariants(t *testing.T) {
	dev := accel.NewEmulated()
	defer dev.Close()

	rng := testutil.NewRNG(4711)
	for _, tc := range []struct {
		n, dim int
		zipf   bool
	}{
		{1, 1, false},
		{10, 3, false},
		{500, 64, false},
		{2000, 200, true},
		{64, 1000, false},
	} {
		edges := rng.Edges(tc.n, tc.dim)
		if tc.zipf {
			edges = rng.ZipfEdges(tc.n, tc.dim, 1.5)
		}
		want := testutil.EdgeCounts(testutil.Scale(edges, 4))

		for _, o := range []sparse.Orientation{sparse.ByRow, sparse.ByColumn} {
			m, err := sparse.BuildCopy(edges, tc.dim, 4, sparse.WithDevice(dev), sparse.WithOrientation(o))
			require.NoError(t, err)
			require.True(t, m.OnDevice())
			require.Equal(t, tc.n, m.NumEntries())

			checkInvariants(t, m)

			got := make([]sparse.Edge, 0, tc.n)
			for _, e := range m.All() {
				got = append(got, e)
			}
			assert.Equal(t, want, testutil.EdgeCounts(got))
			require.NoError(t, m.Close())
		}
	}

	assert.Zero(t, dev.Stats().LiveAllocations)
}

func TestRederive_FlipTwice(t *testing.T) {
	dev := accel.NewEmulated()
	defer dev.Close()

	rng := testutil.NewRNG(42)
	edges := rng.Edges(300, 40)

	src, err := sparse.Build(edges, 40, 0.5, sparse.WithDevice(dev))
	require.NoError(t, err)

	col, err := sparse.Rederive(src, true, sparse.WithDevice(dev))
	require.NoError(t, err)
	checkInvariants(t, col)

	row, err := sparse.Rederive(col, true, sparse.WithDevice(dev))
	require.NoError(t, err)
	checkInvariants(t, row)
	require.True(t, row.IsRowSorted())

	collect := func(m *sparse.Matrix) []sparse.Edge {
		var out []sparse.Edge
		for _, e := range m.All() {
			out = append(out, e)
		}
		return out
	}
	assert.Equal(t, testutil.EdgeCounts(collect(src)), testutil.EdgeCounts(collect(row)))
	assert.Equal(t, testutil.EdgeCounts(collect(src)), testutil.EdgeCounts(collect(col)))
}
