package sparse

import (
	"bytes"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dualmat/accel"
	"github.com/hupe1980/dualmat/array"
)

func newDevice(t *testing.T, opts ...accel.EmulatedOption) *accel.Emulated {
	t.Helper()
	dev := accel.NewEmulated(opts...)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) RecordUpload(bytes int, d time.Duration, err error) {
	m.Called(bytes, err)
}

func (m *mockObserver) RecordDownload(bytes int, d time.Duration, err error) {
	m.Called(bytes, err)
}

func (m *mockObserver) RecordBuild(entries, dim int, d time.Duration, err error) {
	m.Called(entries, dim, err)
}

func TestBuild_NormalizationScenario(t *testing.T) {
	dev := newDevice(t)
	edges := []Edge{
		{Row: 0, Col: 2, Weight: 4},
		{Row: 1, Col: 0, Weight: 2},
		{Row: 0, Col: 1, Weight: 6},
	}

	m, err := Build(edges, 2, 2, WithDevice(dev))
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 3, m.NumEntries())
	assert.Equal(t, 2, m.NumRowsCols())
	assert.True(t, m.IsRowSorted())
	assert.True(t, m.OnDevice())

	s, ok := m.Start(0)
	require.True(t, ok)
	assert.Equal(t, 0, s)
	s, ok = m.Start(1)
	require.True(t, ok)
	assert.Equal(t, 2, s)

	first, _ := m.Entry(0)
	second, _ := m.Entry(1)
	assert.ElementsMatch(t,
		[]Edge{{Row: 0, Col: 2, Weight: 2}, {Row: 0, Col: 1, Weight: 3}},
		[]Edge{first, second})

	third, ok := m.Entry(2)
	require.True(t, ok)
	assert.Equal(t, Edge{Row: 1, Col: 0, Weight: 1}, third)

	// the input was consumed and reordered
	assert.Equal(t, int32(1), edges[2].Row)
	assert.Equal(t, int64(2), dev.Stats().LiveAllocations)
}

func TestBuild_Empty(t *testing.T) {
	dev := newDevice(t)

	m, err := Build(nil, 5, 1, WithDevice(dev))
	require.NoError(t, err)

	assert.Equal(t, 0, m.NumEntries())
	assert.Equal(t, 5, m.NumRowsCols())
	assert.True(t, m.Empty())
	assert.Nil(t, m.EntryArray())
	assert.Nil(t, m.IndexArray())
	assert.False(t, m.OnDevice())
	assert.Equal(t, int64(0), dev.Stats().Allocations)

	_, ok := m.Start(0)
	assert.False(t, ok)
	assert.Zero(t, m.Degree(3))
	assert.True(t, m.Keys().IsEmpty())
	require.NoError(t, m.Upload())
	require.NoError(t, m.Close())
}

func TestBuild_ZeroDimension(t *testing.T) {
	dev := newDevice(t)
	m, err := Build([]Edge{{Row: 3, Col: 4, Weight: 1}}, 0, 0, WithDevice(dev))
	require.NoError(t, err)

	assert.Equal(t, 1, m.NumEntries())
	assert.Equal(t, 0, m.NumRowsCols())
	assert.True(t, m.Empty())
	assert.Equal(t, int64(0), dev.Stats().Allocations)
}

func TestBuild_Validation(t *testing.T) {
	tests := []struct {
		name  string
		edges []Edge
		dim   int
		norm  float32
		want  error
	}{
		{"negative dimension", []Edge{{}}, -1, 1, ErrInvalidDimension},
		{"dimension too large", []Edge{{}}, MaxDimension + 1, 1, ErrDimensionTooLarge},
		{"zero normalization", []Edge{{}}, 1, 0, ErrInvalidNormalization},
		{"nan normalization", []Edge{{}}, 1, float32(math.NaN()), ErrInvalidNormalization},
		{"inf normalization", []Edge{{}}, 1, float32(math.Inf(1)), ErrInvalidNormalization},
		{"row out of range", []Edge{{Row: 2}}, 2, 1, ErrKeyOutOfRange},
		{"negative column", []Edge{{Col: -1}}, 2, 1, ErrKeyOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.edges, tt.dim, tt.norm, WithDevice(newDevice(t)))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuild_NonKeyIndexBeyondDimension(t *testing.T) {
	dev := newDevice(t)

	m, err := Build([]Edge{{Row: 1, Col: 7, Weight: 1}}, 2, 1, WithDevice(dev))
	require.NoError(t, err)
	defer m.Close()

	e, ok := m.Entry(0)
	require.True(t, ok)
	assert.Equal(t, int32(7), e.Col)

	_, err = Build([]Edge{{Row: 1, Col: 7, Weight: 1}}, 2, 1, WithOrientation(ByColumn), WithDevice(dev))
	require.ErrorIs(t, err, ErrKeyOutOfRange)

	_, err = Rederive(m, true)
	require.ErrorIs(t, err, ErrKeyOutOfRange)
}

func TestBuild_NonKeyIndexBeyondFloat32Precision(t *testing.T) {
	dev := newDevice(t)

	_, err := Build([]Edge{{Row: 0, Col: MaxDimension + 1, Weight: 1}}, 2, 1, WithDevice(dev))
	require.ErrorIs(t, err, ErrKeyOutOfRange)

	_, err = Build([]Edge{{Row: MaxDimension, Col: 1, Weight: 1}}, 2, 1, WithOrientation(ByColumn), WithDevice(dev))
	require.ErrorIs(t, err, ErrKeyOutOfRange)

	m, err := Build([]Edge{{Row: 0, Col: MaxDimension - 1, Weight: 1}}, 2, 1, WithDevice(dev))
	require.NoError(t, err)
	defer m.Close()

	e, ok := m.Entry(0)
	require.True(t, ok)
	assert.Equal(t, int32(MaxDimension-1), e.Col)
}

func TestRederive_FlipRejectsNonKeyBeyondDimension(t *testing.T) {
	dev := newDevice(t)
	edges := []Edge{{Row: 0, Col: 2, Weight: 4}, {Row: 1, Col: 0, Weight: 2}, {Row: 0, Col: 1, Weight: 6}}

	m, err := Build(edges, 2, 2, WithDevice(dev))
	require.NoError(t, err)
	defer m.Close()

	_, err = Rederive(m, true)
	require.ErrorIs(t, err, ErrKeyOutOfRange)
	assert.Contains(t, err.Error(), "(0, 2) by column with dimension 2")

	cp, err := Rederive(m, false)
	require.NoError(t, err)
	defer cp.Close()
	assert.Equal(t, m.NumEntries(), cp.NumEntries())
}

func TestRederive_KeepsSourceDevice(t *testing.T) {
	dev := newDevice(t, accel.WithName("custom"))
	src, err := Build([]Edge{{Row: 0, Col: 1, Weight: 1}, {Row: 1, Col: 0, Weight: 1}}, 2, 1, WithDevice(dev))
	require.NoError(t, err)
	defer src.Close()

	for _, flip := range []bool{false, true} {
		m, err := Rederive(src, flip)
		require.NoError(t, err)
		assert.True(t, m.OnDevice())
		assert.Same(t, dev, m.EntryArray().Device())
		assert.Same(t, dev, m.IndexArray().Device())
		require.NoError(t, m.Close())
	}

	other := newDevice(t)
	m, err := Rederive(src, false, WithDevice(other))
	require.NoError(t, err)
	defer m.Close()
	assert.Same(t, other, m.EntryArray().Device())
}

func TestNewArrays_FailureReleasesEntries(t *testing.T) {
	dev := newDevice(t)
	arrOpts := []array.Option{array.WithDevice(dev), array.WithAllocateDevice()}

	_, _, err := newArrays(4, -1, arrOpts)
	require.ErrorIs(t, err, array.ErrInvalidLayout)

	stats := dev.Stats()
	assert.Equal(t, int64(1), stats.Allocations)
	assert.Equal(t, int64(0), stats.LiveAllocations)
}

func TestBuild_ByColumn(t *testing.T) {
	edges := []Edge{
		{Row: 0, Col: 3, Weight: 1},
		{Row: 1, Col: 1, Weight: 1},
		{Row: 2, Col: 3, Weight: 1},
		{Row: 3, Col: 0, Weight: 1},
	}

	m, err := Build(edges, 4, 1, WithOrientation(ByColumn), WithDevice(newDevice(t)))
	require.NoError(t, err)

	assert.False(t, m.IsRowSorted())
	assert.Equal(t, ByColumn, m.Orientation())

	_, ok := m.Start(2)
	assert.False(t, ok)

	start, end, ok := m.Range(3)
	require.True(t, ok)
	assert.Equal(t, 2, start)
	assert.Equal(t, 4, end)
	assert.Equal(t, 2, m.Degree(3))

	var rows []int32
	for e := range m.Entries(3) {
		rows = append(rows, e.Row)
	}
	assert.ElementsMatch(t, []int32{0, 2}, rows)

	assert.Equal(t, []uint32{0, 1, 3}, m.Keys().ToArray())

	k, ok := m.Key(1)
	require.True(t, ok)
	assert.Equal(t, 1, k)
}

func TestBuild_Presorted(t *testing.T) {
	sorted := []Edge{{Row: 0, Col: 1, Weight: 1}, {Row: 1, Col: 0, Weight: 1}}
	m, err := Build(sorted, 2, 1, WithPresorted(), WithDevice(newDevice(t)))
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumEntries())

	unsorted := []Edge{{Row: 1, Col: 0, Weight: 1}, {Row: 0, Col: 1, Weight: 1}}
	_, err = Build(unsorted, 2, 1, WithPresorted(), WithDevice(newDevice(t)))
	require.ErrorIs(t, err, ErrNotSorted)
}

func TestBuildCopy_DoesNotModifyInput(t *testing.T) {
	edges := []Edge{{Row: 1, Col: 0, Weight: 4}, {Row: 0, Col: 1, Weight: 8}}
	orig := append([]Edge(nil), edges...)

	m, err := BuildCopy(edges, 2, 4, WithDevice(newDevice(t)))
	require.NoError(t, err)

	assert.Equal(t, orig, edges)
	e, _ := m.Entry(0)
	assert.Equal(t, Edge{Row: 0, Col: 1, Weight: 2}, e)
}

func TestBuildFloat4(t *testing.T) {
	entries := []array.Float4{
		{X: 2, Y: 0, Z: 9},
		{X: 0, Y: 2, Z: 3},
		{X: 2, Y: 1, Z: 6},
	}

	m, err := BuildFloat4(entries, 3, 3, WithDevice(newDevice(t)))
	require.NoError(t, err)

	assert.Equal(t, 3, m.NumEntries())
	e, _ := m.Entry(0)
	assert.Equal(t, Edge{Row: 0, Col: 2, Weight: 1}, e)
	assert.Equal(t, 2, m.Degree(2))
	assert.Equal(t, float32(2), entries[0].X)

	_, err = BuildFloat4([]array.Float4{{X: 0.5}}, 3, 1)
	require.ErrorIs(t, err, ErrInvalidEdge)

	_, err = BuildFloat4([]array.Float4{{X: -1}}, 3, 1)
	require.ErrorIs(t, err, ErrInvalidEdge)
}

func TestBuild_IndexPadding(t *testing.T) {
	m, err := Build([]Edge{{Row: 1, Col: 1, Weight: 1}}, 3, 1, WithDevice(newDevice(t)))
	require.NoError(t, err)

	idx := m.IndexArray()
	row, _ := idx.Row(0)
	assert.Equal(t, []int32{Absent, 0, Absent}, row)
}

func TestBuild_DeviceFailureKeepsHostData(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	dev := newDevice(t, accel.WithMemoryLimit(64))
	edges := []Edge{{Row: 0, Col: 1, Weight: 2}, {Row: 1, Col: 0, Weight: 4}}

	m, err := Build(edges, 2, 2, WithDevice(dev), WithLogger(logger))
	require.NoError(t, err)

	assert.False(t, m.OnDevice())
	assert.Positive(t, strings.Count(buf.String(), "level=WARN"))

	e, ok := m.Entry(1)
	require.True(t, ok)
	assert.Equal(t, Edge{Row: 1, Col: 0, Weight: 2}, e)
	require.Error(t, m.Upload())
}

func TestBuild_Observer(t *testing.T) {
	obs := &mockObserver{}
	obs.On("RecordUpload", mock.Anything, nil).Twice()
	obs.On("RecordBuild", 2, 4, nil).Once()

	_, err := Build([]Edge{{Row: 0, Col: 1, Weight: 1}, {Row: 3, Col: 2, Weight: 1}}, 4, 1,
		WithDevice(newDevice(t)), WithObserver(obs))
	require.NoError(t, err)
	obs.AssertExpectations(t)
}

func TestRederive_SameOrientation(t *testing.T) {
	dev := newDevice(t)
	edges := []Edge{{Row: 2, Col: 0, Weight: 2}, {Row: 0, Col: 2, Weight: 4}, {Row: 2, Col: 1, Weight: 8}}
	src, err := Build(edges, 3, 2, WithDevice(dev))
	require.NoError(t, err)

	cp, err := Rederive(src, false, WithDevice(dev), WithOrientation(ByColumn))
	require.NoError(t, err)

	assert.Equal(t, ByRow, cp.Orientation())
	assert.True(t, cp.OnDevice())
	assert.NotSame(t, src.EntryArray(), cp.EntryArray())

	srcRow, _ := src.EntryArray().Row(0)
	cpRow, _ := cp.EntryArray().Row(0)
	assert.Equal(t, srcRow, cpRow)

	srcIdx, _ := src.IndexArray().Row(0)
	cpIdx, _ := cp.IndexArray().Row(0)
	assert.Equal(t, srcIdx, cpIdx)
	assert.True(t, src.Keys().Equals(cp.Keys()))
}

func TestRederive_FlipDoesNotRenormalize(t *testing.T) {
	dev := newDevice(t)
	edges := []Edge{{Row: 0, Col: 2, Weight: 4}, {Row: 1, Col: 0, Weight: 2}, {Row: 0, Col: 1, Weight: 6}}
	src, err := Build(edges, 3, 2, WithDevice(dev))
	require.NoError(t, err)

	flipped, err := Rederive(src, true, WithDevice(dev))
	require.NoError(t, err)
	assert.Equal(t, ByColumn, flipped.Orientation())

	var got []Edge
	for _, e := range flipped.All() {
		got = append(got, e)
	}
	assert.Equal(t, []Edge{
		{Row: 1, Col: 0, Weight: 1},
		{Row: 0, Col: 1, Weight: 3},
		{Row: 0, Col: 2, Weight: 2},
	}, got)

	back, err := Rederive(flipped, true, WithDevice(dev))
	require.NoError(t, err)
	assert.True(t, back.IsRowSorted())

	var orig, again []Edge
	for _, e := range src.All() {
		orig = append(orig, e)
	}
	for _, e := range back.All() {
		again = append(again, e)
	}
	assert.ElementsMatch(t, orig, again)
}

func TestRederive_Empty(t *testing.T) {
	src, err := Build(nil, 4, 1, WithOrientation(ByColumn))
	require.NoError(t, err)

	m, err := Rederive(src, true)
	require.NoError(t, err)
	assert.True(t, m.Empty())
	assert.Equal(t, 4, m.NumRowsCols())
	assert.Equal(t, ByRow, m.Orientation())
}

func TestRederive_Closed(t *testing.T) {
	src, err := Build([]Edge{{Row: 0, Col: 0, Weight: 1}}, 1, 1, WithDevice(newDevice(t)))
	require.NoError(t, err)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	_, err = Rederive(src, false)
	require.ErrorIs(t, err, ErrClosed)
}

func TestFromArrays(t *testing.T) {
	dev := newDevice(t)
	src, err := Build([]Edge{{Row: 1, Col: 0, Weight: 1}, {Row: 0, Col: 1, Weight: 1}, {Row: 1, Col: 1, Weight: 1}}, 2, 1, WithDevice(dev))
	require.NoError(t, err)

	entries, err := array.Restore[array.Float4](src.EntryArray().Layout(), src.EntryArray().Raw(), array.WithDevice(dev))
	require.NoError(t, err)
	index, err := array.Restore[int32](src.IndexArray().Layout(), src.IndexArray().Raw(), array.WithDevice(dev))
	require.NoError(t, err)

	m, err := FromArrays(entries, index, 2, 3, ByRow, WithDevice(dev))
	require.NoError(t, err)
	assert.True(t, m.OnDevice())
	assert.Equal(t, 2, m.Degree(1))
	assert.True(t, src.Keys().Equals(m.Keys()))
}

func TestFromArrays_Corrupt(t *testing.T) {
	dev := newDevice(t)

	entries, err := array.NewFromSlice(2, 1, []array.Float4{{X: 1}, {X: 0}}, array.WithDevice(dev))
	require.NoError(t, err)
	index, err := array.NewFromSlice(2, 1, []int32{1, 0}, array.WithDevice(dev))
	require.NoError(t, err)

	_, err = FromArrays(entries, index, 2, 2, ByRow)
	require.ErrorIs(t, err, ErrCorrupt)

	_, err = FromArrays(nil, nil, 2, 2, ByRow)
	require.ErrorIs(t, err, ErrCorrupt)

	_, err = FromArrays(entries, index, 3, 2, ByRow)
	require.ErrorIs(t, err, ErrCorrupt)

	good, err := array.NewFromSlice(2, 1, []int32{0, Absent}, array.WithDevice(dev))
	require.NoError(t, err)
	sorted, err := array.NewFromSlice(2, 1, []array.Float4{{X: 0}, {X: 0, Y: 1}}, array.WithDevice(dev))
	require.NoError(t, err)
	m, err := FromArrays(sorted, good, 2, 2, ByRow)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Degree(0))

	dangling, err := array.NewFromSlice(2, 1, []int32{0, 1}, array.WithDevice(dev))
	require.NoError(t, err)
	_, err = FromArrays(sorted, dangling, 2, 2, ByRow)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestMatrix_LookupBounds(t *testing.T) {
	m, err := Build([]Edge{{Row: 0, Col: 0, Weight: 1}}, 2, 1, WithDevice(newDevice(t)))
	require.NoError(t, err)

	_, ok := m.Start(-1)
	assert.False(t, ok)
	_, ok = m.Start(2)
	assert.False(t, ok)
	_, ok = m.Entry(1)
	assert.False(t, ok)
	_, ok = m.Key(-1)
	assert.False(t, ok)

	n := 0
	for range m.Entries(1) {
		n++
	}
	assert.Zero(t, n)
}

func TestOrientation_String(t *testing.T) {
	assert.Equal(t, "row", ByRow.String())
	assert.Equal(t, "column", ByColumn.String())
	assert.Equal(t, ByColumn, ByRow.Flip())
	assert.Equal(t, ByRow, ByColumn.Flip())
}
