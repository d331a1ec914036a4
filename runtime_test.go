package dualmat

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dualmat/accel"
	"github.com/hupe1980/dualmat/array"
	"github.com/hupe1980/dualmat/blobstore"
	"github.com/hupe1980/dualmat/persistence"
	"github.com/hupe1980/dualmat/sparse"
	"github.com/hupe1980/dualmat/testutil"
)

func newRuntime(t *testing.T, optFns ...Option) *Runtime {
	t.Helper()
	rt, err := New(optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestNew_InvalidConfig(t *testing.T) {
	for _, opt := range []Option{
		WithMemoryLimit(-1),
		WithTransferRate(-1),
		WithPitchAlignment(0),
		WithCompression(persistence.Compression(9)),
	} {
		_, err := New(opt)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	}
}

func TestRuntime_BuildAndLookup(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	rt := newRuntime(t, WithMetricsCollector(metrics))

	m, err := rt.BuildMatrix(ctx, []sparse.Edge{
		{Row: 0, Col: 2, Weight: 4},
		{Row: 1, Col: 0, Weight: 2},
		{Row: 0, Col: 1, Weight: 6},
	}, 2, 2)
	require.NoError(t, err)
	defer m.Close()

	assert.True(t, m.OnDevice())
	assert.Equal(t, 2, m.Degree(0))
	assert.Equal(t, 1, m.Degree(1))

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.BuildCount)
	assert.Equal(t, int64(3), stats.BuildEntries)
	assert.Equal(t, int64(2), stats.UploadCount)
	assert.Zero(t, stats.UploadErrors)

	current, peak, ok := rt.MemoryUsage()
	require.True(t, ok)
	assert.Positive(t, current)
	assert.GreaterOrEqual(t, peak, current)

	devStats, ok := rt.DeviceStats()
	require.True(t, ok)
	assert.Equal(t, int64(2), devStats.LiveAllocations)
}

func TestRuntime_MemoryLimitLeavesHostOnly(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	metrics := &BasicMetricsCollector{}
	rt := newRuntime(t,
		WithMemoryLimit(1024),
		WithLogger(NewLogger(slog.NewTextHandler(&logs, nil))),
		WithMetricsCollector(metrics),
	)

	edges := testutil.NewRNG(1).Edges(500, 50)
	m, err := rt.BuildMatrixCopy(ctx, edges, 50, 1)
	require.NoError(t, err)
	defer m.Close()

	assert.False(t, m.OnDevice())
	assert.Equal(t, 500, m.NumEntries())
	total := 0
	for k := range 50 {
		total += m.Degree(k)
	}
	assert.Equal(t, 500, total)

	assert.Positive(t, metrics.GetStats().UploadErrors)
	assert.Contains(t, logs.String(), "matrix built host-only")

	current, _, _ := rt.MemoryUsage()
	assert.LessOrEqual(t, current, int64(1024))
}

func TestRuntime_FaultyDeviceKeepsHostData(t *testing.T) {
	ctx := context.Background()
	inner := accel.NewEmulated()
	t.Cleanup(func() { _ = inner.Close() })
	dev := accel.NewFaulty(inner)
	dev.Inject(accel.OpCopy, accel.Fault{Err: accel.ErrInjected, Direction: accel.HostToDevice, Only: true})
	rt := newRuntime(t, WithDevice(dev))

	a, err := NewArrayFromSlice(rt, 3, 1, []float32{1, 2, 3})
	require.NoError(t, err)
	defer a.Close()

	require.ErrorIs(t, a.Upload(), accel.ErrInjected)
	assert.False(t, a.OnDevice())
	v, ok := a.At(2, 0)
	require.True(t, ok)
	assert.Equal(t, float32(3), v)

	_, _, ok = rt.MemoryUsage()
	assert.False(t, ok)
	_, ok = rt.DeviceStats()
	assert.False(t, ok)

	m, err := rt.BuildMatrixFloat4(ctx, []array.Float4{{X: 0, Y: 0, Z: 1}}, 1, 1)
	require.NoError(t, err)
	defer m.Close()
	assert.False(t, m.OnDevice())
}

func TestRuntime_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewLocalStore(t.TempDir())
	rt := newRuntime(t, WithStore(store), WithCompression(persistence.CompressionZSTD))

	src, err := rt.BuildMatrixCopy(ctx, testutil.NewRNG(3).Edges(100, 20), 20, 1)
	require.NoError(t, err)
	defer src.Close()
	flipped, err := rt.Rederive(ctx, src, true)
	require.NoError(t, err)
	defer flipped.Close()

	require.NoError(t, rt.SaveMatrix(ctx, "flipped", flipped))

	got, err := rt.LoadMatrix(ctx, "flipped")
	require.NoError(t, err)
	defer got.Close()

	assert.Equal(t, sparse.ByColumn, got.Orientation())
	assert.True(t, got.OnDevice())
	for k := range 20 {
		assert.Equal(t, flipped.Degree(k), got.Degree(k))
	}

	man, err := persistence.ReadManifest(ctx, store, "flipped")
	require.NoError(t, err)
	assert.Equal(t, "zstd", man.Compression)
}

func TestRuntime_Closed(t *testing.T) {
	ctx := context.Background()
	rt, err := New()
	require.NoError(t, err)

	a, err := NewArray[int32](rt, 4, 4)
	require.NoError(t, err)
	require.NoError(t, a.Upload())

	var logs bytes.Buffer
	rt.logger = NewLogger(slog.NewTextHandler(&logs, nil))
	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())
	assert.True(t, strings.Contains(logs.String(), "live device allocations"))

	_, err = rt.BuildMatrix(ctx, nil, 1, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = NewArray[int32](rt, 1, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = rt.LoadMatrix(ctx, "x")
	assert.ErrorIs(t, err, ErrClosed)

	v, ok := a.At(0, 0)
	require.True(t, ok)
	assert.Zero(t, v)
}
