package dualmat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/dualmat/accel"
	"github.com/hupe1980/dualmat/array"
	"github.com/hupe1980/dualmat/blobstore"
	"github.com/hupe1980/dualmat/internal/resource"
	"github.com/hupe1980/dualmat/persistence"
	"github.com/hupe1980/dualmat/sparse"
)

// Runtime bundles an accelerator, a blob store, logging and metrics, and
// applies them to every array and matrix created through it.
//
// A Runtime is safe for concurrent use. The arrays and matrices it returns
// follow their own package rules.
type Runtime struct {
	device   accel.Device
	emulated *accel.Emulated
	rc       *resource.Controller
	store    blobstore.BlobStore
	logger   *Logger
	metrics  MetricsCollector
	saveOpts []persistence.Option

	mu     sync.RWMutex
	closed bool
}

// New creates a Runtime. Without WithDevice it owns an emulated accelerator
// configured by WithMemoryLimit, WithTransferRate and WithPitchAlignment.
func New(optFns ...Option) (*Runtime, error) {
	o := applyOptions(optFns)
	if o.memoryLimit < 0 || o.transferRate < 0 || o.pitchAlignment <= 0 {
		return nil, fmt.Errorf("%w: memory limit %d, transfer rate %d, pitch alignment %d",
			ErrInvalidConfig, o.memoryLimit, o.transferRate, o.pitchAlignment)
	}
	if !o.compression.Valid() {
		return nil, fmt.Errorf("%w: compression %s", ErrInvalidConfig, o.compression)
	}

	rt := &Runtime{
		device:  o.device,
		store:   o.store,
		logger:  o.logger,
		metrics: o.metricsCollector,
		saveOpts: []persistence.Option{
			persistence.WithCompression(o.compression),
			persistence.WithCodec(o.codec),
			persistence.WithKeepSnapshots(o.keepSnapshots),
			persistence.WithLogger(o.logger.Logger),
		},
	}

	if rt.device == nil {
		rt.rc = resource.NewController(resource.Config{
			MemoryLimitBytes:    o.memoryLimit,
			TransferBytesPerSec: o.transferRate,
		})
		rt.emulated = accel.NewEmulated(
			accel.WithName("dualmat"),
			accel.WithPitchAlignment(o.pitchAlignment),
			accel.WithResourceController(rt.rc),
		)
		rt.device = rt.emulated
	}
	if rt.store == nil {
		rt.store = blobstore.NewMemoryStore()
	}

	limit := "unlimited"
	if o.memoryLimit > 0 {
		limit = humanize.IBytes(uint64(o.memoryLimit))
	}
	rate := "unlimited"
	if o.transferRate > 0 {
		rate = humanize.IBytes(uint64(o.transferRate)) + "/s"
	}
	rt.logger.Info("runtime started",
		"device", rt.device.Name(),
		"memory_limit", limit,
		"transfer_rate", rate,
		"compression", o.compression.String(),
	)
	return rt, nil
}

// Device returns the accelerator.
func (rt *Runtime) Device() accel.Device { return rt.device }

// Store returns the snapshot store.
func (rt *Runtime) Store() blobstore.BlobStore { return rt.store }

// Logger returns the logger.
func (rt *Runtime) Logger() *Logger { return rt.logger }

// Metrics returns the metrics collector.
func (rt *Runtime) Metrics() MetricsCollector { return rt.metrics }

// MemoryUsage returns the current and peak accelerator bytes of an owned
// device. ok is false when the device was supplied with WithDevice.
func (rt *Runtime) MemoryUsage() (current, peak int64, ok bool) {
	if rt.rc == nil {
		return 0, 0, false
	}
	return rt.rc.MemoryUsage(), rt.rc.PeakMemoryUsage(), true
}

// DeviceStats returns transfer statistics of an owned device.
func (rt *Runtime) DeviceStats() (accel.Stats, bool) {
	if rt.emulated == nil {
		return accel.Stats{}, false
	}
	return rt.emulated.Stats(), true
}

func (rt *Runtime) check() error {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.closed {
		return ErrClosed
	}
	return nil
}

// ArrayOptions returns the array options that bind to this runtime.
func (rt *Runtime) ArrayOptions() []array.Option {
	return []array.Option{
		array.WithDevice(rt.device),
		array.WithLogger(rt.logger.Logger),
		array.WithObserver(rt.metrics),
	}
}

// MatrixOptions prepends the runtime's device, logger and metrics to optFns.
func (rt *Runtime) MatrixOptions(optFns ...sparse.Option) []sparse.Option {
	return append([]sparse.Option{
		sparse.WithDevice(rt.device),
		sparse.WithLogger(rt.logger.Logger),
		sparse.WithObserver(rt.metrics),
	}, optFns...)
}

// NewArray creates a width x height array bound to rt.
func NewArray[T array.Element](rt *Runtime, width, height int, optFns ...array.Option) (*array.Array[T], error) {
	if err := rt.check(); err != nil {
		return nil, err
	}
	return array.New[T](width, height, append(rt.ArrayOptions(), optFns...)...)
}

// NewArrayFromSlice creates an array bound to rt from row-major data.
func NewArrayFromSlice[T array.Element](rt *Runtime, width, height int, data []T, optFns ...array.Option) (*array.Array[T], error) {
	if err := rt.check(); err != nil {
		return nil, err
	}
	return array.NewFromSlice(width, height, data, append(rt.ArrayOptions(), optFns...)...)
}

func (rt *Runtime) logBuild(ctx context.Context, m *sparse.Matrix, entries, dim int, err error) {
	if err != nil {
		rt.logger.LogBuild(ctx, entries, dim, false, err)
		return
	}
	rt.logger.LogBuild(ctx, m.NumEntries(), m.NumRowsCols(), m.OnDevice(), nil)
}

// BuildMatrix builds a matrix from edges, consuming them. See sparse.Build.
func (rt *Runtime) BuildMatrix(ctx context.Context, edges []sparse.Edge, dim int, norm float32, optFns ...sparse.Option) (*sparse.Matrix, error) {
	if err := rt.check(); err != nil {
		return nil, err
	}
	m, err := sparse.Build(edges, dim, norm, rt.MatrixOptions(optFns...)...)
	rt.logBuild(ctx, m, len(edges), dim, err)
	return m, err
}

// BuildMatrixCopy is BuildMatrix without modifying edges.
func (rt *Runtime) BuildMatrixCopy(ctx context.Context, edges []sparse.Edge, dim int, norm float32, optFns ...sparse.Option) (*sparse.Matrix, error) {
	if err := rt.check(); err != nil {
		return nil, err
	}
	m, err := sparse.BuildCopy(edges, dim, norm, rt.MatrixOptions(optFns...)...)
	rt.logBuild(ctx, m, len(edges), dim, err)
	return m, err
}

// BuildMatrixFloat4 builds a matrix from packed (row, col, weight, _) records.
func (rt *Runtime) BuildMatrixFloat4(ctx context.Context, entries []array.Float4, dim int, norm float32, optFns ...sparse.Option) (*sparse.Matrix, error) {
	if err := rt.check(); err != nil {
		return nil, err
	}
	m, err := sparse.BuildFloat4(entries, dim, norm, rt.MatrixOptions(optFns...)...)
	rt.logBuild(ctx, m, len(entries), dim, err)
	return m, err
}

// Rederive copies src, optionally flipping its orientation. See sparse.Rederive.
func (rt *Runtime) Rederive(ctx context.Context, src *sparse.Matrix, flip bool) (*sparse.Matrix, error) {
	if err := rt.check(); err != nil {
		return nil, err
	}
	m, err := sparse.Rederive(src, flip, rt.MatrixOptions()...)
	rt.logBuild(ctx, m, src.NumEntries(), src.NumRowsCols(), err)
	return m, err
}

// SaveMatrix saves m under name in the runtime's store.
func (rt *Runtime) SaveMatrix(ctx context.Context, name string, m *sparse.Matrix) error {
	if err := rt.check(); err != nil {
		return err
	}
	err := persistence.SaveMatrix(ctx, rt.store, name, m, rt.saveOpts...)
	rt.logger.LogSnapshot(ctx, name, err)
	return err
}

// LoadMatrix loads the latest snapshot saved under name and uploads it to
// the runtime's device.
func (rt *Runtime) LoadMatrix(ctx context.Context, name string, optFns ...sparse.Option) (*sparse.Matrix, error) {
	if err := rt.check(); err != nil {
		return nil, err
	}
	opts := append(rt.saveOpts[:len(rt.saveOpts):len(rt.saveOpts)], persistence.WithMatrixOptions(rt.MatrixOptions(optFns...)...))
	m, err := persistence.LoadMatrix(ctx, rt.store, name, opts...)
	entries := 0
	if err == nil {
		entries = m.NumEntries()
	}
	rt.logger.LogLoad(ctx, name, entries, err)
	return m, err
}

// Close releases the owned accelerator and any device memory still held by
// arrays created through the runtime. Their host data stays valid; device
// operations on them fail afterwards. Close is idempotent.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil
	}
	rt.closed = true

	var errs []error
	if rt.emulated != nil {
		if stats := rt.emulated.Stats(); stats.LiveAllocations > 0 {
			rt.logger.Warn("closing runtime with live device allocations",
				"allocations", stats.LiveAllocations,
				"bytes", humanize.IBytes(uint64(max(stats.LiveBytes, 0))),
			)
		}
		errs = append(errs, rt.emulated.Close())
	}
	return errors.Join(errs...)
}
