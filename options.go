package dualmat

import (
	"log/slog"

	"github.com/hupe1980/dualmat/accel"
	"github.com/hupe1980/dualmat/blobstore"
	"github.com/hupe1980/dualmat/codec"
	"github.com/hupe1980/dualmat/persistence"
)

type options struct {
	device           accel.Device
	memoryLimit      int64
	transferRate     int64
	pitchAlignment   int
	logger           *Logger
	metricsCollector MetricsCollector
	store            blobstore.BlobStore
	compression      persistence.Compression
	codec            codec.Codec
	keepSnapshots    int
}

// Option configures a Runtime.
type Option func(*options)

// WithDevice uses d instead of an emulated accelerator owned by the Runtime.
// Memory limit, transfer rate and pitch alignment options are ignored, and
// Close leaves d open.
func WithDevice(d accel.Device) Option {
	return func(o *options) {
		o.device = d
	}
}

// WithMemoryLimit caps the accelerator memory in bytes. Zero means unlimited.
//
// Allocations that would exceed the cap fail, and the affected arrays stay
// host-only.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithTransferRate limits host/accelerator copies to bytesPerSec.
// Zero means unlimited.
func WithTransferRate(bytesPerSec int64) Option {
	return func(o *options) {
		o.transferRate = bytesPerSec
	}
}

// WithPitchAlignment sets the device row alignment in bytes.
// Defaults to accel.DefaultPitchAlignment.
func WithPitchAlignment(n int) Option {
	return func(o *options) {
		o.pitchAlignment = n
	}
}

// WithMetricsCollector configures a metrics collector for transfers and builds.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &dualmat.BasicMetricsCollector{}
//	rt, _ := dualmat.New(dualmat.WithMetricsCollector(metrics))
//	// ... build matrices ...
//	fmt.Println(metrics.GetStats())
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
//	logger := dualmat.NewJSONLogger(slog.LevelInfo)
//	rt, _ := dualmat.New(dualmat.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithStore sets the blob store snapshots are saved to.
// Defaults to a blobstore.MemoryStore.
func WithStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithCompression selects the array payload compression for snapshots.
// Defaults to LZ4.
func WithCompression(c persistence.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithCodec configures the codec used for snapshot manifests.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithKeepSnapshots sets how many snapshots per matrix are retained.
// Values below 1 keep every snapshot. Defaults to 1.
func WithKeepSnapshots(n int) Option {
	return func(o *options) {
		o.keepSnapshots = n
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		pitchAlignment:   accel.DefaultPitchAlignment,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		compression:      persistence.CompressionLZ4,
		codec:            codec.Default,
		keepSnapshots:    1,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
