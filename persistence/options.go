package persistence

import (
	"log/slog"

	"github.com/hupe1980/dualmat/codec"
	"github.com/hupe1980/dualmat/internal/compress"
	"github.com/hupe1980/dualmat/sparse"
)

// Option configures matrix snapshots.
type Option func(*options)

type options struct {
	compression Compression
	codec       codec.Codec
	logger      *slog.Logger
	matrixOpts  []sparse.Option
	keep        int
}

func defaultOptions() options {
	return options{
		compression: compress.LZ4,
		codec:       codec.Default,
		logger:      slog.Default(),
		keep:        1,
	}
}

func applyOptions(optFns []Option) options {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// WithCompression selects the payload compression for saved arrays.
// Defaults to LZ4.
func WithCompression(t Compression) Option {
	return func(o *options) {
		o.compression = t
	}
}

// WithCodec selects the manifest codec used by SaveMatrix. LoadMatrix picks
// the codec recorded in the manifest name.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMatrixOptions sets the options a loaded matrix is assembled with
// (device, logger, observer).
func WithMatrixOptions(opts ...sparse.Option) Option {
	return func(o *options) {
		o.matrixOpts = append(o.matrixOpts, opts...)
	}
}

// WithKeepSnapshots sets how many snapshots SaveMatrix retains, including
// the one it writes. Values below 1 keep every snapshot. Defaults to 1.
func WithKeepSnapshots(n int) Option {
	return func(o *options) {
		o.keep = n
	}
}
