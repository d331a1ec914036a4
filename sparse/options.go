package sparse

import (
	"log/slog"
	"time"

	"github.com/hupe1980/dualmat/accel"
	"github.com/hupe1980/dualmat/array"
)

// Observer receives build and transfer measurements.
type Observer interface {
	array.Observer
	RecordBuild(entries, dim int, d time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) RecordUpload(int, time.Duration, error)     {}
func (noopObserver) RecordDownload(int, time.Duration, error)   {}
func (noopObserver) RecordBuild(int, int, time.Duration, error) {}

// Option configures matrix construction.
type Option func(*options)

type options struct {
	orientation Orientation
	presorted   bool
	device      accel.Device
	logger      *slog.Logger
	observer    Observer
}

func defaultOptions() options {
	return options{
		orientation: ByRow,
		logger:      slog.Default(),
		observer:    noopObserver{},
	}
}

func (o options) arrayOptions() []array.Option {
	opts := []array.Option{
		array.WithLogger(o.logger),
		array.WithObserver(o.observer),
	}
	if o.device != nil {
		opts = append(opts, array.WithDevice(o.device))
	}
	return opts
}

// WithOrientation selects the sort key. Defaults to ByRow.
// Rederive ignores it.
func WithOrientation(o Orientation) Option {
	return func(opts *options) {
		opts.orientation = o
	}
}

// WithPresorted declares the input already sorted by the chosen key, which
// skips sorting. The claim is verified.
func WithPresorted() Option {
	return func(opts *options) {
		opts.presorted = true
	}
}

// WithDevice sets the accelerator both arrays are uploaded to.
func WithDevice(d accel.Device) Option {
	return func(opts *options) {
		opts.device = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(opts *options) {
		if l != nil {
			opts.logger = l
		}
	}
}

// WithObserver sets the build and transfer observer.
func WithObserver(obs Observer) Option {
	return func(opts *options) {
		if obs != nil {
			opts.observer = obs
		}
	}
}

// ArrayOptions returns the array options implied by optFns: the device,
// logger and observer a built matrix hands to its arrays.
func ArrayOptions(optFns ...Option) []array.Option {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts.arrayOptions()
}
