package array

import (
	"log/slog"
	"time"

	"github.com/hupe1980/dualmat/accel"
)

// Observer receives transfer measurements.
type Observer interface {
	RecordUpload(bytes int, d time.Duration, err error)
	RecordDownload(bytes int, d time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) RecordUpload(int, time.Duration, error)   {}
func (noopObserver) RecordDownload(int, time.Duration, error) {}

// Option configures an Array.
type Option func(*options)

type options struct {
	device         accel.Device
	logger         *slog.Logger
	observer       Observer
	allocateDevice bool
}

func defaultOptions() options {
	return options{
		logger:   slog.Default(),
		observer: noopObserver{},
	}
}

// WithDevice sets the accelerator. Defaults to accel.Default().
func WithDevice(d accel.Device) Option {
	return func(o *options) {
		o.device = d
	}
}

// WithLogger sets the logger for device diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver sets the transfer observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithAllocateDevice allocates device storage during construction.
// A failed allocation is logged and leaves the array host-only.
func WithAllocateDevice() Option {
	return func(o *options) {
		o.allocateDevice = true
	}
}
