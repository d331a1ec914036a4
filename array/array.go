package array

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/dualmat/accel"
	"github.com/hupe1980/dualmat/internal/mem"
)

var (
	// ErrOutOfRange is returned for coordinates outside the logical extent.
	ErrOutOfRange = errors.New("array: coordinates out of range")
	// ErrDimensionMismatch is returned when two arrays differ in logical size.
	ErrDimensionMismatch = errors.New("array: dimension mismatch")
	// ErrEmpty is returned when a device operation is requested on a zero-sized array.
	ErrEmpty = errors.New("array: width or height is zero")
	// ErrClosed is returned when a closed array is used.
	ErrClosed = errors.New("array: closed")
)

// Array is a 2D container of T with optional accelerator residency.
type Array[T Element] struct {
	layout Layout
	host   []T

	device   accel.Device
	handle   accel.Handle
	devPitch int

	logger   *slog.Logger
	observer Observer
	closed   bool
}

// New creates a zero-filled width x height array. Zero dimensions are legal
// and yield an empty array.
func New[T Element](width, height int, optFns ...Option) (*Array[T], error) {
	return NewFromSlice[T](width, height, nil, optFns...)
}

// NewFromSlice creates an array and, when len(data) == width*height, scatters
// data row-major into the padded host layout. Any other non-empty length is
// logged and ignored.
func NewFromSlice[T Element](width, height int, data []T, optFns ...Option) (*Array[T], error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	layout, err := NewLayout(width, height, mem.SizeOf[T]())
	if err != nil {
		return nil, err
	}

	a := newArray[T](layout, opts)

	switch {
	case len(data) == width*height:
		for y := range height {
			copy(a.host[y*layout.HostStride:y*layout.HostStride+width], data[y*width:(y+1)*width])
		}
	case len(data) > 0:
		a.logger.Warn("initial data ignored",
			"len", len(data), "width", width, "height", height)
	}

	if opts.allocateDevice {
		_ = a.allocateDevice()
	}

	return a, nil
}

// Restore rebuilds a host-only array from a persisted layout and its host
// payload. raw must hold exactly layout.HostBytes() bytes; device fields of
// layout are discarded.
func Restore[T Element](layout Layout, raw []byte, optFns ...Option) (*Array[T], error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	layout = layout.HostOnly()
	if size := mem.SizeOf[T](); layout.ElemSize != size {
		return nil, fmt.Errorf("%w: element size %d, want %d", ErrInvalidLayout, layout.ElemSize, size)
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if len(raw) != layout.HostBytes() {
		return nil, fmt.Errorf("%w: payload of %d bytes, want %d", ErrInvalidLayout, len(raw), layout.HostBytes())
	}

	a := newArray[T](layout, opts)
	copy(mem.AsBytes(a.host), raw)
	return a, nil
}

func newArray[T Element](layout Layout, opts options) *Array[T] {
	dev := opts.device
	if dev == nil {
		dev = accel.Default()
	}
	return &Array[T]{
		layout:   layout,
		host:     mem.AllocSlice[T](layout.HostElements()),
		device:   dev,
		logger:   opts.logger,
		observer: opts.observer,
	}
}

// Width returns the logical width.
func (a *Array[T]) Width() int { return a.layout.Width }

// Height returns the logical height.
func (a *Array[T]) Height() int { return a.layout.Height }

// PaddedWidth returns the host row length in elements, padding included.
func (a *Array[T]) PaddedWidth() int { return a.layout.PaddedWidth }

// HostPitch returns the host row stride in bytes.
func (a *Array[T]) HostPitch() int { return a.layout.HostPitch }

// HostStride returns the host row stride in elements.
func (a *Array[T]) HostStride() int { return a.layout.HostStride }

// Bytes returns the host footprint in bytes.
func (a *Array[T]) Bytes() int { return a.layout.HostBytes() }

// OnDevice reports whether a device allocation exists.
func (a *Array[T]) OnDevice() bool { return a.handle.Valid() }

// Device returns the accelerator the array transfers to.
func (a *Array[T]) Device() accel.Device { return a.device }

// DevicePitch returns the device row stride in bytes.
func (a *Array[T]) DevicePitch() (int, bool) {
	if !a.OnDevice() {
		a.logger.Warn("device pitch requested but data is not on device")
		return 0, false
	}
	return a.devPitch, true
}

// DeviceStride returns the device row stride in elements.
func (a *Array[T]) DeviceStride() (int, bool) {
	if !a.OnDevice() {
		a.logger.Warn("device stride requested but data is not on device")
		return 0, false
	}
	return a.devPitch / a.layout.ElemSize, true
}

// Layout returns the current geometry, device fields included.
func (a *Array[T]) Layout() Layout {
	l := a.layout
	if a.OnDevice() {
		l.DevicePitch = a.devPitch
		l.DeviceStride = a.devPitch / l.ElemSize
	}
	return l
}

// Raw returns the host storage as bytes, padding included. The slice aliases
// the array and is valid until Close.
func (a *Array[T]) Raw() []byte { return mem.AsBytes(a.host) }

func (a *Array[T]) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < a.layout.Width && y < a.layout.Height
}

// ElementAt returns a pointer to the host element at (x, y).
func (a *Array[T]) ElementAt(x, y int) (*T, bool) {
	if a.closed || !a.inBounds(x, y) {
		return nil, false
	}
	return &a.host[y*a.layout.HostStride+x], true
}

// ElementAtDevice returns the device address of element (x, y). Asking for
// it while the array is not on the device is logged.
func (a *Array[T]) ElementAtDevice(x, y int) (accel.DevicePtr, bool) {
	if !a.OnDevice() {
		a.logger.Warn("device element requested but data is not on device", "x", x, "y", y)
		return accel.DevicePtr{}, false
	}
	if !a.inBounds(x, y) {
		return accel.DevicePtr{}, false
	}
	return accel.DevicePtr{
		Handle: a.handle,
		Offset: y*a.devPitch + x*a.layout.ElemSize,
	}, true
}

// At returns the host element at (x, y).
func (a *Array[T]) At(x, y int) (T, bool) {
	p, ok := a.ElementAt(x, y)
	if !ok {
		var zero T
		return zero, false
	}
	return *p, true
}

// Set stores v at (x, y) on the host.
func (a *Array[T]) Set(x, y int, v T) error {
	p, ok := a.ElementAt(x, y)
	if !ok {
		return fmt.Errorf("%w: (%d, %d) in %dx%d", ErrOutOfRange, x, y, a.layout.Width, a.layout.Height)
	}
	*p = v
	return nil
}

// Row returns the logical elements of host row y.
func (a *Array[T]) Row(y int) ([]T, bool) {
	if a.closed || y < 0 || y >= a.layout.Height {
		return nil, false
	}
	off := y * a.layout.HostStride
	return a.host[off : off+a.layout.Width : off+a.layout.Width], true
}

// Fill sets every host element, padding included, to v and optionally uploads.
func (a *Array[T]) Fill(v T, upload bool) error {
	if a.closed {
		return ErrClosed
	}
	for i := range a.host {
		a.host[i] = v
	}
	if upload {
		return a.Upload()
	}
	return nil
}

// CopyTo copies the logical host contents into dst and optionally uploads dst.
func (a *Array[T]) CopyTo(dst *Array[T], upload bool) error {
	if a.closed || dst.closed {
		return ErrClosed
	}
	if dst.layout.Width != a.layout.Width || dst.layout.Height != a.layout.Height {
		return fmt.Errorf("%w: %dx%d into %dx%d", ErrDimensionMismatch,
			a.layout.Width, a.layout.Height, dst.layout.Width, dst.layout.Height)
	}
	for y := range a.layout.Height {
		src, _ := a.Row(y)
		d, _ := dst.Row(y)
		copy(d, src)
	}
	if upload {
		return dst.Upload()
	}
	return nil
}

func (a *Array[T]) allocateDevice() error {
	if a.OnDevice() {
		return nil
	}
	if a.layout.Width == 0 || a.layout.Height == 0 {
		a.logger.Warn("device allocation skipped: width or height is zero",
			"width", a.layout.Width, "height", a.layout.Height)
		return ErrEmpty
	}

	h, pitch, err := a.device.AllocatePitch(a.layout.RowBytes(), a.layout.Height)
	if err != nil {
		a.logger.Warn("device allocation failed",
			"device", a.device.Name(), "width", a.layout.Width, "height", a.layout.Height, "error", err)
		return fmt.Errorf("array: allocate: %w", err)
	}
	a.handle = h
	a.devPitch = pitch
	return nil
}

// Upload copies the logical host contents to the device, allocating device
// storage first if needed. It returns after a full device synchronization.
// A failed copy releases the device allocation.
func (a *Array[T]) Upload() error {
	start := time.Now()
	err := a.upload()
	a.observer.RecordUpload(a.layout.Height*a.layout.RowBytes(), time.Since(start), err)
	return err
}

func (a *Array[T]) upload() error {
	if a.closed {
		return ErrClosed
	}
	if err := a.allocateDevice(); err != nil {
		return err
	}

	err := a.device.Copy2D(accel.Copy2DParams{
		Direction:   accel.HostToDevice,
		Host:        a.Raw(),
		HostPitch:   a.layout.HostPitch,
		Device:      a.handle,
		DevicePitch: a.devPitch,
		WidthBytes:  a.layout.RowBytes(),
		Height:      a.layout.Height,
	})
	if err != nil {
		a.logger.Warn("upload failed", "device", a.device.Name(), "bytes", a.layout.Height*a.layout.RowBytes(), "error", err)
		err = fmt.Errorf("array: upload: %w", err)
		_ = a.freeDevice()
	}

	if serr := a.device.Synchronize(); serr != nil {
		a.logger.Warn("device synchronize failed", "device", a.device.Name(), "error", serr)
		err = errors.Join(err, fmt.Errorf("array: synchronize: %w", serr))
	}
	return err
}

// Download copies the device contents back into host storage. It is a no-op
// when the array is not on the device. A failed copy leaves host rows unchanged.
func (a *Array[T]) Download() error {
	if !a.OnDevice() || a.closed {
		return nil
	}
	start := time.Now()
	err := a.download()
	a.observer.RecordDownload(a.layout.Height*a.layout.RowBytes(), time.Since(start), err)
	return err
}

func (a *Array[T]) download() error {
	stage := mem.AllocAligned(a.layout.HostBytes())

	err := a.device.Copy2D(accel.Copy2DParams{
		Direction:   accel.DeviceToHost,
		Host:        stage,
		HostPitch:   a.layout.HostPitch,
		Device:      a.handle,
		DevicePitch: a.devPitch,
		WidthBytes:  a.layout.RowBytes(),
		Height:      a.layout.Height,
	})
	if err == nil {
		err = a.device.Synchronize()
	}
	if err != nil {
		a.logger.Warn("download failed", "device", a.device.Name(), "error", err)
		return fmt.Errorf("array: download: %w", err)
	}

	raw := a.Raw()
	rowBytes := a.layout.RowBytes()
	for y := range a.layout.Height {
		off := y * a.layout.HostPitch
		copy(raw[off:off+rowBytes], stage[off:off+rowBytes])
	}
	return nil
}

// ReleaseDevice frees the device allocation. It is idempotent; device pitch
// and stride are reset even when the device reports a failure.
func (a *Array[T]) ReleaseDevice() error {
	if !a.OnDevice() {
		return nil
	}
	if err := a.freeDevice(); err != nil {
		a.logger.Warn("device release failed", "device", a.device.Name(), "error", err)
		return fmt.Errorf("array: release: %w", err)
	}
	return nil
}

func (a *Array[T]) freeDevice() error {
	h := a.handle
	a.handle = 0
	a.devPitch = 0
	return a.device.Free(h)
}

// Close releases device storage and drops host storage. Further use of the
// array reports ErrClosed or absent values.
func (a *Array[T]) Close() error {
	if a.closed {
		return nil
	}
	err := a.ReleaseDevice()
	a.closed = true
	a.host = nil
	return err
}
