package accel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/dualmat/internal/mmap"
	"github.com/hupe1980/dualmat/internal/resource"
)

// DefaultPitchAlignment is the row alignment of emulated allocations in bytes.
const DefaultPitchAlignment = 256

// Stats reports device activity counters.
type Stats struct {
	Allocations     int64
	Frees           int64
	LiveAllocations int64
	LiveBytes       int64
	PeakBytes       int64
	Copies          int64
	BytesToDevice   int64
	BytesToHost     int64
	Synchronizes    int64
}

type buffer struct {
	mapping *mmap.Mapping
	pitch   int
	height  int
}

func (b *buffer) size() int { return b.pitch * b.height }

// Emulated is a Device whose memory lives in anonymous memory mappings.
// Copies complete before Copy2D returns.
type Emulated struct {
	name       string
	pitchAlign int
	rc         *resource.Controller

	mu      sync.RWMutex
	buffers map[Handle]*buffer
	next    Handle
	closed  bool

	allocs       atomic.Int64
	frees        atomic.Int64
	copies       atomic.Int64
	toDevice     atomic.Int64
	toHost       atomic.Int64
	synchronizes atomic.Int64
}

// EmulatedOption configures an Emulated device.
type EmulatedOption func(*emulatedOptions)

type emulatedOptions struct {
	name          string
	pitchAlign    int
	memoryLimit   int64
	transferLimit int64
	rc            *resource.Controller
}

// WithName sets the device name.
func WithName(name string) EmulatedOption {
	return func(o *emulatedOptions) {
		o.name = name
	}
}

// WithPitchAlignment sets the row alignment in bytes. Non-positive values are ignored.
func WithPitchAlignment(n int) EmulatedOption {
	return func(o *emulatedOptions) {
		if n > 0 {
			o.pitchAlign = n
		}
	}
}

// WithMemoryLimit caps the total bytes of live allocations. 0 means unlimited.
func WithMemoryLimit(bytes int64) EmulatedOption {
	return func(o *emulatedOptions) {
		o.memoryLimit = bytes
	}
}

// WithTransferRate caps host/device copy throughput in bytes per second.
// 0 means unlimited.
func WithTransferRate(bytesPerSec int64) EmulatedOption {
	return func(o *emulatedOptions) {
		o.transferLimit = bytesPerSec
	}
}

// WithResourceController shares an existing controller between devices.
// It takes precedence over WithMemoryLimit and WithTransferRate.
func WithResourceController(rc *resource.Controller) EmulatedOption {
	return func(o *emulatedOptions) {
		o.rc = rc
	}
}

// NewEmulated creates an emulated accelerator.
func NewEmulated(optFns ...EmulatedOption) *Emulated {
	opts := emulatedOptions{
		name:       "emulated",
		pitchAlign: DefaultPitchAlignment,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	rc := opts.rc
	if rc == nil {
		rc = resource.NewController(resource.Config{
			MemoryLimitBytes:    opts.memoryLimit,
			TransferBytesPerSec: opts.transferLimit,
		})
	}

	return &Emulated{
		name:       opts.name,
		pitchAlign: opts.pitchAlign,
		rc:         rc,
		buffers:    make(map[Handle]*buffer),
	}
}

var (
	defaultOnce   sync.Once
	defaultDevice *Emulated
)

// Default returns the process-wide emulated device, creating it on first use.
func Default() *Emulated {
	defaultOnce.Do(func() {
		defaultDevice = NewEmulated(WithName("default"))
	})
	return defaultDevice
}

// Name implements Device.
func (e *Emulated) Name() string { return e.name }

// PitchAlignment returns the row alignment in bytes.
func (e *Emulated) PitchAlignment() int { return e.pitchAlign }

// AllocatePitch implements Device.
func (e *Emulated) AllocatePitch(widthBytes, height int) (Handle, int, error) {
	if widthBytes <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: %dx%d", ErrInvalidSize, widthBytes, height)
	}

	pitch := (widthBytes + e.pitchAlign - 1) / e.pitchAlign * e.pitchAlign
	size := pitch * height
	if size/height != pitch {
		return 0, 0, fmt.Errorf("%w: %dx%d overflows", ErrInvalidSize, pitch, height)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, 0, ErrClosed
	}

	if err := e.rc.AcquireMemory(int64(size)); err != nil {
		if errors.Is(err, resource.ErrMemoryLimitExceeded) {
			return 0, 0, fmt.Errorf("%w: %d bytes requested, %d of %d in use",
				ErrOutOfMemory, size, e.rc.MemoryUsage(), e.rc.MemoryLimit())
		}
		return 0, 0, err
	}

	m, err := mmap.MapAnon(size)
	if err != nil {
		e.rc.ReleaseMemory(int64(size))
		return 0, 0, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	e.next++
	h := e.next
	e.buffers[h] = &buffer{mapping: m, pitch: pitch, height: height}
	e.allocs.Add(1)

	return h, pitch, nil
}

// Copy2D implements Device.
func (e *Emulated) Copy2D(p Copy2DParams) error {
	if err := p.validate(); err != nil {
		return err
	}

	// AcquireTransfer may block on the rate limiter. Wait before taking mu.
	n := p.WidthBytes * p.Height
	if err := e.rc.AcquireTransfer(context.Background(), n); err != nil {
		return err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrClosed
	}

	buf, ok := e.buffers[p.Device]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidHandle, p.Device)
	}
	if p.Height > 0 && buf.size() < (p.Height-1)*p.DevicePitch+p.WidthBytes {
		return fmt.Errorf("%w: device allocation of %d bytes too small", ErrInvalidCopy, buf.size())
	}

	dev := buf.mapping.Bytes()
	for row := 0; row < p.Height; row++ {
		h := p.Host[row*p.HostPitch : row*p.HostPitch+p.WidthBytes]
		d := dev[row*p.DevicePitch : row*p.DevicePitch+p.WidthBytes]
		if p.Direction == HostToDevice {
			copy(d, h)
		} else {
			copy(h, d)
		}
	}

	e.copies.Add(1)
	if p.Direction == HostToDevice {
		e.toDevice.Add(int64(n))
	} else {
		e.toHost.Add(int64(n))
	}
	return nil
}

// Free implements Device.
func (e *Emulated) Free(h Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	buf, ok := e.buffers[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	delete(e.buffers, h)
	e.rc.ReleaseMemory(int64(buf.size()))
	e.frees.Add(1)

	return buf.mapping.Close()
}

// Synchronize implements Device. Emulated copies are synchronous, so this
// only acts as a barrier against concurrent allocation changes.
func (e *Emulated) Synchronize() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrClosed
	}
	e.synchronizes.Add(1)
	return nil
}

// ReadAt copies device bytes starting at ptr into dst.
func (e *Emulated) ReadAt(ptr DevicePtr, dst []byte) error {
	return e.access(ptr, len(dst), func(dev []byte) { copy(dst, dev) })
}

// WriteAt copies src into device memory starting at ptr, the way a kernel
// would modify device-resident data.
func (e *Emulated) WriteAt(ptr DevicePtr, src []byte) error {
	return e.access(ptr, len(src), func(dev []byte) { copy(dev, src) })
}

func (e *Emulated) access(ptr DevicePtr, n int, fn func([]byte)) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrClosed
	}
	buf, ok := e.buffers[ptr.Handle]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidHandle, ptr)
	}
	if ptr.Offset < 0 || ptr.Offset+n > buf.size() {
		return fmt.Errorf("%w: %d bytes at %s exceed allocation of %d bytes",
			ErrInvalidCopy, n, ptr, buf.size())
	}
	fn(buf.mapping.Bytes()[ptr.Offset : ptr.Offset+n])
	return nil
}

// Stats returns a snapshot of the device counters.
func (e *Emulated) Stats() Stats {
	e.mu.RLock()
	live := int64(len(e.buffers))
	e.mu.RUnlock()

	return Stats{
		Allocations:     e.allocs.Load(),
		Frees:           e.frees.Load(),
		LiveAllocations: live,
		LiveBytes:       e.rc.MemoryUsage(),
		PeakBytes:       e.rc.PeakMemoryUsage(),
		Copies:          e.copies.Load(),
		BytesToDevice:   e.toDevice.Load(),
		BytesToHost:     e.toHost.Load(),
		Synchronizes:    e.synchronizes.Load(),
	}
}

// Close frees all live allocations. Further use returns ErrClosed.
func (e *Emulated) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for h, buf := range e.buffers {
		e.rc.ReleaseMemory(int64(buf.size()))
		if err := buf.mapping.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(e.buffers, h)
	}
	return errors.Join(errs...)
}

var _ Device = (*Emulated)(nil)
