package accel

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned when a device allocation does not fit the budget.
	ErrOutOfMemory = errors.New("accel: out of device memory")
	// ErrInvalidHandle is returned for unknown or already freed handles.
	ErrInvalidHandle = errors.New("accel: invalid handle")
	// ErrInvalidSize is returned for zero or negative allocation sizes.
	ErrInvalidSize = errors.New("accel: invalid allocation size")
	// ErrInvalidCopy is returned when copy parameters exceed either buffer.
	ErrInvalidCopy = errors.New("accel: invalid copy parameters")
	// ErrNotOnDevice is returned when device-side data is requested but absent.
	ErrNotOnDevice = errors.New("accel: data not resident on device")
	// ErrClosed is returned when a closed device is used.
	ErrClosed = errors.New("accel: device closed")
)

// Handle identifies a device allocation. The zero Handle is never valid.
type Handle uint64

// Valid reports whether h can refer to an allocation.
func (h Handle) Valid() bool { return h != 0 }

// DevicePtr addresses a byte inside a device allocation.
type DevicePtr struct {
	Handle Handle
	Offset int
}

// IsNil reports whether the pointer addresses nothing.
func (p DevicePtr) IsNil() bool { return !p.Handle.Valid() }

// Add returns p advanced by n bytes.
func (p DevicePtr) Add(n int) DevicePtr {
	return DevicePtr{Handle: p.Handle, Offset: p.Offset + n}
}

func (p DevicePtr) String() string {
	if p.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("dev:%d+%d", p.Handle, p.Offset)
}

// Direction specifies the direction of a 2D copy.
type Direction uint8

const (
	// HostToDevice copies from host memory into a device allocation.
	HostToDevice Direction = iota
	// DeviceToHost copies from a device allocation into host memory.
	DeviceToHost
)

func (d Direction) String() string {
	switch d {
	case HostToDevice:
		return "host-to-device"
	case DeviceToHost:
		return "device-to-host"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Copy2DParams describes a pitched rectangular copy.
//
// WidthBytes bytes of each of Height rows are copied. Rows start every
// HostPitch bytes in Host and every DevicePitch bytes in the allocation.
type Copy2DParams struct {
	Direction   Direction
	Host        []byte
	HostPitch   int
	Device      Handle
	DevicePitch int
	WidthBytes  int
	Height      int
}

// validate checks the host side and the pitches. The device side is
// checked by the implementation, which knows the allocation size.
func (p Copy2DParams) validate() error {
	if p.WidthBytes < 0 || p.Height < 0 {
		return fmt.Errorf("%w: negative extent %dx%d", ErrInvalidCopy, p.WidthBytes, p.Height)
	}
	if p.WidthBytes > p.HostPitch || p.WidthBytes > p.DevicePitch {
		return fmt.Errorf("%w: width %d exceeds pitch (host %d, device %d)",
			ErrInvalidCopy, p.WidthBytes, p.HostPitch, p.DevicePitch)
	}
	if p.Height > 0 && len(p.Host) < (p.Height-1)*p.HostPitch+p.WidthBytes {
		return fmt.Errorf("%w: host buffer of %d bytes too small", ErrInvalidCopy, len(p.Host))
	}
	if p.Direction != HostToDevice && p.Direction != DeviceToHost {
		return fmt.Errorf("%w: %s", ErrInvalidCopy, p.Direction)
	}
	return nil
}

// Device is the accelerator capability consumed by dual-residency arrays.
// Implementations must be safe for concurrent use.
type Device interface {
	// Name returns a human-readable device name.
	Name() string

	// AllocatePitch allocates height rows of at least widthBytes bytes each
	// and returns the handle and the row pitch in bytes.
	AllocatePitch(widthBytes, height int) (Handle, int, error)

	// Copy2D performs a pitch-aware copy between host and device memory.
	Copy2D(p Copy2DParams) error

	// Free releases an allocation.
	Free(h Handle) error

	// Synchronize blocks until all previously issued work has completed.
	Synchronize() error
}
