package array

import (
	"errors"
	"fmt"

	"github.com/hupe1980/dualmat/internal/conv"
)

// HostAlignment is the byte boundary every host row stride is rounded up to.
const HostAlignment = 32

// ErrInvalidLayout is returned when a layout is internally inconsistent.
var ErrInvalidLayout = errors.New("array: invalid layout")

// Layout describes the geometry of an Array.
//
// Pitches are in bytes, strides in elements. Device fields are zero when the
// array has no device allocation.
type Layout struct {
	ElemSize     int
	Width        int
	Height       int
	PaddedWidth  int
	HostPitch    int
	HostStride   int
	DevicePitch  int
	DeviceStride int
}

// PaddedWidth returns the smallest width >= width whose row size in bytes is
// a multiple of HostAlignment. Widths that are already aligned are returned
// unchanged.
func PaddedWidth(width, elemSize int) int {
	if width <= 0 || elemSize <= 0 {
		return 0
	}
	unit := HostAlignment / gcd(elemSize, HostAlignment)
	return (width + unit - 1) / unit * unit
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// NewLayout computes the host geometry for a width x height array.
func NewLayout(width, height, elemSize int) (Layout, error) {
	if width < 0 || height < 0 {
		return Layout{}, fmt.Errorf("%w: negative dimensions %dx%d", ErrInvalidLayout, width, height)
	}
	if elemSize <= 0 {
		return Layout{}, fmt.Errorf("%w: element size %d", ErrInvalidLayout, elemSize)
	}

	padded := PaddedWidth(width, elemSize)
	pitch, err := conv.MulInt(padded, elemSize)
	if err != nil {
		return Layout{}, fmt.Errorf("%w: row of %d elements: %w", ErrInvalidLayout, padded, err)
	}
	if _, err := conv.MulInt(pitch, height); err != nil {
		return Layout{}, fmt.Errorf("%w: %d rows of %d bytes: %w", ErrInvalidLayout, height, pitch, err)
	}

	return Layout{
		ElemSize:    elemSize,
		Width:       width,
		Height:      height,
		PaddedWidth: padded,
		HostPitch:   pitch,
		HostStride:  padded,
	}, nil
}

// HostElements returns the number of elements in host storage.
func (l Layout) HostElements() int {
	return l.PaddedWidth * l.Height
}

// HostBytes returns the size of host storage in bytes.
func (l Layout) HostBytes() int {
	return l.HostPitch * l.Height
}

// RowBytes returns the logical row size in bytes, excluding padding.
func (l Layout) RowBytes() int {
	return l.Width * l.ElemSize
}

// Validate checks the host fields for consistency. Device fields are ignored.
func (l Layout) Validate() error {
	want, err := NewLayout(l.Width, l.Height, l.ElemSize)
	if err != nil {
		return err
	}
	if l.PaddedWidth != want.PaddedWidth || l.HostPitch != want.HostPitch || l.HostStride != want.HostStride {
		return fmt.Errorf("%w: got padded=%d pitch=%d stride=%d, want padded=%d pitch=%d stride=%d",
			ErrInvalidLayout, l.PaddedWidth, l.HostPitch, l.HostStride,
			want.PaddedWidth, want.HostPitch, want.HostStride)
	}
	return nil
}

// HostOnly returns l with device fields cleared.
func (l Layout) HostOnly() Layout {
	l.DevicePitch = 0
	l.DeviceStride = 0
	return l
}
