package mem

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// Alignment is the byte alignment of buffers returned by this package.
// It equals the cache line size reported by golang.org/x/sys/cpu.
var Alignment = int(unsafe.Sizeof(cpu.CacheLinePad{}))

func init() {
	// CacheLinePad is zero-sized on some platforms.
	if Alignment < 64 {
		Alignment = 64
	}
}

// AllocAligned allocates a byte slice of the given size aligned to Alignment.
// The returned slice is guaranteed to start at a memory address divisible by Alignment.
//
// Note: This function allocates slightly more memory than requested to ensure alignment.
// The underlying array is kept alive by the returned slice.
func AllocAligned(size int) []byte {
	if size <= 0 {
		return nil
	}

	align := uintptr(Alignment)
	buf := make([]byte, size+Alignment)

	addr := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // unsafe is required for memory alignment
	offset := (align - (addr & (align - 1))) & (align - 1)

	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}

// AllocSlice allocates a zeroed slice of n elements of T whose first element is
// aligned to Alignment.
//
// T must not contain pointers; the backing memory is a byte array and is not
// scanned by the garbage collector.
func AllocSlice[T any](n int) []T {
	if n <= 0 {
		return nil
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return make([]T, n)
	}

	raw := AllocAligned(n * size)
	return unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), n) //nolint:gosec // unsafe is required for memory alignment
}

// AsBytes reinterprets a slice of fixed-size values as raw bytes without copying.
func AsBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*size) //nolint:gosec // unsafe is required for zero-copy views
}

// SizeOf returns the size in bytes of a value of type T.
func SizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// IsAligned reports whether the first element of s sits on an Alignment boundary.
func IsAligned[T any](s []T) bool {
	if len(s) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&s[0]))%uintptr(Alignment) == 0 //nolint:gosec // address inspection only
}
