// Package mmap provides file and anonymous memory mappings.
//
// Open maps a file read-only for zero-copy reads of persisted arrays.
// MapAnon returns a read-write anonymous mapping outside the Go heap; the
// emulated accelerator uses it as device memory so that device buffers are
// allocated and released independently of host buffers.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) / munmap(2)
//   - Windows: CreateFileMapping/MapViewOfFile and VirtualAlloc/VirtualFree
//
// Close is idempotent. Callers must not use Bytes() after Close() returns.
package mmap
