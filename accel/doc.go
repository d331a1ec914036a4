// Package accel defines the accelerator capability used by dual-residency arrays.
//
// A Device hands out pitched 2D allocations, copies rectangular regions
// between host memory and device memory, frees allocations and exposes a
// full synchronization point. Device memory is addressed only through opaque
// Handles; host code never dereferences it.
//
// # Implementations
//
//   - Emulated: a host-memory accelerator. Each allocation is an anonymous
//     memory mapping outside the Go heap, with a configurable pitch
//     alignment, memory budget and transfer bandwidth.
//   - Faulty: wraps any Device and injects failures into selected
//     operations. Used to exercise host-only fallback paths.
//
// # Error Model
//
// Every operation is fallible and reports failure through its returned
// error; none of them panic. Callers are expected to degrade to host-only
// behavior.
package accel
