// Package mem provides memory allocation utilities.
//
// # Aligned Allocation
//
// Host buffers backing dual-residency arrays start on a cache-line boundary
// so that padded rows keep their alignment for vectorized access and for
// pitch-aware transfers to the accelerator.
package mem
