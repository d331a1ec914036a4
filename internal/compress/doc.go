// Package compress implements block compression for persisted array payloads.
//
// Payloads are split into fixed-size blocks, each written as
//
//	[UncompressedSize uint32][CompressedSize uint32][Data...]
//
// A CompressedSize of 0 marks a block stored raw because compression did not
// pay off. LZ4 favours speed, Zstandard favours ratio.
package compress
