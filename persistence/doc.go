// Package persistence stores arrays and sparse matrices.
//
// Arrays use a little-endian binary format: a 64-byte header followed by the
// host payload, optionally block-compressed with LZ4 or Zstandard and
// protected by a CRC32C checksum. Payloads are written with the host pitch,
// so padding columns round-trip unchanged.
//
// Matrices are saved to a blobstore.BlobStore as a snapshot directory holding
// both arrays and a manifest, published by rewriting a CURRENT pointer:
//
//	name/CURRENT
//	name/<snapshot id>/entries.dma
//	name/<snapshot id>/index.dma
//	name/<snapshot id>/MANIFEST.<codec>
package persistence
