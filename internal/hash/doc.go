// Package hash provides CRC32-Castagnoli checksums for persisted payloads.
//
// Go's hash/crc32 uses SSE4.2 on x86-64 and the CRC extension on ARM64 for
// the Castagnoli polynomial, so checksumming array payloads is far cheaper
// than the copy that produced them.
//
// One-shot:
//
//	sum := hash.CRC32C(data)
//
// Streaming:
//
//	w := hash.NewWriter(dst)
//	_, _ = w.Write(chunk)
//	sum := w.Sum32()
package hash
