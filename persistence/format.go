package persistence

import (
	"errors"

	"github.com/hupe1980/dualmat/internal/compress"
)

const (
	// MagicNumber identifies array files (ASCII "DMA1", little-endian).
	MagicNumber = 0x31414D44
	// Version is the current array format version.
	Version = 1
	// HeaderSize is the encoded size of FileHeader.
	HeaderSize = 64
)

// Compression selects how array payloads are stored.
type Compression = compress.Type

const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZSTD = compress.ZSTD
)

var (
	ErrInvalidMagic   = errors.New("persistence: invalid magic number")
	ErrInvalidVersion = errors.New("persistence: unsupported version")
	ErrElementSize    = errors.New("persistence: element size mismatch")
	ErrChecksum       = errors.New("persistence: checksum mismatch")
	ErrCorrupt        = errors.New("persistence: corrupt data")
)

// FileHeader is the 64-byte header at the start of every array file.
type FileHeader struct {
	Magic        uint32
	Version      uint32
	ElemSize     uint32
	Compression  compress.Type
	_            [3]byte
	Width        uint32
	Height       uint32
	PaddedWidth  uint32
	HostPitch    uint32
	HostStride   uint32
	DevicePitch  uint32
	DeviceStride uint32
	PayloadLen   uint64
	Checksum     uint32 // CRC32C of the stored payload
	_            [8]byte
}
