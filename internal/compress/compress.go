package compress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None stores blocks uncompressed.
	None Type = 0
	// LZ4 uses LZ4 block compression.
	LZ4 Type = 1
	// ZSTD uses Zstandard block compression.
	ZSTD Type = 2
)

// String returns the algorithm name.
func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Valid reports whether t is a known algorithm.
func (t Type) Valid() bool {
	return t <= ZSTD
}

// DefaultBlockSize is the uncompressed size of a block.
const DefaultBlockSize = 1 << 20

const blockHeaderSize = 8

var (
	// ErrCorruptBlock is returned when a block header or body is inconsistent.
	ErrCorruptBlock = errors.New("compress: corrupt block")
	// ErrUnknownType is returned for an unknown compression type.
	ErrUnknownType = errors.New("compress: unknown compression type")
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// compressBlock returns the framed block. Blocks that shrink by less than 10%
// are stored raw.
func compressBlock(data []byte, t Type) ([]byte, error) {
	var compressed []byte

	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case ZSTD:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, err
		}
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[blockHeaderSize:], data)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

func decompressBlock(dst, src []byte, t Type) ([]byte, error) {
	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, err
		}
		if n != len(dst) {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptBlock)
		}
		return dst, nil
	case ZSTD:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(src, dst[:0])
		if err != nil {
			return nil, err
		}
		if len(out) != len(dst) {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptBlock)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
}

// Writer buffers data and writes it as framed, compressed blocks.
type Writer struct {
	w         io.Writer
	t         Type
	blockSize int
	buffer    *bytes.Buffer
	written   int64
}

// NewWriter creates a new block writer. blockSize <= 0 selects DefaultBlockSize.
func NewWriter(w io.Writer, t Type, blockSize int) *Writer {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Writer{
		w:         w,
		t:         t,
		blockSize: blockSize,
		buffer:    bytes.NewBuffer(make([]byte, 0, blockSize)),
	}
}

// Write buffers p, flushing full blocks as needed.
func (c *Writer) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		space := c.blockSize - c.buffer.Len()
		if space <= 0 {
			if err := c.flushBlock(); err != nil {
				return total, err
			}
			space = c.blockSize
		}

		n, _ := c.buffer.Write(p[:min(len(p), space)])
		total += n
		p = p[n:]
	}
	return total, nil
}

func (c *Writer) flushBlock() error {
	if c.buffer.Len() == 0 {
		return nil
	}

	block, err := compressBlock(c.buffer.Bytes(), c.t)
	if err != nil {
		return err
	}

	n, err := c.w.Write(block)
	c.written += int64(n)
	if err != nil {
		return err
	}
	c.buffer.Reset()
	return nil
}

// Close flushes the final partial block. It does not close the underlying writer.
func (c *Writer) Close() error {
	return c.flushBlock()
}

// BytesWritten returns the framed bytes written to the underlying writer.
func (c *Writer) BytesWritten() int64 {
	return c.written
}

// MaxEncodedLen returns the largest framed size Encode can produce for n
// input bytes. Blocks that do not compress are stored raw.
func MaxEncodedLen(n int) int {
	if n <= 0 {
		return 0
	}
	blocks := (n + DefaultBlockSize - 1) / DefaultBlockSize
	return n + blocks*blockHeaderSize
}

// Encode compresses data into framed blocks.
func Encode(data []byte, t Type) ([]byte, error) {
	var buf bytes.Buffer
	w := NewWriter(&buf, t, 0)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeInto decodes framed blocks from src into dst, which must be exactly the
// total uncompressed size.
func DecodeInto(dst, src []byte, t Type) error {
	off := 0
	for len(src) > 0 {
		if len(src) < blockHeaderSize {
			return fmt.Errorf("%w: truncated header", ErrCorruptBlock)
		}
		rawSize := int(binary.LittleEndian.Uint32(src[0:]))
		compSize := int(binary.LittleEndian.Uint32(src[4:]))
		src = src[blockHeaderSize:]

		if off+rawSize > len(dst) {
			return fmt.Errorf("%w: output overflow", ErrCorruptBlock)
		}
		out := dst[off : off+rawSize : off+rawSize]

		if compSize == 0 {
			if len(src) < rawSize {
				return fmt.Errorf("%w: truncated raw block", ErrCorruptBlock)
			}
			copy(out, src[:rawSize])
			src = src[rawSize:]
		} else {
			if len(src) < compSize {
				return fmt.Errorf("%w: truncated compressed block", ErrCorruptBlock)
			}
			if _, err := decompressBlock(out, src[:compSize], t); err != nil {
				return err
			}
			src = src[compSize:]
		}
		off += rawSize
	}

	if off != len(dst) {
		return fmt.Errorf("%w: expected %d bytes, decoded %d", ErrCorruptBlock, len(dst), off)
	}
	return nil
}
