package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hupe1980/dualmat/array"
	"github.com/hupe1980/dualmat/internal/compress"
	"github.com/hupe1980/dualmat/internal/conv"
	"github.com/hupe1980/dualmat/internal/hash"
	"github.com/hupe1980/dualmat/internal/mem"
)

func headerFor(l array.Layout, t compress.Type, payload []byte) (FileHeader, error) {
	fields := []int{l.ElemSize, l.Width, l.Height, l.PaddedWidth, l.HostPitch, l.HostStride, l.DevicePitch, l.DeviceStride}
	vals := make([]uint32, len(fields))
	for i, f := range fields {
		v, err := conv.IntToUint32(f)
		if err != nil {
			return FileHeader{}, fmt.Errorf("persistence: layout field %d: %w", i, err)
		}
		vals[i] = v
	}

	return FileHeader{
		Magic:        MagicNumber,
		Version:      Version,
		ElemSize:     vals[0],
		Compression:  t,
		Width:        vals[1],
		Height:       vals[2],
		PaddedWidth:  vals[3],
		HostPitch:    vals[4],
		HostStride:   vals[5],
		DevicePitch:  vals[6],
		DeviceStride: vals[7],
		PayloadLen:   uint64(len(payload)),
		Checksum:     hash.CRC32C(payload),
	}, nil
}

// WriteArray writes a's header and host payload to w. The device geometry is
// recorded for diagnostics only.
func WriteArray[T array.Element](w io.Writer, a *array.Array[T], t compress.Type) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %d", compress.ErrUnknownType, t)
	}

	payload, err := compress.Encode(a.Raw(), t)
	if err != nil {
		return fmt.Errorf("persistence: compress payload: %w", err)
	}

	header, err := headerFor(a.Layout(), t, payload)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadHeader reads and validates an array header.
func ReadHeader(r io.Reader) (FileHeader, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return FileHeader{}, err
	}
	if header.Magic != MagicNumber {
		return FileHeader{}, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return FileHeader{}, fmt.Errorf("%w: got %d", ErrInvalidVersion, header.Version)
	}
	if !header.Compression.Valid() {
		return FileHeader{}, fmt.Errorf("%w: %d", compress.ErrUnknownType, header.Compression)
	}
	return header, nil
}

// Layout returns the host-only layout described by h.
func (h FileHeader) Layout() array.Layout {
	return array.Layout{
		ElemSize:    int(h.ElemSize),
		Width:       int(h.Width),
		Height:      int(h.Height),
		PaddedWidth: int(h.PaddedWidth),
		HostPitch:   int(h.HostPitch),
		HostStride:  int(h.HostStride),
	}
}

// ReadArray reads an array written by WriteArray. The result is host-only;
// its storage is sized to paddedWidth*height before the payload is decoded.
func ReadArray[T array.Element](r io.Reader, optFns ...array.Option) (*array.Array[T], error) {
	header, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if size := mem.SizeOf[T](); int(header.ElemSize) != size {
		return nil, fmt.Errorf("%w: file has %d-byte elements, want %d", ErrElementSize, header.ElemSize, size)
	}

	layout := header.Layout()
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	rawLen := layout.HostBytes()
	payloadLen, err := conv.Uint64ToInt(header.PayloadLen)
	if err != nil || payloadLen > compress.MaxEncodedLen(rawLen) {
		return nil, fmt.Errorf("%w: payload of %d bytes for %d raw bytes", ErrCorrupt, header.PayloadLen, rawLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %w", ErrCorrupt, err)
	}
	if err := hash.Verify(payload, header.Checksum); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChecksum, err)
	}

	raw := mem.AllocAligned(rawLen)
	if err := compress.DecodeInto(raw, payload, header.Compression); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return array.Restore[T](layout, raw, optFns...)
}

// MarshalArray encodes a into a byte slice.
func MarshalArray[T array.Element](a *array.Array[T], t compress.Type) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + a.Bytes())
	if err := WriteArray(&buf, a, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalArray decodes an array from data.
func UnmarshalArray[T array.Element](data []byte, optFns ...array.Option) (*array.Array[T], error) {
	r := bytes.NewReader(data)
	a, err := ReadArray[T](r, optFns...)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		_ = a.Close()
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.Len())
	}
	return a, nil
}
