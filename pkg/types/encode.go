package types

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode serializes the buffer elements to their canonical byte
// representation: little-endian 8-byte values for integer and floating
// elements, uvarint length-prefixed UTF-8 for string elements. On-disk
// backends and content digests both rely on this encoding.
func (b Buffer) Encode() []byte {
	switch b.DType {
	case DTypeInteger:
		out := make([]byte, 8*len(b.Ints))
		for i, v := range b.Ints {
			binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
		}
		return out

	case DTypeFloating:
		out := make([]byte, 8*len(b.Floats))
		for i, v := range b.Floats {
			binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
		}
		return out

	case DTypeString:
		size := 0
		for _, s := range b.Strings {
			size += binary.MaxVarintLen64 + len(s)
		}
		out := make([]byte, 0, size)
		var tmp [binary.MaxVarintLen64]byte
		for _, s := range b.Strings {
			n := binary.PutUvarint(tmp[:], uint64(len(s)))
			out = append(out, tmp[:n]...)
			out = append(out, s...)
		}
		return out
	}
	return nil
}

// DecodeBuffer deserializes n elements of dtype d from bytes produced
// by Encode.
func DecodeBuffer(d DType, n int64, raw []byte) (Buffer, error) {
	b := NewBuffer(d, n)
	switch d {
	case DTypeInteger:
		if int64(len(raw)) != 8*n {
			return Buffer{}, fmt.Errorf("integer buffer: %d bytes for %d elements", len(raw), n)
		}
		for i := range b.Ints {
			b.Ints[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}

	case DTypeFloating:
		if int64(len(raw)) != 8*n {
			return Buffer{}, fmt.Errorf("floating buffer: %d bytes for %d elements", len(raw), n)
		}
		for i := range b.Floats {
			b.Floats[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}

	case DTypeString:
		offset := 0
		for i := int64(0); i < n; i++ {
			length, read := binary.Uvarint(raw[offset:])
			if read <= 0 {
				return Buffer{}, fmt.Errorf("string buffer: truncated length prefix at element %d", i)
			}
			offset += read
			end := offset + int(length)
			if end > len(raw) || end < offset {
				return Buffer{}, fmt.Errorf("string buffer: truncated element %d", i)
			}
			b.Strings[i] = string(raw[offset:end])
			offset = end
		}
		if offset != len(raw) {
			return Buffer{}, fmt.Errorf("string buffer: %d trailing bytes", len(raw)-offset)
		}

	default:
		return Buffer{}, fmt.Errorf("%w: %q", ErrUnknownDType, d)
	}
	return b, nil
}
