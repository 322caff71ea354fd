// Package compress provides the block codecs used for chunk payloads in
// the chunked archive backend.
package compress

import (
	"errors"
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies the compression algorithm applied to one chunk
// payload. Codec values are persisted in chunk index entries; changing
// them breaks archive file compatibility.
type Codec uint8

const (
	// CodecNone stores the payload uncompressed.
	CodecNone Codec = 0

	// CodecSnappy is the default codec: modest ratio, cheap decode.
	CodecSnappy Codec = 1

	// CodecZstd trades CPU for a better ratio on text-heavy payloads
	// such as string arrays and metadata blocks.
	CodecZstd Codec = 2

	// CodecLZ4 is a fast block codec for numeric payloads.
	CodecLZ4 Codec = 3
)

// ErrIncompressible is returned when the compressed output would not be
// smaller than the input. Callers fall back to CodecNone for the chunk.
var ErrIncompressible = errors.New("data is incompressible")

// String returns the codec name as used in config files.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecSnappy:
		return "snappy"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCodec parses a codec name from config.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none":
		return CodecNone, nil
	case "snappy":
		return CodecSnappy, nil
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	default:
		return 0, fmt.Errorf("unknown codec: %q", name)
	}
}

// zstdEncoder and zstdDecoder are shared across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress encodes data with the given codec. Snappy and none always
// succeed; zstd and lz4 return ErrIncompressible when the output would
// not be smaller than the input.
func Compress(c Codec, data []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return data, nil

	case CodecSnappy:
		return snappy.Encode(nil, data), nil

	case CodecZstd:
		out := zstdEncoder.EncodeAll(data, nil)
		if len(out) >= len(data) {
			return nil, ErrIncompressible
		}
		return out, nil

	case CodecLZ4:
		bound := lz4.CompressBlockBound(len(data))
		dst := make([]byte, bound)
		written, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if written == 0 || written >= len(data) {
			return nil, ErrIncompressible
		}
		return dst[:written], nil

	default:
		return nil, fmt.Errorf("unsupported codec: %d", c)
	}
}

// Decompress decodes a payload compressed with the given codec. The
// size argument is the expected uncompressed length; a mismatch is an
// error so corrupted index entries are caught before data is used.
func Decompress(c Codec, data []byte, size int) ([]byte, error) {
	switch c {
	case CodecNone:
		if len(data) != size {
			return nil, fmt.Errorf("uncompressed chunk: size %d does not match expected %d", len(data), size)
		}
		return data, nil

	case CodecSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("snappy decompress: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("snappy decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil

	case CodecZstd:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil

	case CodecLZ4:
		dst := make([]byte, size)
		read, err := lz4.UncompressBlock(data, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return dst, nil

	default:
		return nil, fmt.Errorf("unsupported codec: %d", c)
	}
}
