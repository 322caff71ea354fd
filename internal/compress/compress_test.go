package compress

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

// repetitivePayload compresses well under every codec.
func repetitivePayload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 7)
	}
	return data
}

func TestRoundTrip(t *testing.T) {
	payload := repetitivePayload(4096)

	codecs := []Codec{CodecNone, CodecSnappy, CodecZstd, CodecLZ4}
	for _, c := range codecs {
		t.Run(c.String(), func(t *testing.T) {
			compressed, err := Compress(c, payload)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if c != CodecNone && len(compressed) >= len(payload) {
				t.Errorf("codec %s did not shrink a repetitive payload (%d >= %d)",
					c, len(compressed), len(payload))
			}

			out, err := Decompress(c, compressed, len(payload))
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(out, payload) {
				t.Error("round trip altered payload")
			}
		})
	}
}

func TestIncompressible(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	payload := make([]byte, 4096)
	rng.Read(payload)

	for _, c := range []Codec{CodecZstd, CodecLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			_, err := Compress(c, payload)
			if !errors.Is(err, ErrIncompressible) {
				t.Fatalf("random payload: error = %v, want ErrIncompressible", err)
			}
		})
	}

	// Snappy always succeeds; it embeds raw blocks for random input.
	out, err := Compress(CodecSnappy, payload)
	if err != nil {
		t.Fatalf("snappy on random payload: %v", err)
	}
	back, err := Decompress(CodecSnappy, out, len(payload))
	if err != nil {
		t.Fatalf("snappy decompress: %v", err)
	}
	if !bytes.Equal(back, payload) {
		t.Error("snappy round trip altered payload")
	}
}

func TestSizeMismatchRejected(t *testing.T) {
	payload := repetitivePayload(1024)

	for _, c := range []Codec{CodecNone, CodecSnappy, CodecZstd, CodecLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			compressed, err := Compress(c, payload)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if _, err := Decompress(c, compressed, len(payload)-1); err == nil {
				t.Error("expected a size mismatch error")
			}
		})
	}
}

func TestParseCodec(t *testing.T) {
	tests := []struct {
		name    string
		want    Codec
		wantErr bool
	}{
		{name: "none", want: CodecNone},
		{name: "snappy", want: CodecSnappy},
		{name: "zstd", want: CodecZstd},
		{name: "lz4", want: CodecLZ4},
		{name: "gzip", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseCodec(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCodec(%q) expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCodec(%q) unexpected error: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCodec(%q) = %v, want %v", tt.name, got, tt.want)
		}
		if got.String() != tt.name {
			t.Errorf("String() = %q, want %q", got.String(), tt.name)
		}
	}
}
