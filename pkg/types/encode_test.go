package types

import (
	"math"
	"testing"
)

func TestBufferEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		buf  Buffer
	}{
		{name: "integers", buf: IntBuffer([]int64{0, -1, 42, math.MaxInt64, math.MinInt64})},
		{name: "floats", buf: FloatBuffer([]float64{0, -2.5, math.Pi, math.Inf(1), math.SmallestNonzeroFloat64})},
		{name: "strings", buf: StringBuffer([]string{"", "H", "water dimer", "μ-dipole"})},
		{name: "empty integers", buf: IntBuffer(nil)},
		{name: "empty strings", buf: StringBuffer(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.buf.Encode()
			got, err := DecodeBuffer(tt.buf.DType, tt.buf.Len(), raw)
			if err != nil {
				t.Fatalf("DecodeBuffer: %v", err)
			}
			if !got.Equal(tt.buf) {
				t.Errorf("round trip mismatch: got %+v, want %+v", got, tt.buf)
			}
		})
	}
}

func TestDecodeBufferRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		dtype DType
		n     int64
		raw   []byte
	}{
		{name: "short integer payload", dtype: DTypeInteger, n: 2, raw: make([]byte, 8)},
		{name: "long float payload", dtype: DTypeFloating, n: 1, raw: make([]byte, 24)},
		{name: "truncated string prefix", dtype: DTypeString, n: 1, raw: nil},
		{name: "truncated string body", dtype: DTypeString, n: 1, raw: []byte{5, 'a', 'b'}},
		{name: "trailing garbage", dtype: DTypeString, n: 1, raw: []byte{1, 'a', 'x'}},
		{name: "unknown dtype", dtype: DType("complex"), n: 0, raw: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeBuffer(tt.dtype, tt.n, tt.raw); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestEncodeNaNRoundTrip(t *testing.T) {
	buf := FloatBuffer([]float64{math.NaN()})
	raw := buf.Encode()
	got, err := DecodeBuffer(DTypeFloating, 1, raw)
	if err != nil {
		t.Fatalf("DecodeBuffer: %v", err)
	}
	if !math.IsNaN(got.Floats[0]) {
		t.Errorf("NaN did not survive the round trip: %v", got.Floats[0])
	}
}
