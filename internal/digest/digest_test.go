package digest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/reparc/reparc/pkg/types"
)

func TestSumDeterministic(t *testing.T) {
	a := Sum([]byte("12 atoms\ncomment line\n"))
	b := Sum([]byte("12 atoms\ncomment line\n"))
	if a != b {
		t.Error("same input produced different digests")
	}
	c := Sum([]byte("12 atoms\ncomment line"))
	if a == c {
		t.Error("different inputs produced the same digest")
	}
}

func TestSumReaderMatchesSum(t *testing.T) {
	payload := bytes.Repeat([]byte("frame"), 1000)
	fromBytes := Sum(payload)
	fromReader, err := SumReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("SumReader: %v", err)
	}
	if fromBytes != fromReader {
		t.Error("SumReader disagrees with Sum on identical input")
	}
}

func TestSumBufferIgnoresBackingStorage(t *testing.T) {
	a := types.FloatBuffer([]float64{1.0, 2.0, 3.0})
	b := a.Clone()
	if SumBuffer(a) != SumBuffer(b) {
		t.Error("clone hashed differently from source")
	}
	b.Floats[0] = -1
	if SumBuffer(a) == SumBuffer(b) {
		t.Error("mutated buffer hashed identically")
	}
}

func TestStringAndParse(t *testing.T) {
	d := Sum([]byte("provenance"))
	s := d.String()
	if len(s) != 64 {
		t.Fatalf("hex digest length = %d, want 64", len(s))
	}
	if !strings.HasPrefix(s, d.Short()) {
		t.Error("Short() is not a prefix of String()")
	}

	back, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if back != d {
		t.Error("Parse(String()) did not round trip")
	}

	if _, err := Parse("zz"); err == nil {
		t.Error("Parse accepted invalid hex")
	}
	if _, err := Parse("abcd"); err == nil {
		t.Error("Parse accepted a short digest")
	}
}
