package bloom

import (
	"fmt"
	"testing"
)

func TestNoFalseNegatives(t *testing.T) {
	f := NewWithEstimates(1000, 0.01)

	paths := make([]string, 500)
	for i := range paths {
		paths[i] = fmt.Sprintf("/prod_%d/geometry", i)
		f.AddPath(paths[i])
	}

	for _, p := range paths {
		if !f.MightContain(p) {
			t.Fatalf("false negative for %q", p)
		}
	}
	if f.Count() != 500 {
		t.Errorf("Count = %d, want 500", f.Count())
	}
}

func TestAbsentPathsMostlyRejected(t *testing.T) {
	f := NewWithEstimates(1000, 0.01)
	for i := 0; i < 1000; i++ {
		f.AddPath(fmt.Sprintf("/md/run_%d/energy_pot", i))
	}

	falsePositives := 0
	const probes = 10000
	for i := 0; i < probes; i++ {
		if f.MightContain(fmt.Sprintf("/absent/run_%d/energy_pot", i)) {
			falsePositives++
		}
	}

	// Target rate is 1%; allow generous slack to keep the test stable.
	if rate := float64(falsePositives) / probes; rate > 0.05 {
		t.Errorf("false positive rate %.4f exceeds 0.05", rate)
	}
}

func TestOptimalParameters(t *testing.T) {
	bits, hashes := OptimalParameters(1000, 0.01)
	if bits < 9000 || bits > 10000 {
		t.Errorf("numBits = %d, want roughly 9590 for n=1000 p=0.01", bits)
	}
	if hashes != 7 {
		t.Errorf("numHashes = %d, want 7", hashes)
	}

	// Degenerate inputs fall back to defaults rather than panicking.
	bits, hashes = OptimalParameters(0, -1)
	if bits < 64 || hashes < 1 {
		t.Errorf("defaults not applied: bits=%d hashes=%d", bits, hashes)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	f := New(2048, 5)
	for i := 0; i < 100; i++ {
		f.AddPath(fmt.Sprintf("/sampled/frame_%d", i))
	}

	data, err := f.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	back, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	if back.NumBits() != f.NumBits() || back.NumHashes() != f.NumHashes() || back.Count() != f.Count() {
		t.Error("filter parameters did not survive the round trip")
	}
	for i := 0; i < 100; i++ {
		if !back.MightContain(fmt.Sprintf("/sampled/frame_%d", i)) {
			t.Fatalf("false negative after deserialization at %d", i)
		}
	}
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	if _, err := Deserialize(nil); err == nil {
		t.Error("nil input accepted")
	}
	if _, err := Deserialize(make([]byte, 10)); err == nil {
		t.Error("short input accepted")
	}
	bad := make([]byte, 32)
	if _, err := Deserialize(bad); err == nil {
		t.Error("zero parameters accepted")
	}
}

func TestFalsePositiveRateEstimate(t *testing.T) {
	f := New(1024, 7)
	if f.FalsePositiveRate() != 0 {
		t.Error("empty filter should estimate zero FPR")
	}
	for i := 0; i < 100; i++ {
		f.AddPath(fmt.Sprintf("/g/%d", i))
	}
	if rate := f.FalsePositiveRate(); rate <= 0 || rate >= 1 {
		t.Errorf("estimated rate %v out of (0, 1)", rate)
	}
}
