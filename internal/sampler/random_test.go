package sampler

import (
	"testing"
)

func TestSampleWithoutReplacement(t *testing.T) {
	s := NewSampler(42)

	indices, err := s.Sample(20, 100)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(indices) != 20 {
		t.Fatalf("expected 20 indices, got %d", len(indices))
	}

	seen := make(map[int64]bool)
	for i, idx := range indices {
		if idx < 0 || idx >= 100 {
			t.Errorf("index %d out of range: %d", i, idx)
		}
		if seen[idx] {
			t.Errorf("index %d drawn twice", idx)
		}
		seen[idx] = true
		if i > 0 && indices[i] <= indices[i-1] {
			t.Errorf("indices not strictly increasing at %d: %d after %d", i, indices[i], indices[i-1])
		}
	}
}

func TestSampleReproducible(t *testing.T) {
	a, err := NewSampler(7).Sample(15, 200)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	b, err := NewSampler(7).Sample(15, 200)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged at %d: %d vs %d", i, a[i], b[i])
		}
	}

	c, err := NewSampler(8).Sample(15, 200)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical draws")
	}
}

func TestSampleExhaustive(t *testing.T) {
	// Drawing every frame yields exactly 0..total-1
	indices, err := NewSampler(1).Sample(10, 10)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(indices) != 10 {
		t.Fatalf("expected 10 indices, got %d", len(indices))
	}
	for i, idx := range indices {
		if idx != int64(i) {
			t.Errorf("position %d: expected %d, got %d", i, i, idx)
		}
	}
}

func TestSampleBounds(t *testing.T) {
	s := NewSampler(3)

	if _, err := s.Sample(11, 10); err == nil {
		t.Error("expected error when count exceeds total")
	}
	if _, err := s.Sample(-1, 10); err == nil {
		t.Error("expected error for negative count")
	}
	if _, err := s.Sample(5, -1); err == nil {
		t.Error("expected error for negative total")
	}

	empty, err := s.Sample(0, 10)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty draw, got %v", empty)
	}
}

func TestSamplerPlan(t *testing.T) {
	plan, err := NewSampler(42).Plan(5, 50)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	frames, err := plan.Frames(50)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if len(frames) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(frames))
	}

	// The plan matches a direct draw from the same seed
	direct, err := NewSampler(42).Sample(5, 50)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	for i := range frames {
		if frames[i] != direct[i] {
			t.Errorf("plan and draw diverge at %d: %d vs %d", i, frames[i], direct[i])
		}
	}
}
