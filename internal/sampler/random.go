package sampler

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/RoaringBitmap/roaring"

	rerr "github.com/reparc/reparc/internal/errors"
)

// Metadata keys stamped on randomly sampled selections.
const (
	MetaSamplingKind = "sampling"
	MetaSamplingSeed = "sampling_seed"
)

// Sampler draws frame indices without replacement. A fixed seed makes
// a draw reproducible, which is what ties a sampled dataset back to
// its source frames.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler creates a sampler seeded for reproducible draws.
func NewSampler(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Sample draws count distinct frame indices from [0, total), sorted
// ascending. Candidates already drawn are rejected and redrawn, so
// every accepted index is unique.
func (s *Sampler) Sample(count, total int64) ([]int64, error) {
	if total < 0 {
		return nil, rerr.NewValidationError(rerr.CodeRangeError,
			fmt.Sprintf("negative frame extent %d", total))
	}
	if total > math.MaxUint32 {
		return nil, rerr.NewValidationError(rerr.CodeRangeError,
			fmt.Sprintf("frame extent %d exceeds the 32-bit plan limit", total))
	}
	if count < 0 {
		return nil, rerr.NewValidationError(rerr.CodeRangeError,
			fmt.Sprintf("negative sample count %d", count))
	}
	if count > total {
		return nil, rerr.NewValidationError(rerr.CodeRangeError,
			fmt.Sprintf("cannot sample %d frames from %d without replacement", count, total))
	}
	if count == 0 {
		return []int64{}, nil
	}

	accepted := roaring.New()
	for int64(accepted.GetCardinality()) < count {
		candidate := uint32(s.rng.Int63n(total))
		if accepted.Contains(candidate) {
			continue
		}
		accepted.Add(candidate)
	}

	out := make([]int64, 0, count)
	it := accepted.Iterator()
	for it.HasNext() {
		out = append(out, int64(it.Next()))
	}
	return out, nil
}

// Plan wraps a draw as a fixed-index plan so random selections flow
// through the same Frames path as parsed specs.
func (s *Sampler) Plan(count, total int64) (*Plan, error) {
	indices, err := s.Sample(count, total)
	if err != nil {
		return nil, err
	}

	plan := &Plan{terms: make([]term, 0, len(indices))}
	for _, idx := range indices {
		plan.terms = append(plan.terms, term{start: idx, hasStart: true, step: 1, point: true})
	}
	return plan, nil
}
