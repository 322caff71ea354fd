// Package bloom provides a probabilistic membership filter over archive
// array paths. A snapshot's filter answers "definitely absent" without
// touching the catalog, so negative Exists checks skip SQLite entirely.
package bloom

import (
	"math"
	"sync"

	"github.com/spaolacci/murmur3"
)

// PathFilter tests archive paths for membership with a configurable
// false positive rate. It guarantees no false negatives: if a path was
// added, MightContain always returns true.
type PathFilter struct {
	mu        sync.RWMutex
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
}

// New creates a PathFilter with the specified number of bits and hash
// functions. Sizes round up to whole 64-bit words.
func New(numBits, numHashes int) *PathFilter {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}

	numWords := (numBits + 63) / 64
	return &PathFilter{
		bits:      make([]uint64, numWords),
		numBits:   uint64(numWords * 64),
		numHashes: uint64(numHashes),
	}
}

// NewWithEstimates creates a PathFilter sized for the expected number
// of paths and target false positive rate.
func NewWithEstimates(expectedPaths int, targetFPR float64) *PathFilter {
	numBits, numHashes := OptimalParameters(expectedPaths, targetFPR)
	return New(numBits, numHashes)
}

// OptimalParameters calculates filter parameters for an expected path
// count and target false positive rate.
//
// The formulas are:
//   - m = -n * ln(p) / (ln(2)^2)  where m = bits, n = items, p = FPR
//   - k = (m/n) * ln(2)           where k = hash functions
func OptimalParameters(expectedPaths int, targetFPR float64) (numBits, numHashes int) {
	if expectedPaths <= 0 {
		expectedPaths = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedPaths)
	m := -n * math.Log(targetFPR) / (math.Ln2 * math.Ln2)
	numBits = int(math.Ceil(m))
	numHashes = int(math.Ceil((m / n) * math.Ln2))

	if numBits < 64 {
		numBits = 64
	}
	if numHashes < 1 {
		numHashes = 1
	}
	return numBits, numHashes
}

// AddPath records a path in the filter.
func (f *PathFilter) AddPath(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	h1, h2 := hashPath(path)
	for i := uint64(0); i < f.numHashes; i++ {
		// Double hashing: h(i) = h1 + i*h2
		pos := (h1 + i*h2) % f.numBits
		f.bits[pos/64] |= 1 << (pos % 64)
	}
	f.count++
}

// MightContain reports whether the path may have been added. A false
// result is definitive; a true result may be a false positive.
func (f *PathFilter) MightContain(path string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	h1, h2 := hashPath(path)
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// hashPath computes the murmur3 128-bit hash of a path as two 64-bit
// values for double hashing.
func hashPath(path string) (uint64, uint64) {
	h := murmur3.New128()
	h.Write([]byte(path))
	return h.Sum128()
}

// Count returns the number of paths added.
func (f *PathFilter) Count() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// NumBits returns the number of bits in the filter.
func (f *PathFilter) NumBits() int {
	return int(f.numBits)
}

// NumHashes returns the number of hash functions used.
func (f *PathFilter) NumHashes() int {
	return int(f.numHashes)
}

// FalsePositiveRate estimates the current false positive rate from the
// fill ratio: (1 - e^(-k*n/m))^k.
func (f *PathFilter) FalsePositiveRate() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.count == 0 {
		return 0
	}
	k := float64(f.numHashes)
	n := float64(f.count)
	m := float64(f.numBits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}
