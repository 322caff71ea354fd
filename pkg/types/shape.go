package types

import (
	"strconv"
	"strings"
)

// Shape is the ordered sequence of dimension sizes of an array.
// A shape is fixed at array creation; replacing an array is the only way
// to resize, so code that derives a modified shape must work on a clone.
type Shape []int64

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

// Elems returns the total element count, the product of all dimensions.
func (s Shape) Elems() int64 {
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// Equal reports whether two shapes have identical rank and dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the shape as "(d0, d1, ...)".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Range is a half-open [Start, Stop) interval of indices along one axis.
type Range struct {
	// Start is the first index covered by the range.
	Start int64 `json:"start"`

	// Stop is one past the last index covered by the range.
	Stop int64 `json:"stop"`
}

// Len returns the number of indices covered by the range.
func (r Range) Len() int64 {
	return r.Stop - r.Start
}

// FullRange returns the range covering an entire axis of length n.
func FullRange(n int64) Range {
	return Range{Start: 0, Stop: n}
}

// FullSlice returns one full-axis range per dimension of the shape.
func FullSlice(s Shape) []Range {
	out := make([]Range, len(s))
	for i, d := range s {
		out[i] = FullRange(d)
	}
	return out
}

// SliceShape returns the shape described by a per-axis slice.
func SliceShape(ranges []Range) Shape {
	out := make(Shape, len(ranges))
	for i, r := range ranges {
		out[i] = r.Len()
	}
	return out
}
