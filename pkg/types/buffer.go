package types

// Buffer holds array data in its in-memory representation. Exactly one
// of the element slices is populated, selected by DType. Buffers are
// flat, row-major; the owning array's shape gives them structure.
type Buffer struct {
	// DType selects which element slice is populated.
	DType DType

	// Ints holds the elements of an integer buffer.
	Ints []int64

	// Floats holds the elements of a floating buffer.
	Floats []float64

	// Strings holds the elements of a string buffer.
	Strings []string
}

// NewBuffer allocates a zero-valued buffer of n elements.
func NewBuffer(d DType, n int64) Buffer {
	b := Buffer{DType: d}
	switch d {
	case DTypeInteger:
		b.Ints = make([]int64, n)
	case DTypeFloating:
		b.Floats = make([]float64, n)
	case DTypeString:
		b.Strings = make([]string, n)
	}
	return b
}

// IntBuffer wraps an int64 slice as a buffer without copying.
func IntBuffer(v []int64) Buffer {
	return Buffer{DType: DTypeInteger, Ints: v}
}

// FloatBuffer wraps a float64 slice as a buffer without copying.
func FloatBuffer(v []float64) Buffer {
	return Buffer{DType: DTypeFloating, Floats: v}
}

// StringBuffer wraps a string slice as a buffer without copying.
func StringBuffer(v []string) Buffer {
	return Buffer{DType: DTypeString, Strings: v}
}

// Len returns the number of elements in the buffer.
func (b Buffer) Len() int64 {
	switch b.DType {
	case DTypeInteger:
		return int64(len(b.Ints))
	case DTypeFloating:
		return int64(len(b.Floats))
	case DTypeString:
		return int64(len(b.Strings))
	}
	return 0
}

// Slice returns a view of elements [start, stop) sharing the underlying
// memory. Callers that need an independent copy must Clone the result.
func (b Buffer) Slice(start, stop int64) Buffer {
	out := Buffer{DType: b.DType}
	switch b.DType {
	case DTypeInteger:
		out.Ints = b.Ints[start:stop]
	case DTypeFloating:
		out.Floats = b.Floats[start:stop]
	case DTypeString:
		out.Strings = b.Strings[start:stop]
	}
	return out
}

// Clone returns an independent copy of the buffer.
func (b Buffer) Clone() Buffer {
	out := NewBuffer(b.DType, b.Len())
	switch b.DType {
	case DTypeInteger:
		copy(out.Ints, b.Ints)
	case DTypeFloating:
		copy(out.Floats, b.Floats)
	case DTypeString:
		copy(out.Strings, b.Strings)
	}
	return out
}

// CopyAt copies all elements of src into b starting at element offset
// dst. The dtypes must match and the region must fit; both are the
// caller's responsibility, matching the built-in copy contract.
func (b Buffer) CopyAt(dst int64, src Buffer) {
	switch b.DType {
	case DTypeInteger:
		copy(b.Ints[dst:], src.Ints)
	case DTypeFloating:
		copy(b.Floats[dst:], src.Floats)
	case DTypeString:
		copy(b.Strings[dst:], src.Strings)
	}
}

// Equal reports whether two buffers have the same dtype, length, and
// element-wise contents. Float comparison is exact.
func (b Buffer) Equal(other Buffer) bool {
	if b.DType != other.DType || b.Len() != other.Len() {
		return false
	}
	switch b.DType {
	case DTypeInteger:
		for i := range b.Ints {
			if b.Ints[i] != other.Ints[i] {
				return false
			}
		}
	case DTypeFloating:
		for i := range b.Floats {
			if b.Floats[i] != other.Floats[i] {
				return false
			}
		}
	case DTypeString:
		for i := range b.Strings {
			if b.Strings[i] != other.Strings[i] {
				return false
			}
		}
	}
	return true
}
