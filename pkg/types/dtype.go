// Package types provides core data types for the reparc archive engine.
package types

import "fmt"

// DType identifies the element type of an array.
type DType string

const (
	// DTypeInteger is a 64-bit signed integer element type.
	DTypeInteger DType = "integer"

	// DTypeFloating is a 64-bit IEEE 754 floating point element type.
	DTypeFloating DType = "floating"

	// DTypeString is a variable-length UTF-8 string element type.
	DTypeString DType = "string"
)

// Valid reports whether d is one of the supported element types.
func (d DType) Valid() bool {
	switch d {
	case DTypeInteger, DTypeFloating, DTypeString:
		return true
	}
	return false
}

// FixedSize returns the encoded size in bytes of a single element, or 0
// for variable-length element types.
func (d DType) FixedSize() int {
	switch d {
	case DTypeInteger, DTypeFloating:
		return 8
	default:
		return 0
	}
}

// ParseDType converts a dtype name into a DType.
func ParseDType(s string) (DType, error) {
	d := DType(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDType, s)
	}
	return d, nil
}
