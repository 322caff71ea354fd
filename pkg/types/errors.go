package types

import "errors"

// Path and dtype parse errors
var (
	// ErrEmptyPathSegment is returned when a path contains an empty segment ("a//b").
	ErrEmptyPathSegment = errors.New("empty path segment")

	// ErrInvalidPathSegment is returned when a path contains a dot segment ("." or "..").
	ErrInvalidPathSegment = errors.New("invalid path segment")

	// ErrUnknownDType is returned when parsing an unrecognized dtype name.
	ErrUnknownDType = errors.New("unknown dtype")
)
