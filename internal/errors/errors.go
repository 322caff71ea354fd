// Package errors provides structured error types for the reparc engine.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryParse      ErrorCategory = "PARSE"
	ErrCategoryArchive    ErrorCategory = "ARCHIVE"
	ErrCategoryManifest   ErrorCategory = "MANIFEST"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeShapeError     = "SHAPE_ERROR"
	CodeShapeMismatch  = "SHAPE_MISMATCH"
	CodeDtypeMismatch  = "DTYPE_MISMATCH"
	CodeRangeError     = "RANGE_ERROR"
	CodeSchemaMismatch = "SCHEMA_MISMATCH"
	CodeInvalidName    = "INVALID_NAME"

	// Storage codes
	CodeNameConflict   = "NAME_CONFLICT"
	CodeNotFound       = "NOT_FOUND"
	CodeUnsupported    = "UNSUPPORTED_OPERATION"
	CodeCorruptedChunk = "CORRUPTED_CHUNK"
	CodeBackendIO      = "BACKEND_IO"

	// Parse codes
	CodeParseError        = "PARSE_ERROR"
	CodeContractViolation = "CONTRACT_VIOLATION"
	CodeDuplicateFormat   = "DUPLICATE_FORMAT"
	CodeUnknownFormat     = "UNKNOWN_FORMAT"

	// Archive codes
	CodePathConflict = "PATH_CONFLICT"

	// Manifest codes
	CodeWriteConflict = "WRITE_CONFLICT"
	CodeCorruption    = "CORRUPTION_DETECTED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// ReparcError is the structured error type used throughout the engine.
type ReparcError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *ReparcError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ReparcError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *ReparcError) Is(target error) bool {
	var t *ReparcError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new ReparcError.
func New(category ErrorCategory, code, message string) *ReparcError {
	return &ReparcError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new ReparcError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *ReparcError {
	return &ReparcError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *ReparcError) WithDetails(details map[string]interface{}) *ReparcError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var re *ReparcError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a ReparcError.
func GetCategory(err error) ErrorCategory {
	var re *ReparcError
	if errors.As(err, &re) {
		return re.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a ReparcError.
func GetCode(err error) string {
	var re *ReparcError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsCode reports whether the error chain carries the given code,
// regardless of category. Several codes (NOT_FOUND in particular) are
// raised by more than one component.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// isRetryable determines if an error code is retryable.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeBackendIO:
		return true
	case category == ErrCategoryManifest && code == CodeWriteConflict:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *ReparcError {
	return New(ErrCategoryValidation, code, message)
}

func NewStorageError(code, message string, cause error) *ReparcError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewParseError(code, message string, cause error) *ReparcError {
	return Wrap(ErrCategoryParse, code, message, cause)
}

func NewArchiveError(code, message string) *ReparcError {
	return New(ErrCategoryArchive, code, message)
}

func NewManifestError(code, message string, cause error) *ReparcError {
	return Wrap(ErrCategoryManifest, code, message, cause)
}

func NewInternalError(message string, cause error) *ReparcError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
