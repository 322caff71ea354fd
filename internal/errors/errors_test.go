package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestReparcError_Error(t *testing.T) {
	err := New(ErrCategoryStorage, CodeNameConflict, "array exists")
	expected := "[STORAGE:NAME_CONFLICT] array exists"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestReparcError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCategoryStorage, CodeBackendIO, "flush failed", cause)
	expected := "[STORAGE:BACKEND_IO] flush failed: disk full"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestReparcError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryManifest, CodeWriteConflict, "conflict", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestReparcError_Is(t *testing.T) {
	err1 := New(ErrCategoryParse, CodeContractViolation, "first")
	err2 := New(ErrCategoryParse, CodeContractViolation, "second")
	err3 := New(ErrCategoryParse, CodeParseError, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStorage, CodeBackendIO, true},
		{ErrCategoryStorage, CodeNotFound, false},
		{ErrCategoryStorage, CodeNameConflict, false},
		{ErrCategoryManifest, CodeWriteConflict, true},
		{ErrCategoryManifest, CodeCorruption, false},
		{ErrCategoryParse, CodeParseError, false},
		{ErrCategoryParse, CodeContractViolation, false},
		{ErrCategoryValidation, CodeShapeError, false},
		{ErrCategoryArchive, CodePathConflict, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategory(t *testing.T) {
	err := New(ErrCategoryValidation, CodeSchemaMismatch, "dtype differs")
	if GetCategory(err) != ErrCategoryValidation {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryValidation)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-ReparcError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := New(ErrCategoryParse, CodeDuplicateFormat, "xyz registered twice")
	if GetCode(err) != CodeDuplicateFormat {
		t.Errorf("got %q, want %q", GetCode(err), CodeDuplicateFormat)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-ReparcError should return empty code")
	}
}

func TestIsCode(t *testing.T) {
	storeErr := New(ErrCategoryStorage, CodeNotFound, "no such array")
	archErr := New(ErrCategoryArchive, CodeNotFound, "no such group")

	if !IsCode(storeErr, CodeNotFound) || !IsCode(archErr, CodeNotFound) {
		t.Error("IsCode should match the code across categories")
	}
	if IsCode(storeErr, CodeNameConflict) {
		t.Error("IsCode matched the wrong code")
	}
	if IsCode(fmt.Errorf("plain"), CodeNotFound) {
		t.Error("IsCode matched a plain error")
	}
	// Category-sensitive matching still works through errors.Is.
	if errors.Is(storeErr, archErr) {
		t.Error("errors.Is should distinguish categories")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryValidation, CodeShapeError, "negative dim")
	detailed := err.WithDetails(map[string]interface{}{"array": "geometry"})

	if detailed.Details["array"] != "geometry" {
		t.Error("WithDetails should set details")
	}
	// Original should be unmodified
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	v := NewValidationError(CodeShapeError, "zero dim")
	if v.Category != ErrCategoryValidation || v.Code != CodeShapeError {
		t.Error("NewValidationError mismatch")
	}

	s := NewStorageError(CodeBackendIO, "write failed", cause)
	if s.Category != ErrCategoryStorage || !errors.Is(s, cause) {
		t.Error("NewStorageError mismatch")
	}

	p := NewParseError(CodeParseError, "bad frame header", cause)
	if p.Category != ErrCategoryParse {
		t.Error("NewParseError mismatch")
	}

	a := NewArchiveError(CodePathConflict, "leaf is an array")
	if a.Category != ErrCategoryArchive {
		t.Error("NewArchiveError mismatch")
	}

	m := NewManifestError(CodeWriteConflict, "locked", cause)
	if m.Category != ErrCategoryManifest {
		t.Error("NewManifestError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
