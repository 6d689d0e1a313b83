package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Templar error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"     // 400
	ErrMissingField      ErrorCode = "MISSING_FIELD"       // 400
	ErrInvalidKeyFormat  ErrorCode = "INVALID_KEY_FORMAT"  // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"           // 404
	ErrSpanNotFound      ErrorCode = "SPAN_NOT_FOUND"      // 404
	ErrFileNotFound      ErrorCode = "FILE_NOT_FOUND"      // 404
	ErrDuplicateKey      ErrorCode = "DUPLICATE_KEY"       // 409
	ErrNameAlreadyExists ErrorCode = "NAME_ALREADY_EXISTS" // 409
	ErrConflict          ErrorCode = "CONFLICT"            // 409
	ErrTemplateTooLarge  ErrorCode = "TEMPLATE_TOO_LARGE"  // 413
	ErrInvalidValue      ErrorCode = "INVALID_VALUE"       // 422
	ErrPatternError      ErrorCode = "PATTERN_ERROR"       // 500
	ErrPersistence       ErrorCode = "PERSISTENCE"         // 502
	ErrInternal          ErrorCode = "INTERNAL"            // 500
)

// TemplarError represents a structured error with code, status, and details.
type TemplarError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *TemplarError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *TemplarError) Unwrap() error {
	return e.cause
}

// IsValidation reports whether the error is one of the binding validation
// failures raised before any mutation.
func (e *TemplarError) IsValidation() bool {
	switch e.Code {
	case ErrMissingField, ErrInvalidKeyFormat, ErrDuplicateKey:
		return true
	}
	return false
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *TemplarError {
	return &TemplarError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewMissingField creates a 400 error when required fields are empty.
func NewMissingField(fields ...string) *TemplarError {
	return &TemplarError{
		Code:    ErrMissingField,
		Status:  400,
		Message: fmt.Sprintf("required fields missing: %v", fields),
		Details: map[string]any{"fields": fields},
	}
}

// NewInvalidKeyFormat creates a 400 error for a key outside [A-Za-z0-9_]+.
func NewInvalidKeyFormat(key string) *TemplarError {
	return &TemplarError{
		Code:    ErrInvalidKeyFormat,
		Status:  400,
		Message: fmt.Sprintf("invalid key format: %q (letters, digits and underscore only)", key),
		Details: map[string]any{"key": key},
	}
}

// NewDuplicateKey creates a 409 error when a key is already bound.
func NewDuplicateKey(key string) *TemplarError {
	return &TemplarError{
		Code:    ErrDuplicateKey,
		Status:  409,
		Message: fmt.Sprintf("duplicate key: %q", key),
		Details: map[string]any{"key": key},
	}
}

// NewNotFound creates a 404 error for a missing template or variable.
func NewNotFound(identifier string) *TemplarError {
	return &TemplarError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewSpanNotFound creates a 404 error when selected text does not occur in the raw text.
func NewSpanNotFound(text string) *TemplarError {
	return &TemplarError{
		Code:    ErrSpanNotFound,
		Status:  404,
		Message: fmt.Sprintf("text not found in document: %q", text),
		Details: map[string]any{"text": text},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *TemplarError {
	return &TemplarError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewNameAlreadyExists creates a 409 error for template name collisions.
func NewNameAlreadyExists(name string) *TemplarError {
	return &TemplarError{
		Code:    ErrNameAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("template with name %q already exists", name),
		Details: map[string]any{"name": name},
	}
}

// NewConflict creates a 409 error for stale writes.
func NewConflict(msg string) *TemplarError {
	return &TemplarError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewTemplateTooLarge creates a 413 error when an imported file exceeds the size limit.
func NewTemplateTooLarge(max, actual int) *TemplarError {
	return &TemplarError{
		Code:    ErrTemplateTooLarge,
		Status:  413,
		Message: fmt.Sprintf("template exceeds maximum size: %d bytes (max %d)", actual, max),
		Details: map[string]any{"max_bytes": max, "actual_bytes": actual},
	}
}

// NewInvalidValue creates a 422 error for values that do not fit their variable type.
// fields maps variable key to the failed rule.
func NewInvalidValue(fields map[string]string) *TemplarError {
	return &TemplarError{
		Code:    ErrInvalidValue,
		Status:  422,
		Message: fmt.Sprintf("invalid values for %d variable(s)", len(fields)),
		Details: map[string]any{"fields": fields},
	}
}

// NewPatternError creates an error for a library pattern that failed to evaluate.
func NewPatternError(label string, err error) *TemplarError {
	msg := "pattern failed"
	if err != nil {
		msg = err.Error()
	}
	return &TemplarError{
		Code:    ErrPatternError,
		Status:  500,
		Message: fmt.Sprintf("pattern %q: %s", label, msg),
		Details: map[string]any{"label": label},
		cause:   err,
	}
}

// NewPersistence wraps a failure from storage or generation. The message is passed through.
func NewPersistence(err error) *TemplarError {
	msg := "persistence failed"
	if err != nil {
		msg = err.Error()
	}
	return &TemplarError{
		Code:    ErrPersistence,
		Status:  502,
		Message: msg,
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *TemplarError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &TemplarError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is (or wraps) a TemplarError with the given code.
func Is(err error, code ErrorCode) bool {
	var tErr *TemplarError
	if stderrors.As(err, &tErr) {
		return tErr.Code == code
	}
	return false
}

// As extracts a TemplarError from err.
func As(err error) (*TemplarError, bool) {
	var tErr *TemplarError
	if stderrors.As(err, &tErr) {
		return tErr, true
	}
	return nil, false
}
