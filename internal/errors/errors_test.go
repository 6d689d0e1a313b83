package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestTemplarError_Error(t *testing.T) {
	err := &TemplarError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "template not found",
	}

	expected := "NOT_FOUND: template not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *TemplarError
		code   ErrorCode
		status int
	}{
		{"invalid request", NewInvalidRequest("bad"), ErrInvalidRequest, 400},
		{"missing field", NewMissingField("key", "label"), ErrMissingField, 400},
		{"invalid key", NewInvalidKeyFormat("a b"), ErrInvalidKeyFormat, 400},
		{"duplicate key", NewDuplicateKey("nama"), ErrDuplicateKey, 409},
		{"not found", NewNotFound("x"), ErrNotFound, 404},
		{"span not found", NewSpanNotFound("abc"), ErrSpanNotFound, 404},
		{"file not found", NewFileNotFound("/tmp/x"), ErrFileNotFound, 404},
		{"name exists", NewNameAlreadyExists("surat"), ErrNameAlreadyExists, 409},
		{"conflict", NewConflict("stale"), ErrConflict, 409},
		{"too large", NewTemplateTooLarge(10, 20), ErrTemplateTooLarge, 413},
		{"invalid value", NewInvalidValue(map[string]string{"n": "numeric"}), ErrInvalidValue, 422},
		{"pattern", NewPatternError("Tanggal", fmt.Errorf("boom")), ErrPatternError, 500},
		{"persistence", NewPersistence(fmt.Errorf("disk full")), ErrPersistence, 502},
		{"internal", NewInternal(nil), ErrInternal, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Status != tt.status {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.status)
			}
			if tt.err.Message == "" {
				t.Error("Message is empty")
			}
		})
	}
}

func TestNewMissingField_Details(t *testing.T) {
	err := NewMissingField("key")
	fields, ok := err.Details["fields"].([]string)
	if !ok || len(fields) != 1 || fields[0] != "key" {
		t.Errorf("Details[fields] = %v, want [key]", err.Details["fields"])
	}
}

func TestIsValidation(t *testing.T) {
	if !NewMissingField("key").IsValidation() {
		t.Error("MISSING_FIELD should be a validation error")
	}
	if !NewInvalidKeyFormat("a-b").IsValidation() {
		t.Error("INVALID_KEY_FORMAT should be a validation error")
	}
	if !NewDuplicateKey("k").IsValidation() {
		t.Error("DUPLICATE_KEY should be a validation error")
	}
	if NewNotFound("k").IsValidation() {
		t.Error("NOT_FOUND should not be a validation error")
	}
}

func TestPersistence_PassesMessageThrough(t *testing.T) {
	cause := fmt.Errorf("database is locked")
	err := NewPersistence(cause)

	if err.Message != "database is locked" {
		t.Errorf("Message = %q, want passthrough", err.Message)
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestIs(t *testing.T) {
	err := NewDuplicateKey("nama")

	if !Is(err, ErrDuplicateKey) {
		t.Error("Is(err, DUPLICATE_KEY) = false")
	}
	if Is(err, ErrNotFound) {
		t.Error("Is(err, NOT_FOUND) = true")
	}
	if Is(fmt.Errorf("plain"), ErrInternal) {
		t.Error("plain errors should not match")
	}

	wrapped := fmt.Errorf("saving: %w", err)
	if !Is(wrapped, ErrDuplicateKey) {
		t.Error("Is should see through wrapping")
	}
}

func TestAs(t *testing.T) {
	tErr, ok := As(fmt.Errorf("ctx: %w", NewConflict("stale")))
	if !ok {
		t.Fatal("As returned false")
	}
	if tErr.Code != ErrConflict {
		t.Errorf("Code = %q, want CONFLICT", tErr.Code)
	}

	if _, ok := As(fmt.Errorf("plain")); ok {
		t.Error("As should fail for plain errors")
	}
}
