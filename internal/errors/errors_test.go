package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := New(ErrCategoryValidation, CodeInvalidResource, "bad value")
	expected := "[VALIDATION:INVALID_RESOURCE] bad value"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestAPIError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryQuery, CodeExecutionFailed, "query failed", cause)
	expected := "[QUERY:EXECUTION_FAILED] query failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryCache, CodeStoreFailed, "store", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestAPIError_Is(t *testing.T) {
	err1 := New(ErrCategoryValidation, CodeInvalidOption, "first")
	err2 := New(ErrCategoryValidation, CodeInvalidOption, "second")
	err3 := New(ErrCategoryValidation, CodeInvalidResource, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{NewValidationError(CodeInvalidResource, "x"), http.StatusBadRequest},
		{NewForbiddenError("DROP"), http.StatusForbidden},
		{NewNotFoundError("none"), http.StatusNotFound},
		{NewQueryError(CodeExecutionFailed, "x", fmt.Errorf("boom")), http.StatusInternalServerError},
		{NewInternalError("x", nil), http.StatusInternalServerError},
		{NewSetupError(CodeInstallScriptMissing, "x", nil), http.StatusInternalServerError},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", NewNotFoundError("none")), http.StatusNotFound},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.status {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}

func TestPublicMessage(t *testing.T) {
	if got := PublicMessage(NewNotFoundError("no data")); got != "no data" {
		t.Errorf("got %q", got)
	}
	err := NewQueryError(CodeExecutionFailed, "query failed", fmt.Errorf("no such table: x"))
	if got := PublicMessage(err); got != "query failed: no such table: x" {
		t.Errorf("got %q", got)
	}
	if got := PublicMessage(fmt.Errorf("plain")); got != "plain" {
		t.Errorf("got %q", got)
	}
}

func TestNewForbiddenError(t *testing.T) {
	err := NewForbiddenError("DROP")
	if err.Message != "The query includes the forbidden keyword DROP" {
		t.Errorf("unexpected message %q", err.Message)
	}
	if err.Details["keyword"] != "DROP" {
		t.Error("keyword should be recorded in details")
	}
}

func TestGetCategory(t *testing.T) {
	err := New(ErrCategoryQuery, CodeScanFailed, "bad row")
	if GetCategory(err) != ErrCategoryQuery {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryQuery)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-APIError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := New(ErrCategoryQuery, CodeScanFailed, "bad row")
	if GetCode(err) != CodeScanFailed {
		t.Errorf("got %q, want %q", GetCode(err), CodeScanFailed)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-APIError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryValidation, CodeInvalidResource, "bad value")
	detailed := err.WithDetails(map[string]interface{}{"resource": "year"})

	if detailed.Details["resource"] != "year" {
		t.Error("WithDetails should set details")
	}
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}
