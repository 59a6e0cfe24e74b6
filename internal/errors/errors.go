// Package errors provides structured error types for the apien service.
// Every error carries a category, code and message; the category decides
// the HTTP status a request failure is reported with.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory classifies errors by the pipeline stage that raised them.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryForbidden  ErrorCategory = "FORBIDDEN"
	ErrCategoryNotFound   ErrorCategory = "NOT_FOUND"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryCache      ErrorCategory = "CACHE"
	ErrCategorySetup      ErrorCategory = "SETUP"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidResource   = "INVALID_RESOURCE"
	CodeMissingValue      = "MISSING_VALUE"
	CodeDuplicateResource = "DUPLICATE_RESOURCE"
	CodeInvalidOption     = "INVALID_OPTION"

	// Forbidden codes
	CodeForbiddenKeyword = "FORBIDDEN_KEYWORD"

	// Not found codes
	CodeNoData = "NO_DATA"

	// Query codes
	CodeExecutionFailed = "EXECUTION_FAILED"
	CodeScanFailed      = "SCAN_FAILED"

	// Cache codes
	CodeLookupFailed = "LOOKUP_FAILED"
	CodeStoreFailed  = "STORE_FAILED"

	// Setup codes
	CodeInstallScriptMissing = "INSTALL_SCRIPT_MISSING"
	CodeScriptFailed         = "SCRIPT_FAILED"
	CodeInvalidConfig        = "INVALID_CONFIG"
	CodeConnectFailed        = "CONNECT_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// APIError is the structured error type used throughout the service.
type APIError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// StatusCode returns the HTTP status for the error's category.
func (e *APIError) StatusCode() int {
	switch e.Category {
	case ErrCategoryValidation:
		return http.StatusBadRequest
	case ErrCategoryForbidden:
		return http.StatusForbidden
	case ErrCategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new APIError.
func New(category ErrorCategory, code, message string) *APIError {
	return &APIError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new APIError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *APIError {
	return &APIError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *APIError) WithDetails(details map[string]interface{}) *APIError {
	cp := *e
	cp.Details = details
	return &cp
}

// HTTPStatus maps any error to the status a request failure is reported with.
// Errors outside the taxonomy are 500.
func HTTPStatus(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode()
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message that is safe to show a client. For
// taxonomy errors this is the message without category prefix; the cause is
// appended for 500s so the failure reason is visible, as the error body has
// always carried it.
func PublicMessage(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		if ae.StatusCode() == http.StatusInternalServerError && ae.Cause != nil {
			return fmt.Sprintf("%s: %v", ae.Message, ae.Cause)
		}
		return ae.Message
	}
	return err.Error()
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an APIError.
func GetCategory(err error) ErrorCategory {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an APIError.
func GetCode(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *APIError {
	return New(ErrCategoryValidation, code, message)
}

func NewForbiddenError(keyword string) *APIError {
	return New(ErrCategoryForbidden, CodeForbiddenKeyword,
		fmt.Sprintf("The query includes the forbidden keyword %s", keyword)).
		WithDetails(map[string]interface{}{"keyword": keyword})
}

func NewNotFoundError(message string) *APIError {
	return New(ErrCategoryNotFound, CodeNoData, message)
}

func NewQueryError(code, message string, cause error) *APIError {
	return Wrap(ErrCategoryQuery, code, message, cause)
}

func NewCacheError(code, message string, cause error) *APIError {
	return Wrap(ErrCategoryCache, code, message, cause)
}

func NewSetupError(code, message string, cause error) *APIError {
	return Wrap(ErrCategorySetup, code, message, cause)
}

func NewInternalError(message string, cause error) *APIError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
