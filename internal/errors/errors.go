// Package errors provides structured error types for the trace engine.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors by engine component.
type ErrorCategory string

const (
	ErrCategoryEvent    ErrorCategory = "EVENT"
	ErrCategorySchema   ErrorCategory = "SCHEMA"
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryBundle   ErrorCategory = "BUNDLE"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Event codes
	CodeNotAvailable = "NOT_AVAILABLE"

	// Schema codes
	CodeColumnExists  = "COLUMN_EXISTS"
	CodeMissingColumn = "MISSING_COLUMN"
	CodeKindMismatch  = "KIND_MISMATCH"

	// Config codes
	CodeInvalidFormat   = "INVALID_FORMAT"
	CodeInvalidWindow   = "INVALID_WINDOW"
	CodeInvalidPlatform = "INVALID_PLATFORM"
	CodeUnorderedEvents = "UNORDERED_EVENTS"

	// Bundle codes
	CodeOpenFailed       = "OPEN_FAILED"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeChecksumMismatch = "CHECKSUM_MISMATCH"
	CodeMetadataInvalid  = "METADATA_INVALID"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeDeleteFailed   = "DELETE_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// TraceError is the structured error type used throughout the engine.
type TraceError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *TraceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *TraceError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *TraceError) Is(target error) bool {
	var t *TraceError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new TraceError.
func New(category ErrorCategory, code, message string) *TraceError {
	return &TraceError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new TraceError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *TraceError {
	return &TraceError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *TraceError) WithDetails(details map[string]interface{}) *TraceError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var te *TraceError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a TraceError.
func GetCategory(err error) ErrorCategory {
	var te *TraceError
	if errors.As(err, &te) {
		return te.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a TraceError.
func GetCode(err error) string {
	var te *TraceError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// isRetryable determines if an error code can succeed on a retry. Only
// remote transfer failures qualify; bad bundles and bad config stay bad.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

// NewEventNotAvailable reports a request for an event with no parsed rows.
// The available list goes into both the message and the details so log
// lines and API responses surface what the trace does carry.
func NewEventNotAvailable(event string, available []string) *TraceError {
	msg := fmt.Sprintf("event %q not available in trace", event)
	if len(available) > 0 {
		msg += ", available: " + strings.Join(available, ", ")
	}
	return New(ErrCategoryEvent, CodeNotAvailable, msg).
		WithDetails(map[string]interface{}{
			"event":     event,
			"available": available,
		})
}

// NewSchemaConflict reports an operation that would overwrite an existing
// column.
func NewSchemaConflict(event, column string) *TraceError {
	return New(ErrCategorySchema, CodeColumnExists,
		fmt.Sprintf("column %q already present in event %q", column, event)).
		WithDetails(map[string]interface{}{
			"event":  event,
			"column": column,
		})
}

func NewConfigError(code, message string) *TraceError {
	return New(ErrCategoryConfig, code, message)
}

func NewBundleError(code, message string, cause error) *TraceError {
	return Wrap(ErrCategoryBundle, code, message, cause)
}

func NewStorageError(code, message string, cause error) *TraceError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *TraceError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
