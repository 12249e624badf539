package errors

import (
	"errors"
	"fmt"
)

// ErrorCode identifies an error category with a stable string for testing
type ErrorCode string

// Error codes, one per failure domain
const (
	ErrUnknown ErrorCode = "UNKNOWN"

	// Configuration errors: invalid target type, illegal ignore pattern,
	// forbidden glob component, duplicate group name
	ErrConfig ErrorCode = "CONFIG"

	// Parse errors: malformed config syntax, malformed glob pattern
	ErrParse ErrorCode = "PARSE"

	// Path errors: prefix-stripping failure, unrepresentable path
	ErrPath ErrorCode = "PATH"

	// Rendering errors: template render failure, invalid encoding
	ErrRendering ErrorCode = "RENDERING"

	// Templating errors: template registration failure
	ErrTemplating ErrorCode = "TEMPLATING"

	// Syncing errors: file/directory type conflicts, unresolvable writes
	ErrSyncing ErrorCode = "SYNCING"

	// Io wraps underlying filesystem failures not otherwise classified
	ErrIo ErrorCode = "IO"
)

// DotsyncError is a structured error with a code and optional details
type DotsyncError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *DotsyncError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *DotsyncError) Unwrap() error {
	return e.Wrapped
}

// Is matches two DotsyncErrors by code
func (e *DotsyncError) Is(target error) bool {
	var targetErr *DotsyncError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new DotsyncError with the given code and message
func New(code ErrorCode, message string) *DotsyncError {
	return &DotsyncError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new DotsyncError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *DotsyncError {
	return &DotsyncError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a DotsyncError
func Wrap(err error, code ErrorCode, message string) *DotsyncError {
	if err == nil {
		return nil
	}
	return &DotsyncError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *DotsyncError {
	if err == nil {
		return nil
	}
	return &DotsyncError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *DotsyncError) WithDetail(key string, value interface{}) *DotsyncError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var dsErr *DotsyncError
	if errors.As(err, &dsErr) {
		return dsErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if
// it is not a DotsyncError
func GetErrorCode(err error) ErrorCode {
	var dsErr *DotsyncError
	if errors.As(err, &dsErr) {
		return dsErr.Code
	}
	return ErrUnknown
}
