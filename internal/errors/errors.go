package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Quill error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrCanceled          ErrorCode = "CANCELED"           // 499 (user dismissed a picker or prompt)
	ErrNeedsPermission   ErrorCode = "NEEDS_PERMISSION"   // 403
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION" // 409
	ErrUnserializable    ErrorCode = "UNSERIALIZABLE"     // 422
	ErrPluginFailed      ErrorCode = "PLUGIN_FAILED"      // 422
	ErrPickerUnavailable ErrorCode = "PICKER_UNAVAILABLE" // 501
	ErrInternal          ErrorCode = "INTERNAL"           // 500
)

// QuillError represents a structured error with code, status, and details.
type QuillError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *QuillError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *QuillError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *QuillError {
	return &QuillError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewCanceled reports that the user dismissed a picker or declined a prompt.
// Callers treat it as a neutral outcome, not a failure.
func NewCanceled(op string) *QuillError {
	return &QuillError{
		Code:    ErrCanceled,
		Status:  499,
		Message: fmt.Sprintf("%s canceled", op),
		Details: map[string]any{"op": op},
	}
}

// NewNeedsPermission creates a 403 error when write access to a file was not granted.
func NewNeedsPermission(name string, cause error) *QuillError {
	return &QuillError{
		Code:    ErrNeedsPermission,
		Status:  403,
		Message: fmt.Sprintf("permission needed to write %s", name),
		Details: map[string]any{"name": name},
		cause:   cause,
	}
}

// NewNotFound creates a 404 error for an unknown document, plugin or action.
func NewNotFound(kind, identifier string) *QuillError {
	return &QuillError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewInvalidTransition creates a 409 error for a view change the current mode forbids.
func NewInvalidTransition(from, event string) *QuillError {
	return &QuillError{
		Code:    ErrInvalidTransition,
		Status:  409,
		Message: fmt.Sprintf("cannot apply %s while in %s mode", event, from),
		Details: map[string]any{"from": from, "event": event},
	}
}

// NewUnserializable creates a 422 error for a file handle that cannot be persisted.
func NewUnserializable(kind string) *QuillError {
	return &QuillError{
		Code:    ErrUnserializable,
		Status:  422,
		Message: fmt.Sprintf("file handle of kind %q cannot be persisted", kind),
		Details: map[string]any{"kind": kind},
	}
}

// NewPluginFailed creates a 422 error for a plugin that raised while loading or running.
func NewPluginFailed(plugin string, cause error) *QuillError {
	msg := "plugin failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &QuillError{
		Code:    ErrPluginFailed,
		Status:  422,
		Message: fmt.Sprintf("plugin %s: %s", plugin, msg),
		Details: map[string]any{"plugin": plugin},
		cause:   cause,
	}
}

// NewPickerUnavailable creates a 501 error when the destination picker is blocked or unsupported.
func NewPickerUnavailable(reason string) *QuillError {
	return &QuillError{
		Code:    ErrPickerUnavailable,
		Status:  501,
		Message: fmt.Sprintf("file picker unavailable: %s", reason),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *QuillError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &QuillError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err (or anything it wraps) is a QuillError with the given code.
func Is(err error, code ErrorCode) bool {
	var qErr *QuillError
	if stderrors.As(err, &qErr) {
		return qErr.Code == code
	}
	return false
}

// CodeOf returns the code of a QuillError, or ErrInternal for any other error.
func CodeOf(err error) ErrorCode {
	var qErr *QuillError
	if stderrors.As(err, &qErr) {
		return qErr.Code
	}
	return ErrInternal
}
