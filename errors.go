package clover

import (
	"errors"
	"fmt"

	"github.com/cloverproject/clovercore/internal/event"
)

// ErrorCode represents high-level error categories.
type ErrorCode string

const (
	ErrCodeArgumentValidation ErrorCode = "argument validation failed"
	ErrCodeAlignment          ErrorCode = "misaligned sub-buffer offset"
	ErrCodeResource           ErrorCode = "resource allocation failed"
	ErrCodeDependencyFailure  ErrorCode = "wait-list dependency failed"
	ErrCodeExecutionFailure   ErrorCode = "execution failed"
	ErrCodeBuildFailure       ErrorCode = "program build failed"
	ErrCodeInvalidObject      ErrorCode = "invalid object"
)

// Error represents a structured runtime error with operation context.
type Error struct {
	Op    string    // Operation that failed (e.g., "EnqueueWriteBuffer")
	Kind  string    // Object kind involved ("" if not applicable)
	Code  ErrorCode // High-level error category
	Msg   string    // Human-readable message
	Inner error     // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("clover: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("clover: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support: two structured errors match when their
// codes match.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// NewError creates a new structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:   op,
		Code: code,
		Msg:  msg,
	}
}

// WrapError wraps an existing error with operation context.
func WrapError(op string, code ErrorCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ce, ok := inner.(*Error); ok {
		return &Error{
			Op:    op,
			Kind:  ce.Kind,
			Code:  ce.Code,
			Msg:   ce.Msg,
			Inner: ce.Inner,
		}
	}
	return &Error{
		Op:    op,
		Code:  code,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// IsCode checks if an error matches a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// StatusError converts a failed event status into a structured error,
// or nil when the status is not an error.
func StatusError(op string, st event.Status) *Error {
	if !st.IsError() {
		return nil
	}
	code := ErrCodeExecutionFailure
	switch st {
	case event.StatusArgumentValidation:
		code = ErrCodeArgumentValidation
	case event.StatusAlignment:
		code = ErrCodeAlignment
	case event.StatusResource:
		code = ErrCodeResource
	case event.StatusDependencyFailure:
		code = ErrCodeDependencyFailure
	}
	return &Error{
		Op:   op,
		Code: code,
		Msg:  fmt.Sprintf("event failed with status %d", st),
	}
}
