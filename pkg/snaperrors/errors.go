// Package snaperrors provides structured error handling for parqsnap with
// error categorization, key-value context, and stack trace capture.
//
// Errors fall into a small taxonomy that mirrors how the export engine
// recovers from them:
//   - ErrorTypeIO: file create/write failures; abort the current cluster
//   - ErrorTypeWrite: encoding, schema or compression failures; abort the
//     current cluster
//   - ErrorTypeSerialization: reflection or registry lookup failure for a
//     single attribute/entity; recovered locally, never aborts a cluster
//   - ErrorTypeRegistry: attribute type metadata entirely absent
//   - ErrorTypeConfig: invalid configuration
//
// Basic usage:
//
//	if err := os.WriteFile(path, data, 0o644); err != nil {
//	    return snaperrors.Wrap(err, snaperrors.ErrorTypeIO, "failed to write snapshot file").
//	        WithDetail("path", path)
//	}
package snaperrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error, used to decide recovery scope.
type ErrorType string

const (
	// ErrorTypeIO represents file create/write failures.
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeWrite represents encoding, schema or compression failures.
	ErrorTypeWrite ErrorType = "write"
	// ErrorTypeSerialization represents per-attribute/per-entity reflection
	// failures that are recovered locally.
	ErrorTypeSerialization ErrorType = "serialization"
	// ErrorTypeRegistry represents missing type metadata in the registry.
	ErrorTypeRegistry ErrorType = "registry"
	// ErrorTypeConfig represents configuration errors.
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeInternal represents internal errors.
	ErrorTypeInternal ErrorType = "internal"
)

// Error is a structured error with category, context details and the call
// stack captured at creation.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is a single frame in the call stack at error creation.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Chainable.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, capturing the
// call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured Error
// its stack trace is preserved. Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existing.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType reports whether err is a structured Error of the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// GetType returns the error type, or ErrorTypeInternal for plain errors.
func GetType(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

func captureStack(skip int) []StackFrame {
	const maxDepth = 16
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]StackFrame, 0, n)
	for {
		frame, more := frames.Next()
		stack = append(stack, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more {
			break
		}
	}
	return stack
}
