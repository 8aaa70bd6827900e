// Package errors provides structured error handling for the extractor.
//
// Every error surfaced to the operator is classified either as a user error
// (bad configuration, unexpected data, connectivity and authentication
// failures) or as an application error (an internal defect). User errors carry
// an actionable message and never contain secrets.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal invariant violations
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeConnection represents connectivity, authentication and transport errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeData represents unexpected row content
	ErrorTypeData ErrorType = "data"
	// ErrorTypeQuery represents failures of the remote table query
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypeFile represents local file operation errors
	ErrorTypeFile ErrorType = "file"
)

// RedactedPlaceholder replaces secrets in error messages.
const RedactedPlaceholder = "*****"

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface. The message is what the operator
// sees, so the type prefix is not part of it.
func (e *Error) Error() string {
	if _, ok := e.Cause.(*redacted); ok {
		return e.Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsType checks if the outermost structured error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// IsUser reports whether err should be reported as a user error. Only the
// outermost structured error decides; unclassified errors are application
// errors.
func IsUser(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeConfig, ErrorTypeConnection, ErrorTypeData, ErrorTypeQuery:
		return true
	default:
		return false
	}
}

// Redact returns a user error of the given type whose message is prefix
// followed by the message of err with every secret replaced. The original
// error is kept as the cause for errors.Is/As but is not part of the message.
func Redact(err error, errType ErrorType, prefix string, secrets ...string) *Error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		msg = strings.ReplaceAll(msg, secret, RedactedPlaceholder)
	}

	return &Error{
		Type:    errType,
		Message: prefix + msg,
		Cause:   &redacted{cause: err},
		Stack:   captureStack(2),
	}
}

// redacted hides the message of the wrapped error while keeping it reachable
// through errors.Is and errors.As.
type redacted struct {
	cause error
}

func (r *redacted) Error() string { return "" }

func (r *redacted) Unwrap() error { return r.cause }

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
