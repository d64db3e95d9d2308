// Package domainerrors defines coded errors shared by services and transports.
//
// Services return *Error values (directly or wrapped) so the transport layer can
// translate them without inspecting messages. Stores return sentinel errors from
// pkg/platform/sentinel instead; services map those into codes.
package domainerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a domain error.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvalidState       Code = "invalid_state"
	CodeChainConfiguration Code = "chain_configuration"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnavailable        Code = "unavailable"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Error is a coded domain error. Context holds key/value pairs such as the
// expected and actual version of a stale write, in insertion order.
type Error struct {
	Code    Code
	Message string
	Err     error
	Context []any
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for i := 0; i+1 < len(e.Context); i += 2 {
		fmt.Fprintf(&b, " %v=%v", e.Context[i], e.Context[i+1])
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// With appends key/value context and returns the same error for chaining.
func (e *Error) With(kv ...any) *Error {
	e.Context = append(e.Context, kv...)
	return e
}

// Retryable reports whether the caller may retry after re-reading state.
// Only conflicts are safe to retry automatically.
func (e *Error) Retryable() bool {
	return e.Code == CodeConflict
}

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// As extracts the outermost *Error from err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost domain error in err's chain has code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}
