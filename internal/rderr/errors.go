// Package rderr defines the error taxonomy shared by the binding, identity
// and replication layers.
//
// Every error here is a local, synchronous precondition violation. None of
// them is transient and nothing in rdsync retries on them.
package rderr

import (
	"errors"
	"fmt"
)

// Code categorizes protocol errors.
type Code string

const (
	// CodeAlreadyBound indicates bind was called on an entity that has a parent.
	CodeAlreadyBound Code = "ALREADY_BOUND"

	// CodeAlreadyIdentified indicates identify was called twice.
	CodeAlreadyIdentified Code = "ALREADY_IDENTIFIED"

	// CodeNotBound indicates protocol-dependent state was accessed before bind.
	CodeNotBound Code = "NOT_BOUND"

	// CodeInvalidArgument covers Null ids where one is required and
	// out-of-range static ids.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeTypeMismatch indicates an extension was re-requested with another type.
	CodeTypeMismatch Code = "TYPE_MISMATCH"

	// CodeIndexOutOfRange indicates a container index outside current bounds.
	CodeIndexOutOfRange Code = "INDEX_OUT_OF_RANGE"

	// CodeUseAfterUnbind indicates a mutation after the owning lifetime ended.
	CodeUseAfterUnbind Code = "USE_AFTER_UNBIND"

	// CodeWrongThread indicates binding off the endpoint's scheduler.
	CodeWrongThread Code = "WRONG_THREAD"
)

// Sentinels for errors.Is. Matching compares codes only.
var (
	ErrAlreadyBound      = &Error{Code: CodeAlreadyBound}
	ErrAlreadyIdentified = &Error{Code: CodeAlreadyIdentified}
	ErrNotBound          = &Error{Code: CodeNotBound}
	ErrInvalidArgument   = &Error{Code: CodeInvalidArgument}
	ErrTypeMismatch      = &Error{Code: CodeTypeMismatch}
	ErrIndexOutOfRange   = &Error{Code: CodeIndexOutOfRange}
	ErrUseAfterUnbind    = &Error{Code: CodeUseAfterUnbind}
	ErrWrongThread       = &Error{Code: CodeWrongThread}
)

// Error is a protocol precondition violation.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Location is the dotted name of the entity involved, if known.
	Location string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.Location)
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates an Error with a formatted message.
func New(code Code, location, format string, args ...any) *Error {
	return &Error{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Location: location,
	}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
