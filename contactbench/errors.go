package contactbench

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrUnknownField    ErrorKind = "unknown_field"
	ErrValidation      ErrorKind = "validation"
	ErrCancelled       ErrorKind = "cancelled"
	ErrTimedOut        ErrorKind = "timed_out"
	ErrExecutionFailed ErrorKind = "execution_failed"
	ErrSQL             ErrorKind = "sql"
	ErrConfig          ErrorKind = "config"
	ErrExport          ErrorKind = "export"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Field   string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	base := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Field != "" {
		base = fmt.Sprintf("%s (field=%s)", base, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func UnknownFieldError(field string) *Error {
	return &Error{Kind: ErrUnknownField, Message: "unknown field", Field: field}
}

func ValidationError(field, msg string) *Error {
	return &Error{Kind: ErrValidation, Field: field, Message: msg}
}

func CancelledError(msg string) *Error {
	return &Error{Kind: ErrCancelled, Message: msg}
}

func TimedOutError(msg string) *Error {
	return &Error{Kind: ErrTimedOut, Message: msg}
}

func ExecutionError(msg string, cause error) *Error {
	return &Error{Kind: ErrExecutionFailed, Message: msg, Cause: cause}
}

func ConfigError(msg string) *Error {
	return &Error{Kind: ErrConfig, Message: msg}
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
