// Package apperror defines the error taxonomy shared by every domain package
// and its mapping onto HTTP responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes by how the caller should react to them.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// Error is a classified application error. Two errors with the same Code
// match under errors.Is, so packages can declare their own sentinels for a
// shared code without importing each other.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Status returns the HTTP status code for the error kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WithMessage returns a copy of e with a more specific message. The copy
// still matches e under errors.Is.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy of e that carries cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(code, message string) *Error   { return New(KindValidation, code, message) }
func Unauthorized(code, message string) *Error { return New(KindUnauthorized, code, message) }
func Forbidden(code, message string) *Error    { return New(KindForbidden, code, message) }
func NotFound(code, message string) *Error     { return New(KindNotFound, code, message) }
func Conflict(code, message string) *Error     { return New(KindConflict, code, message) }
func Internal(code, message string) *Error     { return New(KindInternal, code, message) }

// Codes shared across packages.
const (
	CodeMissingField       = "MissingField"
	CodeUnauthenticated    = "Unauthenticated"
	CodeForbidden          = "Forbidden"
	CodePersistenceFailure = "PersistenceFailure"
	CodeInternal           = "Internal"
)

var (
	ErrMissingField    = Validation(CodeMissingField, "required field missing")
	ErrUnauthenticated = Unauthorized(CodeUnauthenticated, "authentication required")
	ErrForbidden       = Forbidden(CodeForbidden, "operation not permitted")
)

// MissingField reports that the named request field is absent.
func MissingField(field string) *Error {
	return ErrMissingField.WithMessage("%s is required", field)
}

// Persistence wraps a storage error as a PersistenceFailure.
func Persistence(op string, cause error) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    CodePersistenceFailure,
		Message: op + " failed",
		Err:     cause,
	}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal when err is unclassified.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}
