// Package apierr is the error kind surfaced by the orchestration core to its
// callers (§7): a stable Code plus an HTTP-ish Status for transports that
// want one, wrapping the underlying cause.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// The §7 error kinds. Each constructor pins the Code so callers can
// errors.As(...) into *Error and switch on Code rather than Status.
const (
	CodeNotFound         = "NotFound"
	CodeInvalidState     = "InvalidState"
	CodeInvalidTransition = "InvalidTransition"
	CodeValidationError  = "ValidationError"
	CodeAlreadyExists    = "AlreadyExists"
	CodeResourceError    = "ResourceError"
	CodeInternal         = "Internal"
)

func NotFound(err error) *Error         { return New(http.StatusNotFound, CodeNotFound, err) }
func InvalidState(err error) *Error     { return New(http.StatusConflict, CodeInvalidState, err) }
func InvalidTransition(err error) *Error { return New(http.StatusConflict, CodeInvalidTransition, err) }
func ValidationError(err error) *Error  { return New(http.StatusBadRequest, CodeValidationError, err) }
func AlreadyExists(err error) *Error    { return New(http.StatusConflict, CodeAlreadyExists, err) }
func ResourceError(err error) *Error    { return New(http.StatusTooManyRequests, CodeResourceError, err) }
func Internal(err error) *Error         { return New(http.StatusInternalServerError, CodeInternal, err) }

// Is reports whether err is an *Error with the given code.
func Is(err error, code string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
