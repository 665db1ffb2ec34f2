package auth

import (
	"errors"
	"net/http"
)

// Code is the closed set of authentication failures shown to users.
type Code string

const (
	CodeInvalidCredentials Code = "invalid-credentials"
	CodeEmailInUse         Code = "email-in-use"
	CodeWeakPassword       Code = "weak-password"
	CodeInvalidEmail       Code = "invalid-email"
	CodeUnknown            Code = "unknown"
)

var (
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials}
	ErrEmailInUse         = &Error{Code: CodeEmailInUse}
	ErrWeakPassword       = &Error{Code: CodeWeakPassword}
	ErrInvalidEmail       = &Error{Code: CodeInvalidEmail}
	ErrUnknown            = &Error{Code: CodeUnknown}
)

// Error is returned by every Provider. Err keeps the provider's own error
// for logging and is never rendered to users.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	return e.Code.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so callers can compare against the Err* values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CodeOf returns the code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

func (c Code) Message() string {
	switch c {
	case CodeInvalidCredentials:
		return "Invalid email or password."
	case CodeEmailInUse:
		return "An account with this email already exists."
	case CodeWeakPassword:
		return "Password should be at least 6 characters."
	case CodeInvalidEmail:
		return "Please enter a valid email address."
	default:
		return "Something went wrong. Please try again."
	}
}

func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeEmailInUse:
		return http.StatusConflict
	case CodeWeakPassword, CodeInvalidEmail:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
