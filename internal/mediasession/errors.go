package mediasession

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every error the controller reports.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindService      ErrorKind = "service"
	KindDecode       ErrorKind = "decode"
	KindUnsupported  ErrorKind = "unsupported"
	KindBusy         ErrorKind = "busy"
	KindInvalidState ErrorKind = "invalid_state"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrService      = errors.New("service error")
	ErrDecode       = errors.New("decode error")
	ErrUnsupported  = errors.New("unsupported")
	ErrBusy         = errors.New("busy")
	ErrInvalidState = errors.New("invalid state")
	ErrClosed       = errors.New("media session closed")
)

var kindSentinels = map[ErrorKind]error{
	KindValidation:   ErrValidation,
	KindService:      ErrService,
	KindDecode:       ErrDecode,
	KindUnsupported:  ErrUnsupported,
	KindBusy:         ErrBusy,
	KindInvalidState: ErrInvalidState,
}

// Error is a classified controller error. It matches its kind's sentinel
// with errors.Is and unwraps to the underlying cause, if any.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func wrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func (e *Error) info() *ErrorInfo {
	return &ErrorInfo{Kind: e.Kind, Message: e.Message}
}

// KindOf returns the classification of err, or "" when err is not a
// controller error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ServiceError marks err as a remote-call failure. Adapters use it so that
// the controller and the HTTP layer agree on classification.
func ServiceError(msg string, err error) error {
	return wrapError(KindService, msg, err)
}

// ValidationError marks a local input problem that never reaches a remote
// service.
func ValidationError(msg string) error {
	return newError(KindValidation, msg)
}

// DictationFailure marks err as a live-transcription failure of the given
// kind. The message is the kind's user-facing text.
func DictationFailure(kind DictationErrorKind, err error) error {
	return wrapError(KindService, kind.Message(), err)
}

// Describe returns the presentation-safe form of err. Errors that are not
// controller errors are reported without their text.
func Describe(err error) ErrorInfo {
	var e *Error
	switch {
	case errors.As(err, &e):
		return *e.info()
	case errors.Is(err, ErrClosed):
		return ErrorInfo{Kind: KindInvalidState, Message: ErrClosed.Error()}
	default:
		return ErrorInfo{Kind: KindService, Message: "unexpected error"}
	}
}
