package auth

import (
	"errors"
	"net/http"
)

// ErrorKind classifies authentication failures for the host.
type ErrorKind int

const (
	// KindUnauthenticated means no valid credentials were established.
	KindUnauthenticated ErrorKind = iota

	// KindInvalidParams means credential material was malformed.
	KindInvalidParams

	// KindOther is an internal failure (store, hasher, ...).
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInvalidParams:
		return "invalid_params"
	default:
		return "other"
	}
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Error is the single error shape produced by schemes and the chain.
// Cause is kept for logging and never sent to clients.
type Error struct {
	Kind  ErrorKind
	Cause error
}

// Unauthenticated returns a KindUnauthenticated error.
func Unauthenticated() *Error { return &Error{Kind: KindUnauthenticated} }

// InvalidParams returns a KindInvalidParams error wrapping cause.
func InvalidParams(cause error) *Error { return &Error{Kind: KindInvalidParams, Cause: cause} }

// Other returns a KindOther error wrapping cause.
func Other(cause error) *Error { return &Error{Kind: KindOther, Cause: cause} }

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindUnauthenticated:
		msg = "the user is not authenticated"
	case KindInvalidParams:
		msg = "the supplied authentication parameters are not valid"
	default:
		msg = "internal authentication error"
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes unauthenticated errors match ErrUnauthenticated.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthenticated && e.Kind == KindUnauthenticated
}

// HTTPStatus maps the error kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindInvalidParams:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AsError converts err into an *Error. Errors that are not already of that
// shape become KindOther.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, ErrUnauthenticated) {
		return Unauthenticated()
	}
	return Other(err)
}
