package errcode

import (
	"errors"
	"net/http"
)

// Kind classifies failures that reach the action dispatcher.
// External generation failures have no Kind; they never leave the
// dream service.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindAuth
	KindConflict
	KindRateLimited
)

// Error carries a client-safe message plus the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error  { return &Error{Kind: KindValidation, Message: msg} }
func NotFound(msg string) error    { return &Error{Kind: KindNotFound, Message: msg} }
func Auth(msg string) error        { return &Error{Kind: KindAuth, Message: msg} }
func Conflict(msg string) error    { return &Error{Kind: KindConflict, Message: msg} }
func RateLimited(msg string) error { return &Error{Kind: KindRateLimited, Message: msg} }

// Persistence wraps a store failure; the cause is logged, never returned to clients.
func Persistence(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf reports the kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps err to a transport status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to show a client.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal error"
}
