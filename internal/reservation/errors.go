package reservation

import (
	"errors"
	"fmt"
)

// Kind classifies the ways a reservation-core operation can fail, so the
// HTTP layer can map each to the right status code without re-deriving
// the reason from an error string.
type Kind string

const (
	KindInsufficient       Kind = "INSUFFICIENT"
	KindNotInitialized     Kind = "NOT_INITIALIZED"
	KindNotFound           Kind = "NOT_FOUND"
	KindForbidden          Kind = "FORBIDDEN"
	KindAlreadyTerminal    Kind = "ALREADY_TERMINAL"
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindUnauthenticated    Kind = "UNAUTHENTICATED"
	KindBackendUnavailable Kind = "BACKEND_UNAVAILABLE"
)

// Error is a tagged error carrying a Kind the caller can switch on,
// replacing ad hoc string comparisons against err.Error().
type Error struct {
	Kind    Kind
	Message string
	Detail  map[string]interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds an *Error with optional detail fields.
func NewError(kind Kind, message string, detail map[string]interface{}) *Error {
	return &Error{Kind: kind, Message: message, Detail: detail}
}

// AsError returns err's *Error and true if err is (or wraps) one.
func AsError(err error) (*Error, bool) {
	var re *Error
	ok := errors.As(err, &re)
	return re, ok
}
