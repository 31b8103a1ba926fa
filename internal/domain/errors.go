package domain

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindConfiguration ErrorKind = "configuration"
	KindRateLimit     ErrorKind = "rate_limit"
	KindUpstream      ErrorKind = "upstream"
	KindTransport     ErrorKind = "transport"
)

// Error is the failure taxonomy shared by the proxies and the recorder.
// Message is safe to show to callers; Err keeps the diagnostic cause.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode is the HTTP status the error maps to at the boundary.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindUpstream:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func ValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func ConfigurationError(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message}
}

func RateLimitError(message string) *Error {
	return &Error{Kind: KindRateLimit, Message: message}
}

func UpstreamError(status int, message string, err error) *Error {
	return &Error{Kind: KindUpstream, Status: status, Message: message, Err: err}
}

func TransportError(message string, err error) *Error {
	return &Error{Kind: KindTransport, Message: message, Err: err}
}

// AsError returns the taxonomy error in err's chain, wrapping anything else
// as a transport failure.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return TransportError("Internal server error", err)
}

func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}
