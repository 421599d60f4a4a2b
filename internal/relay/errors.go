package relay

import (
	"errors"
	"net/http"
)

// Kind classifies relay failures.
type Kind string

const (
	// KindValidation is malformed or missing client input.
	KindValidation Kind = "validation"
	// KindConfiguration is a missing or placeholder credential.
	KindConfiguration Kind = "configuration"
	// KindUpstream is any failure from GitHub or the forecasting service.
	KindUpstream Kind = "upstream"
	// KindNotFound is a well-formed request with no issues in range.
	KindNotFound Kind = "not_found"
	// KindInternal is anything else.
	KindInternal Kind = "internal"
)

// HTTPStatus maps a failure kind to its response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified relay failure. Message is safe to show to clients.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError wraps invalid client input.
func ValidationError(message string, err error) *Error {
	return &Error{Kind: KindValidation, Message: message, Err: err}
}

// ConfigurationError wraps a credential or configuration problem.
func ConfigurationError(message string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Err: err}
}

// UpstreamError wraps a failed GitHub or forecasting call.
func UpstreamError(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// NotFoundError reports a request that matched nothing.
func NotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// InternalError wraps an unexpected failure.
func InternalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal when err is unclassified.
func KindOf(err error) Kind {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Kind
	}
	return KindInternal
}
