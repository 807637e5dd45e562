// Package apperr defines the error taxonomy shared by the proxy forwarders,
// the task client, and the scrape engine, along with the mapping from each
// error kind to an HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMethodNotAllowed is returned before any downstream call when the
	// inbound method is outside a forwarder's allow-list.
	ErrMethodNotAllowed = errors.New("method not allowed")

	// ErrAuthMissing is returned when no bearer credential accompanies a request.
	ErrAuthMissing = errors.New("authorization header missing")

	// ErrAuthInvalid is returned when the bearer credential fails verification.
	ErrAuthInvalid = errors.New("invalid token")

	// ErrCredentialNotFound is returned when no API key can be resolved for
	// the calling user and service.
	ErrCredentialNotFound = errors.New("api key not found")

	// ErrNotFound is returned by storage lookups for absent rows.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports one or more bad input parameters. Messages are
// user-facing and listed in the order the checks ran.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 1 {
		return e.Messages[0]
	}
	out := "validation failed:"
	for _, m := range e.Messages {
		out += " " + m + ";"
	}
	return out[:len(out)-1]
}

// Validation builds a ValidationError from the given messages.
func Validation(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

// DownstreamError carries a non-success response from a wrapped service.
// Status and Body are relayed to the caller verbatim.
type DownstreamError struct {
	Service string
	Status  int
	Body    []byte
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.Status, e.Body)
}

// TransportError wraps a network or parse failure talking to a downstream
// service or the persistence store.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Code returns the wire-level error code for err.
func Code(err error) string {
	var ve *ValidationError
	var de *DownstreamError
	var te *TransportError
	switch {
	case errors.Is(err, ErrMethodNotAllowed):
		return "method_not_allowed"
	case errors.Is(err, ErrAuthMissing):
		return "auth_missing"
	case errors.Is(err, ErrAuthInvalid):
		return "auth_invalid"
	case errors.Is(err, ErrCredentialNotFound):
		return "credential_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &ve):
		return "validation_error"
	case errors.As(err, &de):
		return "downstream_error"
	case errors.As(err, &te):
		return "transport_error"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps err to the status code surfaced to the caller. Downstream
// errors keep the status the wrapped service returned.
func HTTPStatus(err error) int {
	var de *DownstreamError
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrAuthMissing), errors.Is(err, ErrAuthInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrCredentialNotFound), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &de):
		return de.Status
	default:
		return http.StatusInternalServerError
	}
}
