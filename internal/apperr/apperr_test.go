package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"method not allowed", ErrMethodNotAllowed, "method_not_allowed"},
		{"auth missing", ErrAuthMissing, "auth_missing"},
		{"auth invalid", ErrAuthInvalid, "auth_invalid"},
		{"credential not found", ErrCredentialNotFound, "credential_not_found"},
		{"wrapped sentinel", fmt.Errorf("resolve key: %w", ErrCredentialNotFound), "credential_not_found"},
		{"validation", Validation("query is required"), "validation_error"},
		{"downstream", &DownstreamError{Service: "indexer", Status: 402, Body: []byte("no balance")}, "downstream_error"},
		{"transport", &TransportError{Op: "fetch serp", Err: errors.New("refused")}, "transport_error"},
		{"unknown", errors.New("boom"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTTPStatus_DownstreamKeepsStatus(t *testing.T) {
	err := &DownstreamError{Service: "scrapeproxy", Status: http.StatusTooManyRequests, Body: []byte("slow down")}
	if got := HTTPStatus(err); got != http.StatusTooManyRequests {
		t.Errorf("expected downstream status relayed, got %d", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := HTTPStatus(ErrMethodNotAllowed); got != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", got)
	}
	if got := HTTPStatus(ErrAuthMissing); got != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", got)
	}
	if got := HTTPStatus(Validation("missing")); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
	if got := HTTPStatus(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", got)
	}
}

func TestValidationError_CombinesMessages(t *testing.T) {
	err := Validation("query is required", "tld is required")
	want := "validation failed: query is required; tld is required"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
