package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is wrapped by errors for 401 responses.
var ErrUnauthorized = errors.New("session expired, please sign in again")

// StatusError is returned for any unsuccessful response that has no more
// specific error type.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("request failed: %d %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// DuplicateError is returned when the backend already knows a lead with
// the same platform id in the campaign.
type DuplicateError struct {
	PlatformID string
	Message    string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate lead %s: %s", e.PlatformID, e.Message)
}

// ValidationError is returned for leads rejected by validation, either
// locally before sending or by the backend.
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// retryable reports whether a request failing with status code may succeed
// when repeated.
func retryable(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
