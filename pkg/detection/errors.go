package detection

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoBaseURL is returned when the remote tracker has no endpoint.
	ErrNoBaseURL = errors.New("detection: tracker URL required")

	// ErrEmptyFrame is returned when Track is called without image data.
	ErrEmptyFrame = errors.New("detection: empty frame")

	// ErrReplayExhausted is returned once a replay has served every frame.
	ErrReplayExhausted = errors.New("detection: replay exhausted")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("detection: tracker closed")
)

// APIError represents an error response from the tracking service.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the response body or error text.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("detection: tracker API error %d: %s", e.StatusCode, e.Message)
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the frame could be resent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.IsServerError()
}
