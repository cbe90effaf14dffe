package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestFailed indicates the provider rejected the request.
	ErrRequestFailed = errors.New("API request failed")

	// ErrStreamError indicates a malformed frame or an error reported
	// inside the stream.
	ErrStreamError = errors.New("stream error")
)

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d - %s", ErrRequestFailed, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return ErrRequestFailed
}
