package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers unreachable backends and bodies that are not JSON.
	ErrTransport = errors.New("network or server error")
	// ErrUnexpectedPayload is returned when a 2xx body lacks required fields.
	ErrUnexpectedPayload = errors.New("unexpected payload")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// DetailOf extracts the backend's human-readable message, if any.
func DetailOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}
