package client

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrStatus    = errors.New("unexpected status")
	ErrJobFailed = errors.New("job failed")
	ErrFormat    = errors.New("unknown output format")
)

// APIError carries the status and message of a non-success response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %d (%s): %s", ErrStatus, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %d: %s", ErrStatus, e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return ErrStatus }
