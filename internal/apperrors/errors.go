package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrAPICallFailed is returned when an upstream call does not complete with a 2xx status.
// StatusCode is 0 when the request never produced a response (connection refused, DNS, ...).
type ErrAPICallFailed struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *ErrAPICallFailed) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("API call %s %s failed: %v", e.Method, e.Endpoint, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("API call %s %s failed with status %d, content: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("API call %s %s failed with status %d", e.Method, e.Endpoint, e.StatusCode)
}

// Unwrap returns the transport error, if any.
func (e *ErrAPICallFailed) Unwrap() error {
	return e.Err
}

// Is allows for error checking with errors.Is().
func (e *ErrAPICallFailed) Is(target error) bool {
	_, ok := target.(*ErrAPICallFailed)
	return ok
}

// Temporary reports whether repeating the call later could succeed.
func (e *ErrAPICallFailed) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// NewAPICallFailedError creates a new ErrAPICallFailed for a non-2xx response.
func NewAPICallFailedError(method, endpoint string, statusCode int, body string) *ErrAPICallFailed {
	return &ErrAPICallFailed{
		Method:     method,
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Body:       body,
	}
}

// NewTransportError creates an ErrAPICallFailed for a request that never got a response.
func NewTransportError(method, endpoint string, err error) *ErrAPICallFailed {
	return &ErrAPICallFailed{
		Method:   method,
		Endpoint: endpoint,
		Err:      err,
	}
}

// ErrRequestTimeout is returned when a single upstream call exceeds the configured timeout.
// It belongs to the ErrAPICallFailed class: errors.Is matches both types.
type ErrRequestTimeout struct {
	Method   string
	Endpoint string
	Timeout  time.Duration
}

// Error implements the error interface.
func (e *ErrRequestTimeout) Error() string {
	return fmt.Sprintf("API call %s %s timed out after %s", e.Method, e.Endpoint, e.Timeout)
}

// Is allows for error checking with errors.Is().
func (e *ErrRequestTimeout) Is(target error) bool {
	switch target.(type) {
	case *ErrRequestTimeout, *ErrAPICallFailed:
		return true
	}
	return false
}

// Temporary always returns true, a timeout says nothing about the request itself.
func (e *ErrRequestTimeout) Temporary() bool {
	return true
}

// ErrDecode is returned when an upstream payload cannot be decoded or fails validation.
type ErrDecode struct {
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *ErrDecode) Error() string {
	return fmt.Sprintf("invalid response from %s: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying decode or validation error.
func (e *ErrDecode) Unwrap() error {
	return e.Err
}

// Is allows for error checking with errors.Is().
func (e *ErrDecode) Is(target error) bool {
	_, ok := target.(*ErrDecode)
	return ok
}

// NewDecodeError creates a new ErrDecode.
func NewDecodeError(endpoint string, err error) *ErrDecode {
	return &ErrDecode{Endpoint: endpoint, Err: err}
}

// IsTransient reports whether err (or anything it wraps) is a failure that may go away on a later run.
// Decode errors and 4xx responses are permanent.
func IsTransient(err error) bool {
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return false
}
