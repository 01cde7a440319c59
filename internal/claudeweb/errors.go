package claudeweb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies failures against the unofficial backend.
type ErrorCode string

const (
	ErrInvalidSession  ErrorCode = "INVALID_SESSION"
	ErrForbidden       ErrorCode = "FORBIDDEN"
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrRateLimited     ErrorCode = "RATE_LIMITED"
	ErrServer          ErrorCode = "SERVER_ERROR"
	ErrNetwork         ErrorCode = "NETWORK_ERROR"
	ErrTimeout         ErrorCode = "TIMEOUT"
	ErrInvalidResponse ErrorCode = "INVALID_RESPONSE"
	ErrNoOrganizations ErrorCode = "NO_ORGANIZATIONS"
	ErrUnknown         ErrorCode = "UNKNOWN_ERROR"
)

// Error is the backend-specific error type for the web-session client. The
// provider boundary translates it; nothing above the claudemax package
// should ever branch on it.
type Error struct {
	Message    string
	Code       ErrorCode
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("claudeweb: %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("claudeweb: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the failure is transient. Session and
// organization failures are fatal for the client instance.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrRateLimited, ErrServer, ErrNetwork, ErrTimeout:
		return true
	default:
		return false
	}
}

// newHTTPError maps a non-2xx response to an Error.
func newHTTPError(statusCode int, message string) *Error {
	var code ErrorCode
	switch {
	case statusCode == http.StatusUnauthorized:
		code = ErrInvalidSession
	case statusCode == http.StatusForbidden:
		code = ErrForbidden
	case statusCode == http.StatusNotFound:
		code = ErrNotFound
	case statusCode == http.StatusTooManyRequests:
		code = ErrRateLimited
	case statusCode >= 500:
		code = ErrServer
	default:
		code = ErrUnknown
	}
	return &Error{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
	}
}

// newTransportError maps a transport failure to an Error, distinguishing
// deadline expiry because retry policies treat timeouts differently.
func newTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Message: "request timed out", Code: ErrTimeout, Err: err}
	}
	return &Error{Message: err.Error(), Code: ErrNetwork, Err: err}
}
