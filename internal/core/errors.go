// Package core provides the shared types, error taxonomy, and provider
// contract for the AI chat gateway.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is the provider-agnostic classification callers branch on.
type ErrorCode string

const (
	ErrInvalidCredentials    ErrorCode = "INVALID_CREDENTIALS"
	ErrRateLimited           ErrorCode = "RATE_LIMITED"
	ErrContextLengthExceeded ErrorCode = "CONTEXT_LENGTH_EXCEEDED"
	ErrModelNotFound         ErrorCode = "MODEL_NOT_FOUND"
	ErrNetwork               ErrorCode = "NETWORK_ERROR"
	ErrProvider              ErrorCode = "PROVIDER_ERROR"
	ErrInvalidResponse       ErrorCode = "INVALID_RESPONSE"
)

// AIProviderError is the single error type the gateway surfaces. Backend
// specific errors are translated at the provider boundary; callers branch
// on Code, never on provider-native types.
type AIProviderError struct {
	Message    string
	Provider   string
	Code       ErrorCode
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *AIProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s (status %d): %s", e.Provider, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
}

// Unwrap exposes the original cause for errors.Is/As.
func (e *AIProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a caller may reasonably retry the call.
// Invalid credentials and context overflow never recover on retry;
// rate limits, transport failures, and upstream 5xx usually do.
func (e *AIProviderError) Retryable() bool {
	switch e.Code {
	case ErrRateLimited, ErrNetwork:
		return true
	case ErrProvider:
		return e.StatusCode == 0 || e.StatusCode >= 500
	default:
		return false
	}
}

// NewProviderError builds an AIProviderError with an explicit code.
func NewProviderError(provider string, code ErrorCode, message string, err error) *AIProviderError {
	return &AIProviderError{
		Message:  message,
		Provider: provider,
		Code:     code,
		Err:      err,
	}
}

// AsProviderError unwraps err to an *AIProviderError if there is one.
func AsProviderError(err error) (*AIProviderError, bool) {
	var pe *AIProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// MapHTTPError translates a non-2xx upstream response into an
// AIProviderError. The body is probed for a structured error message and
// for context-length complaints, which get their own code because they are
// not retryable.
func MapHTTPError(provider string, statusCode int, body []byte) *AIProviderError {
	message := extractErrorMessage(body)

	code := ErrProvider
	switch {
	case isContextLengthMessage(message):
		code = ErrContextLengthExceeded
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		code = ErrInvalidCredentials
	case statusCode == http.StatusTooManyRequests:
		code = ErrRateLimited
	case statusCode == http.StatusNotFound && strings.Contains(strings.ToLower(message), "model"):
		code = ErrModelNotFound
	}

	return &AIProviderError{
		Message:    message,
		Provider:   provider,
		Code:       code,
		StatusCode: statusCode,
	}
}

// MapTransportError translates a transport-level failure (connection reset,
// DNS, context deadline) into an AIProviderError. Timeouts stay NETWORK_ERROR
// so retry policies upstream treat them as transient.
func MapTransportError(provider string, err error) *AIProviderError {
	message := "request failed"
	if errors.Is(err, context.DeadlineExceeded) {
		message = "request timed out"
	} else if errors.Is(err, context.Canceled) {
		message = "request canceled"
	}
	return &AIProviderError{
		Message:  message + ": " + err.Error(),
		Provider: provider,
		Code:     ErrNetwork,
		Err:      err,
	}
}

// extractErrorMessage pulls the human-readable message out of a provider
// error body, falling back to the raw body.
func extractErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "upstream request failed"
	}
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return msg
}

// isContextLengthMessage detects context-window overflow complaints across
// the wording the major backends use.
func isContextLengthMessage(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "context_length_exceeded") ||
		strings.Contains(m, "maximum context length") ||
		strings.Contains(m, "prompt is too long")
}
