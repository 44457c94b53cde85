// Package errors provides the error taxonomy used by the retry engine and the
// Anthropic-format error surface returned by the HTTP ingress.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorType represents the type of error in Anthropic format.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypeAuthentication ErrorType = "authentication_error"
	ErrorTypePermission     ErrorType = "permission_error"
	ErrorTypeNotFound       ErrorType = "not_found_error"
	ErrorTypeRateLimit      ErrorType = "rate_limit_error"
	ErrorTypeAPI            ErrorType = "api_error"
	ErrorTypeOverloaded     ErrorType = "overloaded_error"
)

// AnthropicError represents an error response in Anthropic format.
type AnthropicError struct {
	Type   string      `json:"type"` // Always "error"
	Detail ErrorDetail `json:"error"`
	// HTTPStatus overrides the default status code mapping when set.
	HTTPStatus int `json:"-"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *AnthropicError) Error() string {
	return e.Detail.Message
}

// ToJSON returns the error as a JSON byte slice.
func (e *AnthropicError) ToJSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// StatusCode returns the HTTP status code for this error.
func (e *AnthropicError) StatusCode() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}

	switch e.Detail.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new AnthropicError.
func NewError(errType ErrorType, message string) *AnthropicError {
	return &AnthropicError{
		Type: "error",
		Detail: ErrorDetail{
			Type:    errType,
			Message: message,
		},
	}
}

// InvalidRequest creates an invalid request error.
func InvalidRequest(message string) *AnthropicError {
	return NewError(ErrorTypeInvalidRequest, message)
}

// AuthenticationError creates an authentication error.
func AuthenticationError(message string) *AnthropicError {
	return NewError(ErrorTypeAuthentication, message)
}

// RateLimited creates a rate limit error.
func RateLimited(message string) *AnthropicError {
	return NewError(ErrorTypeRateLimit, message)
}

// APIError creates an API error.
func APIError(message string) *AnthropicError {
	return NewError(ErrorTypeAPI, message)
}

// OverloadedError creates an overloaded error.
func OverloadedError(message string) *AnthropicError {
	return NewError(ErrorTypeOverloaded, message)
}

// FromError converts a Go error to an AnthropicError for the ingress response.
// Typed errors from the retry engine are classified by kind; anything else
// falls back to string matching.
func FromError(err error) *AnthropicError {
	if err == nil {
		return nil
	}

	// Already shaped for the wire.
	if ae, ok := err.(*AnthropicError); ok {
		return ae
	}

	switch Classify(err) {
	case KindRateLimit:
		return RateLimited(rateLimitMessage(err))
	case KindAuthInvalid, KindAuthTransient:
		return AuthenticationError(err.Error())
	case KindNoAccounts:
		ae := APIError(err.Error() + ". Add an account with `accounts add` or wait for rate limits to reset.")
		ae.HTTPStatus = http.StatusServiceUnavailable
		return ae
	case KindServerError, KindModelCapacity:
		return OverloadedError(err.Error())
	case KindNetworkTransient:
		ae := APIError("Unable to reach the upstream provider: " + err.Error())
		ae.HTTPStatus = http.StatusServiceUnavailable
		return ae
	case KindMaxRetries:
		ae := OverloadedError(err.Error())
		ae.HTTPStatus = http.StatusServiceUnavailable
		return ae
	}

	errStr := err.Error()
	lowerErr := strings.ToLower(errStr)

	switch {
	case strings.Contains(lowerErr, "overloaded") ||
		strings.Contains(lowerErr, "503") ||
		strings.Contains(lowerErr, "service unavailable"):
		return OverloadedError(errStr)
	case strings.Contains(lowerErr, "not found") ||
		strings.Contains(lowerErr, "404"):
		return NewError(ErrorTypeNotFound, errStr)
	case strings.Contains(lowerErr, "invalid") ||
		strings.Contains(lowerErr, "bad request") ||
		strings.Contains(lowerErr, "400"):
		return InvalidRequest(errStr)
	default:
		return APIError(errStr)
	}
}

func rateLimitMessage(err error) string {
	var rle *RateLimitError
	if As(err, &rle) && rle.ResetMs > 0 {
		wait := time.Until(time.UnixMilli(rle.ResetMs)).Round(time.Second)
		if wait > 0 {
			return fmt.Sprintf("All accounts are rate limited. Try again in %s.", wait)
		}
	}
	return "All accounts are rate limited. Please wait for the limits to reset."
}

// Wrap wraps an error with additional context.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}
