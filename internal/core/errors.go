// Package core provides core types and interfaces for the lingogate gateway.
package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeProvider indicates an upstream provider error
	ErrorTypeProvider ErrorType = "provider_error"
	// ErrorTypeRateLimit indicates the upstream answered 429
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeInvalidRequest indicates a client error (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates the upstream rejected our credentials
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeNotFound indicates a not found error (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeConfiguration indicates a missing credential or setting, reported at first use
	ErrorTypeConfiguration ErrorType = "configuration_error"
	// ErrorTypeUpstreamJob indicates a polled upstream job reached a non-successful terminal state
	ErrorTypeUpstreamJob ErrorType = "upstream_job_error"
)

// GatewayError is the base error type for all gateway errors
type GatewayError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Provider   string    `json:"provider,omitempty"`
	// RequestID is the upstream provider's request id, when it sent one.
	RequestID string `json:"request_id,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, msg)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap implements the error unwrapping interface
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *GatewayError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to the client-facing body: always an "error" field,
// plus "details" and "requestId" when known.
func (e *GatewayError) ToJSON() map[string]any {
	body := map[string]any{"error": e.Message}
	if e.Details != "" {
		body["details"] = e.Details
	}
	if e.RequestID != "" {
		body["requestId"] = e.RequestID
	}
	return body
}

// ClientMessage returns the message that may be shown to a client for err.
// Errors that are not GatewayErrors are never echoed back verbatim.
func ClientMessage(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}
	return "an unexpected error occurred"
}

// NewProviderError creates a new provider error
func NewProviderError(provider string, statusCode int, message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeProvider,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
		Err:        err,
	}
}

// NewRateLimitError creates a new rate limit error (429)
func NewRateLimitError(provider string, message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Provider:   provider,
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *GatewayError {
	return NewInvalidRequestErrorWithStatus(http.StatusBadRequest, message, err)
}

// NewInvalidRequestErrorWithStatus creates a new invalid request error with a specific status code
func NewInvalidRequestErrorWithStatus(statusCode int, message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewAuthenticationError creates a new authentication error, keeping the upstream status
func NewAuthenticationError(provider string, statusCode int, message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewConfigurationError reports that a provider or collaborator is missing
// its credentials. The check happens on first use, not at startup.
func NewConfigurationError(component string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeConfiguration,
		Message:    component + " is not configured",
		StatusCode: http.StatusInternalServerError,
		Provider:   component,
	}
}

// NewUpstreamJobError reports a polled job that ended in a terminal state other than success.
func NewUpstreamJobError(provider, message, status string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeUpstreamJob,
		Message:    message,
		Details:    status,
		StatusCode: http.StatusInternalServerError,
		Provider:   provider,
	}
}

// upstreamMessagePaths lists where the providers we talk to put a human-readable message.
var upstreamMessagePaths = []string{
	"error.message",
	"detail.message",
	"error",
	"detail",
	"message",
}

// maxUpstreamMessage caps, in bytes, the non-JSON upstream text echoed to clients.
const maxUpstreamMessage = 512

// extractUpstreamMessage pulls a readable message out of an upstream error body.
// Bodies that are not JSON are returned as trimmed text.
func extractUpstreamMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		for _, path := range upstreamMessagePaths {
			if v := parsed.Get(path); v.Exists() && v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}
	text := strings.TrimSpace(strings.ToValidUTF8(string(body), ""))
	if len(text) > maxUpstreamMessage {
		cut := maxUpstreamMessage
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

// ParseProviderError parses an error response from a provider and returns an appropriate
// GatewayError. The upstream status is mirrored to the client.
func ParseProviderError(provider string, statusCode int, body []byte, requestID string) *GatewayError {
	message := extractUpstreamMessage(body)
	if message == "" {
		message = http.StatusText(statusCode)
	}
	if message == "" {
		message = "upstream request failed"
	}

	var gwErr *GatewayError
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		gwErr = NewAuthenticationError(provider, statusCode, message)
	case statusCode == http.StatusTooManyRequests:
		gwErr = NewRateLimitError(provider, message)
	case statusCode >= 400 && statusCode < 500:
		gwErr = NewInvalidRequestErrorWithStatus(statusCode, message, nil)
		gwErr.Provider = provider
	case statusCode >= 500 && statusCode < 600:
		gwErr = NewProviderError(provider, statusCode, message, nil)
	default:
		gwErr = NewProviderError(provider, http.StatusBadGateway, message, nil)
	}
	gwErr.RequestID = requestID
	return gwErr
}
