package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailureKind is the closed taxonomy of invocation failures.
type FailureKind string

const (
	KindConfiguration    FailureKind = "configuration_error"
	KindRateLimited      FailureKind = "rate_limited"
	KindRequestTooLarge  FailureKind = "request_too_large"
	KindTimeout          FailureKind = "timeout"
	KindModelUnavailable FailureKind = "model_unavailable"
	KindQuotaExceeded    FailureKind = "quota_exceeded"
	KindInvalidInput     FailureKind = "invalid_input"
	KindContextTooLong   FailureKind = "context_too_long"
	KindUnknown          FailureKind = "unknown"
)

// FallbackEligible reports whether a failure of this kind should advance the
// orchestrator to the next candidate model. Unknown is treated as eligible.
func (k FailureKind) FallbackEligible() bool {
	switch k {
	case KindModelUnavailable, KindQuotaExceeded, KindTimeout, KindUnknown:
		return true
	default:
		return false
	}
}

// InvocationError is the single error type surfaced by the gateway and the
// orchestrator. Cause keeps the provider's original error for diagnostics.
type InvocationError struct {
	Kind      FailureKind `json:"kind"`
	Model     string      `json:"model,omitzero"`
	Reason    string      `json:"reason,omitzero"`
	Attempted []string    `json:"attempted,omitzero"`
	Exhausted bool        `json:"exhausted,omitzero"`
	Cause     error       `json:"-"`
}

// Error implements the error interface
func (e *InvocationError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Model != "" {
		fmt.Fprintf(&b, " (model %s)", e.Model)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Exhausted {
		fmt.Fprintf(&b, "; all candidates failed %v", e.Attempted)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap allows error unwrapping
func (e *InvocationError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether a different model may succeed where this one failed.
func (e *InvocationError) Retryable() bool {
	return e.Kind.FallbackEligible()
}

// NewInvocationError creates an invocation error of the given kind.
func NewInvocationError(kind FailureKind, model, reason string, cause error) *InvocationError {
	return &InvocationError{
		Kind:   kind,
		Model:  model,
		Reason: reason,
		Cause:  cause,
	}
}

// NewConfigurationError creates a configuration error. These are deploy-time
// defects and abort initialization.
func NewConfigurationError(format string, args ...any) *InvocationError {
	return &InvocationError{
		Kind:   KindConfiguration,
		Reason: fmt.Sprintf(format, args...),
	}
}

// KindOf extracts the failure kind from err, or KindUnknown.
func KindOf(err error) FailureKind {
	var invErr *InvocationError
	if errors.As(err, &invErr) {
		return invErr.Kind
	}
	return KindUnknown
}

// IsConfigurationError reports whether err is a configuration error.
func IsConfigurationError(err error) bool {
	var invErr *InvocationError
	return errors.As(err, &invErr) && invErr.Kind == KindConfiguration
}

// ProviderError is the neutral shape provider adapters translate SDK errors
// into before classification.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Type       string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error (status %d, code %s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents validation errors (4xx)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents resource not found errors (404)
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeRateLimit represents rate limiting errors (429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeProvider represents provider-specific errors (502/503)
	ErrorTypeProvider ErrorType = "provider"
	// ErrorTypeTimeout represents timeout errors (504)
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInternal represents internal server errors (500)
	ErrorTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitzero"`
	StatusCode int       `json:"-"`
	Retryable  bool      `json:"retryable"`
	Attempted  []string  `json:"attempted,omitzero"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows error unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetStatusCode returns the HTTP status code for the error
func (e *AppError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeProvider:
		return http.StatusBadGateway
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// FromInvocationError maps an invocation failure onto the HTTP-facing error.
func FromInvocationError(err *InvocationError) *AppError {
	message := string(err.Kind)
	if err.Reason != "" {
		message += ": " + err.Reason
	}

	appErr := &AppError{
		Message:   message,
		Code:      strings.ToUpper(string(err.Kind)),
		Attempted: err.Attempted,
		Cause:     err.Cause,
	}

	switch err.Kind {
	case KindRateLimited:
		appErr.Type = ErrorTypeRateLimit
		appErr.StatusCode = http.StatusTooManyRequests
		appErr.Retryable = true
	case KindRequestTooLarge:
		appErr.Type = ErrorTypeValidation
		appErr.StatusCode = http.StatusRequestEntityTooLarge
	case KindInvalidInput, KindContextTooLong:
		appErr.Type = ErrorTypeValidation
		appErr.StatusCode = http.StatusBadRequest
	case KindTimeout:
		appErr.Type = ErrorTypeTimeout
		appErr.StatusCode = http.StatusGatewayTimeout
		appErr.Retryable = true
	case KindModelUnavailable, KindQuotaExceeded, KindUnknown:
		appErr.Type = ErrorTypeProvider
		appErr.StatusCode = http.StatusBadGateway
		appErr.Retryable = true
	default:
		appErr.Type = ErrorTypeInternal
		appErr.StatusCode = http.StatusInternalServerError
	}

	return appErr
}

// SanitizeError sanitizes an error for external consumption
func SanitizeError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Type:       appErr.Type,
			Message:    appErr.Message,
			Code:       appErr.Code,
			StatusCode: appErr.GetStatusCode(),
			Retryable:  appErr.Retryable,
			Attempted:  appErr.Attempted,
		}
	}

	var invErr *InvocationError
	if errors.As(err, &invErr) {
		return SanitizeError(FromInvocationError(invErr))
	}

	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    "internal server error",
		StatusCode: http.StatusInternalServerError,
	}
}
