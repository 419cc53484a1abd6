package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/Egham-7/adaptive-tiers/internal/models"
)

var (
	contextTooLongMarkers = []string{
		"context_length_exceeded",
		"maximum context length",
		"context window",
		"prompt is too long",
		"too many tokens",
		"input token count",
	}
	quotaMarkers = []string{
		"insufficient_quota",
		"quota",
		"resource_exhausted",
		"billing",
		"credit balance",
	}
	unavailableMarkers = []string{
		"model_not_found",
		"not_found_error",
		"does not exist",
		"overloaded",
		"unavailable",
		"server_error",
		"api_error",
	}
	invalidInputMarkers = []string{
		"invalid_request_error",
		"invalid_argument",
		"invalid_value",
		"failed_precondition",
	}
)

// Classify maps a provider or transport error to an invocation failure. It
// never returns nil for a non-nil err.
func Classify(model string, err error) *models.InvocationError {
	var invErr *models.InvocationError
	if errors.As(err, &invErr) {
		out := *invErr
		if out.Model == "" {
			out.Model = model
		}
		return &out
	}

	if errors.Is(err, context.Canceled) {
		return models.NewInvocationError(models.KindTimeout, model, "request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewInvocationError(models.KindTimeout, model, "provider did not respond in time", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.NewInvocationError(models.KindTimeout, model, "provider connection timed out", err)
	}

	var providerErr *models.ProviderError
	if errors.As(err, &providerErr) {
		kind := classifyProviderError(providerErr)
		return models.NewInvocationError(kind, model, providerErr.Message, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return models.NewInvocationError(models.KindModelUnavailable, model, "provider unreachable", err)
	}

	return models.NewInvocationError(models.KindUnknown, model, err.Error(), err)
}

func classifyProviderError(e *models.ProviderError) models.FailureKind {
	text := strings.ToLower(e.Code + " " + e.Type + " " + e.Message)

	switch {
	case containsAny(text, contextTooLongMarkers) || e.StatusCode == http.StatusRequestEntityTooLarge:
		return models.KindContextTooLong
	case e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusGatewayTimeout:
		return models.KindTimeout
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusPaymentRequired:
		return models.KindQuotaExceeded
	case containsAny(text, quotaMarkers):
		return models.KindQuotaExceeded
	case e.StatusCode == http.StatusNotFound:
		return models.KindModelUnavailable
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		// Our credentials for this provider are broken; other providers may work.
		return models.KindModelUnavailable
	case e.StatusCode >= 500:
		return models.KindModelUnavailable
	case e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity:
		return models.KindInvalidInput
	case containsAny(text, unavailableMarkers):
		return models.KindModelUnavailable
	case containsAny(text, invalidInputMarkers):
		return models.KindInvalidInput
	default:
		return models.KindUnknown
	}
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
