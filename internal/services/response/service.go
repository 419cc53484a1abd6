package response

import (
	"strconv"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// retryAfterSeconds is advertised on rate-limited responses; buckets refill
// continuously so any client backoff of this order succeeds.
const retryAfterSeconds = 60

// BaseService provides common HTTP response utilities
type BaseService struct{}

// NewBaseService creates a new base response service
func NewBaseService() *BaseService {
	return &BaseService{}
}

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitzero"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Message   string   `json:"message"`
	Type      string   `json:"type"`
	Code      string   `json:"code,omitzero"`
	Retryable bool     `json:"retryable"`
	Attempted []string `json:"attempted,omitzero"`
}

// Error sends an error response with specified status, type, and code
func (s *BaseService) Error(c *fiber.Ctx, status int, message, errorType, code string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Code:    code,
		},
	})
}

// FromError sanitizes err and sends it with the status its type maps to.
// Internal errors are logged with their cause and returned without it.
func (s *BaseService) FromError(c *fiber.Ctx, err error, requestID string) error {
	appErr := models.SanitizeError(err)
	status := appErr.GetStatusCode()

	if status >= fiber.StatusInternalServerError {
		fiberlog.Errorf("[%s] %v", requestID, err)
	} else {
		fiberlog.Debugf("[%s] %v", requestID, err)
	}

	if appErr.Type == models.ErrorTypeRateLimit {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds))
	}

	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Message:   appErr.Message,
			Type:      string(appErr.Type),
			Code:      appErr.Code,
			Retryable: appErr.Retryable,
			Attempted: appErr.Attempted,
		},
		RequestID: requestID,
	})
}

// BadRequest sends a 400 validation error.
func (s *BaseService) BadRequest(c *fiber.Ctx, message, requestID string) error {
	return s.FromError(c, models.NewValidationError(message, nil), requestID)
}

// Success sends a 200 OK response with the provided data
func (s *BaseService) Success(c *fiber.Ctx, data any) error {
	return c.JSON(data)
}
