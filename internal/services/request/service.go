package request

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the caller's request ID in and ours out.
	RequestIDHeader = "X-Request-ID"
	// requestIDLocalKey is the shared key for storing request ID in fiber locals
	requestIDLocalKey = "request_id"
	// maxRequestIDLength is the maximum allowed length for request IDs
	maxRequestIDLength = 64
)

// BaseService provides common request handling utilities
type BaseService struct{}

// NewBaseService creates a new base request service
func NewBaseService() *BaseService {
	return &BaseService{}
}

// sanitizeRequestID trims a caller-supplied ID and caps its length. IDs with
// control characters are dropped since they end up in log lines.
func (s *BaseService) sanitizeRequestID(reqID string) string {
	sanitized := strings.TrimSpace(reqID)
	if len(sanitized) > maxRequestIDLength {
		sanitized = sanitized[:maxRequestIDLength]
	}
	for _, r := range sanitized {
		if r < 0x20 || r == 0x7f {
			return ""
		}
	}
	return sanitized
}

// GetRequestID returns the request's ID, taking it from locals, then the
// X-Request-ID header, else generating one. The result is cached in locals
// and echoed in the response header.
func (s *BaseService) GetRequestID(c *fiber.Ctx) string {
	if cachedID, ok := c.Locals(requestIDLocalKey).(string); ok && cachedID != "" {
		return cachedID
	}

	requestID := s.sanitizeRequestID(c.Get(RequestIDHeader))
	if requestID == "" {
		requestID = s.GenerateRequestID()
	}

	c.Locals(requestIDLocalKey, requestID)
	c.Set(RequestIDHeader, requestID)
	return requestID
}

// GenerateRequestID creates a new random request ID
func (s *BaseService) GenerateRequestID() string {
	return "req_" + uuid.NewString()
}
