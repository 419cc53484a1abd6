package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDisabled  = "disabled"
)

// Pinger is a dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	redisClient *redis.Client
	db          Pinger
}

// NewHealthHandler creates a new health check handler. Either dependency may
// be nil when not configured.
func NewHealthHandler(redisClient *redis.Client, db Pinger) *HealthHandler {
	return &HealthHandler{
		redisClient: redisClient,
		db:          db,
	}
}

// HealthCheck returns the health status of the service and its dependencies
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	redisStatus := h.checkRedis(c.UserContext())
	dbStatus := h.checkDatabase(c.UserContext())

	overallStatus := statusHealthy
	statusCode := fiber.StatusOK
	if redisStatus == statusUnhealthy || dbStatus == statusUnhealthy {
		overallStatus = "degraded"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": fiber.Map{
			"redis":    redisStatus,
			"database": dbStatus,
		},
	})
}

func (h *HealthHandler) checkRedis(ctx context.Context) string {
	if h.redisClient == nil {
		return statusDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		return statusUnhealthy
	}
	return statusHealthy
}

func (h *HealthHandler) checkDatabase(ctx context.Context) string {
	if h.db == nil {
		return statusDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		return statusUnhealthy
	}
	return statusHealthy
}
