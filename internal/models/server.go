package models

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port           string `json:"port,omitzero" yaml:"port"`
	AllowedOrigins string `json:"allowed_origins,omitzero" yaml:"allowed_origins"` // CORS origins, "*" disables credentials
	Environment    string `json:"environment,omitzero" yaml:"environment"`         // "production" turns off pprof and stack traces
	LogLevel       string `json:"log_level,omitzero" yaml:"log_level"`
}

// HTTPRateLimitConfig is the coarse per-client limiter in front of all
// routes. Per-user tier limits are enforced by the orchestrator.
type HTTPRateLimitConfig struct {
	Max        int
	Expiration time.Duration
	KeyFunc    func(*fiber.Ctx) string
}

// TimeoutConfig bounds a whole HTTP request.
type TimeoutConfig struct {
	Timeout time.Duration
}
