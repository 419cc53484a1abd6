package builder

import (
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"github.com/gofiber/fiber/v2"
)

func (b *Builder) Port(port string) *Builder {
	b.cfg.Server.Port = port
	return b
}

// AllowedOrigins sets the CORS origin list, comma separated.
func (b *Builder) AllowedOrigins(origins string) *Builder {
	b.cfg.Server.AllowedOrigins = origins
	return b
}

func (b *Builder) Environment(env string) *Builder {
	b.cfg.Server.Environment = env
	return b
}

func (b *Builder) LogLevel(level string) *Builder {
	b.cfg.Server.LogLevel = level
	return b
}

// WithRateLimit replaces the default per-client HTTP limiter. Tier limits
// still apply behind it.
func (b *Builder) WithRateLimit(max int, expiration time.Duration, keyFunc ...func(*fiber.Ctx) string) *Builder {
	cfg := &models.HTTPRateLimitConfig{
		Max:        max,
		Expiration: expiration,
	}
	if len(keyFunc) > 0 {
		cfg.KeyFunc = keyFunc[0]
	}
	b.rateLimitConfig = cfg
	return b
}

// WithTimeout bounds every HTTP request, overriding the X-Request-Timeout
// header handling.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeoutConfig = &models.TimeoutConfig{Timeout: timeout}
	return b
}

// WithMiddleware appends a handler after the built-in middleware chain.
func (b *Builder) WithMiddleware(middleware fiber.Handler) *Builder {
	b.middlewares = append(b.middlewares, middleware)
	return b
}
