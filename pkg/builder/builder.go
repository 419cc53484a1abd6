// Package builder provides a fluent interface for assembling a server
// configuration in code instead of YAML.
package builder

import (
	"github.com/Egham-7/adaptive-tiers/internal/config"
	"github.com/Egham-7/adaptive-tiers/internal/models"

	"github.com/gofiber/fiber/v2"
)

type Builder struct {
	cfg             *config.Config
	middlewares     []fiber.Handler
	rateLimitConfig *models.HTTPRateLimitConfig
	timeoutConfig   *models.TimeoutConfig
}

// New starts from the built-in defaults: the free and premium tiers, the
// OpenAI fallback chains and an in-memory ledger.
func New() *Builder {
	return &Builder{
		cfg:         config.Default(),
		middlewares: []fiber.Handler{},
	}
}

func (b *Builder) Build() *config.Config {
	return b.cfg
}

func (b *Builder) GetMiddlewares() []fiber.Handler {
	return b.middlewares
}

func (b *Builder) GetRateLimitConfig() *models.HTTPRateLimitConfig {
	return b.rateLimitConfig
}

func (b *Builder) GetTimeoutConfig() *models.TimeoutConfig {
	return b.timeoutConfig
}
