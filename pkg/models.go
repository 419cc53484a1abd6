// Package pkg re-exports the configuration types embedders need.
package pkg

import "github.com/Egham-7/adaptive-tiers/internal/models"

type (
	ServerConfig         = models.ServerConfig
	ProviderConfig       = models.ProviderConfig
	ProviderType         = models.ProviderType
	Tier                 = models.Tier
	TierConfig           = models.TierConfig
	Limit                = models.Limit
	RateLimitPolicy      = models.RateLimitPolicy
	FeatureFlags         = models.FeatureFlags
	GenerationParams     = models.GenerationParams
	FallbackGraph        = models.FallbackGraph
	ModelPrice           = models.ModelPrice
	InvocationConfig     = models.InvocationConfig
	UsageConfig          = models.UsageConfig
	RateLimiterConfig    = models.RateLimiterConfig
	CircuitBreakerConfig = models.CircuitBreakerConfig
	TelemetryConfig      = models.TelemetryConfig
	DatabaseConfig       = models.DatabaseConfig
	DatabaseType         = models.DatabaseType
	RedisConfig          = models.RedisConfig
	UsageBackend         = models.UsageBackend
	RateLimiterBackend   = models.RateLimiterBackend
	HTTPRateLimitConfig  = models.HTTPRateLimitConfig
	TimeoutConfig        = models.TimeoutConfig
)

const (
	Unlimited = models.Unlimited

	TierFree    = models.TierFree
	TierPremium = models.TierPremium

	PostgreSQL = models.PostgreSQL
	MySQL      = models.MySQL
	SQLite     = models.SQLite
	ClickHouse = models.ClickHouse

	UsageBackendMemory   = models.UsageBackendMemory
	UsageBackendRedis    = models.UsageBackendRedis
	UsageBackendDatabase = models.UsageBackendDatabase

	RateLimiterBackendLocal = models.RateLimiterBackendLocal
	RateLimiterBackendRedis = models.RateLimiterBackendRedis
)
