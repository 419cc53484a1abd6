package builder

import "github.com/Egham-7/adaptive-tiers/internal/models"

func (b *Builder) WithDatabase(cfg models.DatabaseConfig) *Builder {
	b.cfg.Database = &cfg
	return b
}

func (b *Builder) WithRedis(url string) *Builder {
	b.cfg.Redis = &models.RedisConfig{URL: url}
	return b
}

// WithUsage selects the ledger backend and the zone that defines a day.
func (b *Builder) WithUsage(backend models.UsageBackend, timeZone string) *Builder {
	b.cfg.Usage.Backend = backend
	if timeZone != "" {
		b.cfg.Usage.TimeZone = timeZone
	}
	return b
}

func (b *Builder) WithRateLimiter(backend models.RateLimiterBackend) *Builder {
	b.cfg.RateLimiter.Backend = backend
	return b
}

func (b *Builder) WithTelemetry(cfg models.TelemetryConfig) *Builder {
	b.cfg.Telemetry = cfg
	return b
}
