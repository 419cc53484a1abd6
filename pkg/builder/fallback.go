package builder

import "github.com/Egham-7/adaptive-tiers/internal/models"

// WithTier adds or replaces one tier definition.
func (b *Builder) WithTier(tier models.Tier, cfg models.TierConfig) *Builder {
	if b.cfg.Tiers == nil {
		b.cfg.Tiers = make(map[models.Tier]models.TierConfig)
	}
	b.cfg.Tiers[tier] = cfg
	return b
}

// WithFallbacks sets the ordered substitutes for model. An empty chain means
// the model has no fallback.
func (b *Builder) WithFallbacks(model string, chain ...string) *Builder {
	if b.cfg.Fallbacks == nil {
		b.cfg.Fallbacks = make(models.FallbackGraph)
	}
	b.cfg.Fallbacks[model] = chain
	return b
}

func (b *Builder) WithPricing(model string, price models.ModelPrice) *Builder {
	if b.cfg.Pricing == nil {
		b.cfg.Pricing = make(map[string]models.ModelPrice)
	}
	b.cfg.Pricing[model] = price
	return b
}

func (b *Builder) WithInvocation(cfg models.InvocationConfig) *Builder {
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = b.cfg.Invocation.TimeoutMs
	}
	if cfg.MaxAttemptsPerModel == 0 {
		cfg.MaxAttemptsPerModel = 1
	}
	if cfg.RetryBackoffMs == 0 {
		cfg.RetryBackoffMs = b.cfg.Invocation.RetryBackoffMs
	}
	b.cfg.Invocation = cfg
	return b
}

func (b *Builder) WithCircuitBreaker(cfg models.CircuitBreakerConfig) *Builder {
	cfg.Enabled = true
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 3
	}
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = 30000
	}
	b.cfg.CircuitBreaker = cfg
	return b
}
