package config

import "github.com/Egham-7/adaptive-tiers/internal/models"

func temperature(v float64) *float64 {
	return &v
}

// Default returns the stock configuration: two tiers on OpenAI models, an
// in-memory ledger and local rate limiting. Provider keys still come from the
// environment.
func Default() *Config {
	return &Config{
		Server: models.ServerConfig{
			Port:           defaultPort,
			AllowedOrigins: "*",
			Environment:    "development",
			LogLevel:       "info",
		},
		Tiers: map[models.Tier]models.TierConfig{
			models.TierFree: {
				MaxDailyChats: models.Unlimited,
				Models: models.CapabilityModelMap{
					models.CapabilityCharacterReply:   "gpt-3.5-turbo",
					models.CapabilityEmotionDetect:    "gpt-3.5-turbo",
					models.CapabilityScheduleExtract:  "gpt-3.5-turbo",
					models.CapabilityDiary:            "gpt-3.5-turbo",
					models.CapabilityBig5Analysis:     "gpt-4o",
					models.CapabilityCharacterDetails: "gpt-4o",
				},
				Features: models.FeatureFlags{
					models.FeatureHighQualityAnalysis:     true,
					models.FeatureAdvancedPersonality:     true,
					models.FeatureVoiceGeneration:         false,
					models.FeatureCustomCharacterCreation: true,
					models.FeatureModelOverride:           false,
				},
				RateLimits: models.RateLimitPolicy{
					RequestsPerMinute:   5,
					MaxTokensPerRequest: 1000,
				},
				Generation: map[string]models.GenerationParams{
					models.CapabilityCharacterReply: {MaxOutputTokens: 400, Temperature: temperature(0.7)},
					models.CapabilityBig5Analysis:   {MaxOutputTokens: 1500, Temperature: temperature(0.5)},
				},
			},
			models.TierPremium: {
				MaxDailyChats: models.Unlimited,
				Models: models.CapabilityModelMap{
					models.CapabilityCharacterReply:   "gpt-4o",
					models.CapabilityEmotionDetect:    "gpt-4o-mini",
					models.CapabilityScheduleExtract:  "gpt-4o-mini",
					models.CapabilityDiary:            "gpt-4o",
					models.CapabilityBig5Analysis:     "gpt-4o",
					models.CapabilityCharacterDetails: "gpt-4o",
				},
				Features: models.FeatureFlags{
					models.FeatureHighQualityAnalysis:     true,
					models.FeatureAdvancedPersonality:     true,
					models.FeatureVoiceGeneration:         true,
					models.FeatureCustomCharacterCreation: true,
					models.FeatureModelOverride:           true,
				},
				RateLimits: models.RateLimitPolicy{
					RequestsPerMinute:   30,
					MaxTokensPerRequest: 4000,
				},
				Generation: map[string]models.GenerationParams{
					models.CapabilityCharacterReply: {MaxOutputTokens: 800, Temperature: temperature(0.8)},
					models.CapabilityBig5Analysis:   {MaxOutputTokens: 3000, Temperature: temperature(0.6)},
				},
			},
		},
		Fallbacks: models.FallbackGraph{
			"gpt-4o":        {"gpt-4o-mini", "gpt-3.5-turbo"},
			"gpt-4o-mini":   {"gpt-3.5-turbo"},
			"gpt-3.5-turbo": {},
		},
		Pricing: map[string]models.ModelPrice{
			"gpt-4o":        {InputPer1K: 0.005, OutputPer1K: 0.015},
			"gpt-4o-mini":   {InputPer1K: 0.00015, OutputPer1K: 0.0006},
			"gpt-3.5-turbo": {InputPer1K: 0.0005, OutputPer1K: 0.0015},
		},
		Invocation: models.InvocationConfig{
			TimeoutMs:           int(defaultInvocationTimeout.Milliseconds()),
			MaxAttemptsPerModel: defaultMaxAttemptsPerModel,
			RetryBackoffMs:      int(defaultRetryBackoff.Milliseconds()),
		},
		Usage: models.UsageConfig{
			Backend:  models.UsageBackendMemory,
			TimeZone: defaultTimeZone,
		},
		RateLimiter: models.RateLimiterConfig{
			Backend: models.RateLimiterBackendLocal,
		},
		Providers: map[models.ProviderType]models.ProviderConfig{},
		CircuitBreaker: models.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 3,
			TimeoutMs:        30000,
		},
		Telemetry: models.TelemetryConfig{
			Prometheus: true,
			Workers:    2,
			BufferSize: 1000,
		},
	}
}
