package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort                = "8080"
	defaultTimeZone            = "Asia/Tokyo"
	defaultInvocationTimeout   = 60 * time.Second
	defaultMaxAttemptsPerModel = 1
	defaultRetryBackoff        = 500 * time.Millisecond
)

// Config represents the complete application configuration
type Config struct {
	Server         models.ServerConfig                           `yaml:"server"`
	Tiers          map[models.Tier]models.TierConfig             `yaml:"tiers"`
	Fallbacks      models.FallbackGraph                          `yaml:"fallbacks"`
	Pricing        map[string]models.ModelPrice                  `yaml:"pricing"`
	Invocation     models.InvocationConfig                       `yaml:"invocation"`
	Usage          models.UsageConfig                            `yaml:"usage"`
	RateLimiter    models.RateLimiterConfig                      `yaml:"rate_limiter"`
	Providers      map[models.ProviderType]models.ProviderConfig `yaml:"providers"`
	CircuitBreaker models.CircuitBreakerConfig                   `yaml:"circuit_breaker"`
	Telemetry      models.TelemetryConfig                        `yaml:"telemetry"`
	Database       *models.DatabaseConfig                        `yaml:"database,omitempty"`
	Redis          *models.RedisConfig                           `yaml:"redis,omitempty"`
}

// LoadFromFile loads configuration from a YAML file with environment variable substitution
func LoadFromFile(configPath string) (*Config, error) {
	cleanPath := filepath.Clean(configPath)

	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid config path: path traversal not allowed")
	}

	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, substituting environment variables and
// filling defaults for omitted sections.
func Parse(data []byte) (*Config, error) {
	content := substituteEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Normalize provider map keys to lowercase for case-insensitive lookups
	if config.Providers != nil {
		normalized := make(map[models.ProviderType]models.ProviderConfig, len(config.Providers))
		for key, value := range config.Providers {
			normalized[models.ProviderType(strings.ToLower(string(key)))] = value
		}
		config.Providers = normalized
	}

	config.applyDefaults()
	return &config, nil
}

// LoadEnvFiles loads environment variables from .env files in order of precedence
// Loads files in the order provided (first has highest priority)
func LoadEnvFiles(envFiles []string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err == nil {
				fmt.Printf("Loaded environment variables from %s\n", envFile)
			}
		}
	}
}

// New creates a new Config instance by loading from the specified config file path
func New(configPath string) (*Config, error) {
	return LoadFromFile(configPath)
}

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variables
func substituteEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

	return re.ReplaceAllStringFunc(content, func(match string) string {
		submatches := re.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""

		if len(submatches) > 2 && submatches[2] != "" {
			defaultValue = strings.TrimPrefix(submatches[2], "-")
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// applyDefaults fills omitted sections. Tier, fallback and pricing tables are
// replaced wholesale when present in the file, never merged.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Server.Port == "" {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.AllowedOrigins == "" {
		c.Server.AllowedOrigins = defaults.Server.AllowedOrigins
	}
	if c.Server.Environment == "" {
		c.Server.Environment = defaults.Server.Environment
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaults.Server.LogLevel
	}
	if len(c.Tiers) == 0 {
		c.Tiers = defaults.Tiers
	}
	if c.Fallbacks == nil {
		c.Fallbacks = defaults.Fallbacks
	}
	if c.Pricing == nil {
		c.Pricing = defaults.Pricing
	}
	if c.Invocation.TimeoutMs <= 0 {
		c.Invocation.TimeoutMs = defaults.Invocation.TimeoutMs
	}
	if c.Invocation.MaxAttemptsPerModel <= 0 {
		c.Invocation.MaxAttemptsPerModel = defaults.Invocation.MaxAttemptsPerModel
	}
	if c.Invocation.RetryBackoffMs <= 0 {
		c.Invocation.RetryBackoffMs = defaults.Invocation.RetryBackoffMs
	}
	if c.Usage.Backend == "" {
		c.Usage.Backend = defaults.Usage.Backend
	}
	if c.Usage.TimeZone == "" {
		c.Usage.TimeZone = defaults.Usage.TimeZone
	}
	if c.RateLimiter.Backend == "" {
		c.RateLimiter.Backend = defaults.RateLimiter.Backend
	}
	if c.CircuitBreaker.FailureThreshold <= 0 {
		c.CircuitBreaker.FailureThreshold = defaults.CircuitBreaker.FailureThreshold
	}
	if c.CircuitBreaker.SuccessThreshold <= 0 {
		c.CircuitBreaker.SuccessThreshold = defaults.CircuitBreaker.SuccessThreshold
	}
	if c.CircuitBreaker.TimeoutMs <= 0 {
		c.CircuitBreaker.TimeoutMs = defaults.CircuitBreaker.TimeoutMs
	}
}

// GetNormalizedLogLevel returns the log level in lowercase for consistent comparison
func (c *Config) GetNormalizedLogLevel() string {
	return strings.ToLower(c.Server.LogLevel)
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// InvocationTimeout is the per-candidate provider timeout.
func (c *Config) InvocationTimeout() time.Duration {
	if c.Invocation.TimeoutMs <= 0 {
		return defaultInvocationTimeout
	}
	return time.Duration(c.Invocation.TimeoutMs) * time.Millisecond
}

// RetryBackoff is the base delay between same-model attempts.
func (c *Config) RetryBackoff() time.Duration {
	if c.Invocation.RetryBackoffMs <= 0 {
		return defaultRetryBackoff
	}
	return time.Duration(c.Invocation.RetryBackoffMs) * time.Millisecond
}

// Location returns the time zone that defines usage day boundaries.
func (c *Config) Location() (*time.Location, error) {
	zone := c.Usage.TimeZone
	if zone == "" {
		zone = defaultTimeZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("invalid usage timezone %q: %w", zone, err)
	}
	return loc, nil
}

// GetProviderConfig returns the configuration for a specific provider
func (c *Config) GetProviderConfig(provider models.ProviderType) (models.ProviderConfig, bool) {
	cfg, exists := c.Providers[models.ProviderType(strings.ToLower(string(provider)))]
	return cfg, exists
}

// Validate checks if all required configuration values are set
func (c *Config) Validate() error {
	var missing []string
	var invalid []string

	if c.Server.Port == "" {
		missing = append(missing, "server.port")
	}
	if c.Server.AllowedOrigins == "" {
		missing = append(missing, "server.allowed_origins")
	}
	if len(c.Tiers) == 0 {
		missing = append(missing, "tiers")
	}

	switch c.Usage.Backend {
	case models.UsageBackendMemory:
	case models.UsageBackendRedis:
		if c.Redis == nil || c.Redis.URL == "" {
			missing = append(missing, "redis.url")
		}
	case models.UsageBackendDatabase:
		if c.Database == nil {
			missing = append(missing, "database")
		}
	default:
		invalid = append(invalid, fmt.Sprintf("usage.backend=%q", c.Usage.Backend))
	}

	switch c.RateLimiter.Backend {
	case models.RateLimiterBackendLocal:
	case models.RateLimiterBackendRedis:
		if c.Redis == nil || c.Redis.URL == "" {
			missing = append(missing, "redis.url")
		}
	default:
		invalid = append(invalid, fmt.Sprintf("rate_limiter.backend=%q", c.RateLimiter.Backend))
	}

	if c.CircuitBreaker.Enabled && (c.Redis == nil || c.Redis.URL == "") {
		missing = append(missing, "redis.url")
	}
	if c.Telemetry.Database && c.Database == nil {
		missing = append(missing, "database")
	}

	if _, err := c.Location(); err != nil {
		invalid = append(invalid, "usage.timezone="+c.Usage.TimeZone)
	}

	if len(missing) > 0 || len(invalid) > 0 {
		return &ValidationError{MissingFields: dedupe(missing), InvalidFields: invalid}
	}

	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// ValidationError represents configuration validation errors
type ValidationError struct {
	MissingFields []string
	InvalidFields []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.MissingFields) > 0 {
		parts = append(parts, "missing required configuration fields: "+strings.Join(e.MissingFields, ", "))
	}
	if len(e.InvalidFields) > 0 {
		parts = append(parts, "invalid configuration values: "+strings.Join(e.InvalidFields, ", "))
	}
	return strings.Join(parts, "; ")
}
