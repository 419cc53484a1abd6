package models

// FallbackGraph maps a model to the ordered substitutes tried after it fails.
// It must be acyclic.
type FallbackGraph map[string][]string

// InvocationConfig holds gateway and orchestrator timing policy.
type InvocationConfig struct {
	TimeoutMs           int `json:"timeout_ms,omitzero" yaml:"timeout_ms,omitempty"`                         // Per-candidate provider timeout
	MaxAttemptsPerModel int `json:"max_attempts_per_model,omitzero" yaml:"max_attempts_per_model,omitempty"` // Same-model attempts on Timeout/Unknown
	RetryBackoffMs      int `json:"retry_backoff_ms,omitzero" yaml:"retry_backoff_ms,omitempty"`             // Base delay between same-model attempts
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool `json:"enabled,omitzero" yaml:"enabled,omitempty"`
	FailureThreshold int  `json:"failure_threshold,omitzero" yaml:"failure_threshold,omitempty"` // Number of failures before opening circuit
	SuccessThreshold int  `json:"success_threshold,omitzero" yaml:"success_threshold,omitempty"` // Number of successes to close circuit
	TimeoutMs        int  `json:"timeout_ms,omitzero" yaml:"timeout_ms,omitempty"`               // Time an open circuit waits before half-opening
}
