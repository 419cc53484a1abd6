package utils

import (
	"fmt"
	"strings"
)

// ParseProviderModel parses a model specification in "provider:model" format.
// Examples:
//   - "openai:gpt-4o" -> ("openai", "gpt-4o", nil)
//   - "anthropic:claude-3-5-haiku-latest" -> ("anthropic", "claude-3-5-haiku-latest", nil)
//   - "gpt-4o" -> error (no provider specified)
//   - "openai:" -> error (empty model)
//   - ":gpt-4o" -> error (empty provider)
func ParseProviderModel(modelSpec string) (provider, model string, err error) {
	trimmed := strings.TrimSpace(modelSpec)
	if trimmed == "" {
		return "", "", fmt.Errorf("model specification cannot be empty or whitespace-only")
	}

	parts := strings.Split(trimmed, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("model specification must be in 'provider:model' format with exactly one colon, got '%s'", modelSpec)
	}

	provider = strings.ToLower(strings.TrimSpace(parts[0]))
	model = strings.TrimSpace(parts[1])
	if provider == "" {
		return "", "", fmt.Errorf("provider cannot be empty in model specification '%s'", modelSpec)
	}
	if model == "" {
		return "", "", fmt.Errorf("model cannot be empty in model specification '%s'", modelSpec)
	}

	return provider, model, nil
}

// IsQualifiedModel reports whether modelSpec names its provider explicitly.
func IsQualifiedModel(modelSpec string) bool {
	return strings.Contains(modelSpec, ":")
}
