package models

// ProviderType identifies a model provider SDK.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderGemini    ProviderType = "gemini"
)

// ProviderConfig holds configuration for one LLM provider
type ProviderConfig struct {
	APIKey        string            `yaml:"api_key" json:"api_key,omitzero"`
	BaseURL       string            `yaml:"base_url" json:"base_url,omitzero"`             // Optional custom base URL
	ModelPrefixes []string          `yaml:"model_prefixes" json:"model_prefixes,omitzero"` // Models routed to this provider; defaults per provider type
	Headers       map[string]string `yaml:"headers" json:"headers,omitzero"`               // Optional custom headers
}

// DefaultModelPrefixes returns the model name prefixes a provider serves when
// none are configured.
func DefaultModelPrefixes(provider ProviderType) []string {
	switch provider {
	case ProviderOpenAI:
		return []string{"gpt-", "o1", "o3", "o4", "chatgpt-"}
	case ProviderAnthropic:
		return []string{"claude-"}
	case ProviderGemini:
		return []string{"gemini-", "gemma-"}
	default:
		return nil
	}
}
