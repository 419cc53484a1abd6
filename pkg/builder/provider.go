package builder

import "github.com/Egham-7/adaptive-tiers/internal/models"

type ProviderBuilder struct {
	apiKey        string
	baseURL       string
	modelPrefixes []string
	headers       map[string]string
}

func NewProviderBuilder(apiKey string) *ProviderBuilder {
	return &ProviderBuilder{
		apiKey:  apiKey,
		headers: make(map[string]string),
	}
}

func (pb *ProviderBuilder) WithBaseURL(url string) *ProviderBuilder {
	pb.baseURL = url
	return pb
}

// WithModelPrefixes replaces the provider type's default routing prefixes.
func (pb *ProviderBuilder) WithModelPrefixes(prefixes ...string) *ProviderBuilder {
	pb.modelPrefixes = append(pb.modelPrefixes, prefixes...)
	return pb
}

func (pb *ProviderBuilder) WithHeader(key, value string) *ProviderBuilder {
	pb.headers[key] = value
	return pb
}

func (pb *ProviderBuilder) Build() models.ProviderConfig {
	return models.ProviderConfig{
		APIKey:        pb.apiKey,
		BaseURL:       pb.baseURL,
		ModelPrefixes: pb.modelPrefixes,
		Headers:       pb.headers,
	}
}

func (b *Builder) AddProvider(provider models.ProviderType, cfg models.ProviderConfig) *Builder {
	if b.cfg.Providers == nil {
		b.cfg.Providers = make(map[models.ProviderType]models.ProviderConfig)
	}
	b.cfg.Providers[provider] = cfg
	return b
}

func (b *Builder) AddOpenAIProvider(cfg models.ProviderConfig) *Builder {
	return b.AddProvider(models.ProviderOpenAI, cfg)
}

func (b *Builder) AddAnthropicProvider(cfg models.ProviderConfig) *Builder {
	return b.AddProvider(models.ProviderAnthropic, cfg)
}

func (b *Builder) AddGeminiProvider(cfg models.ProviderConfig) *Builder {
	return b.AddProvider(models.ProviderGemini, cfg)
}
