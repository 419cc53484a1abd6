package providers

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/Egham-7/adaptive-tiers/internal/models"
	"github.com/Egham-7/adaptive-tiers/internal/utils"
	"github.com/Egham-7/adaptive-tiers/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Provider performs one raw completion call. API failures are returned as
// *models.ProviderError; context errors pass through unchanged.
type Provider interface {
	Complete(ctx context.Context, model string, prompt models.Prompt) (*models.Completion, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, model string, prompt models.Prompt) (*models.Completion, error)

func (f ProviderFunc) Complete(ctx context.Context, model string, prompt models.Prompt) (*models.Completion, error) {
	return f(ctx, model, prompt)
}

// Factory builds a provider from its configuration.
type Factory func(cfg models.ProviderConfig) (Provider, error)

// DefaultFactories are the SDK-backed provider constructors.
func DefaultFactories() map[models.ProviderType]Factory {
	return map[models.ProviderType]Factory{
		models.ProviderOpenAI:    func(cfg models.ProviderConfig) (Provider, error) { return NewOpenAI(cfg) },
		models.ProviderAnthropic: func(cfg models.ProviderConfig) (Provider, error) { return NewAnthropic(cfg) },
		models.ProviderGemini:    func(cfg models.ProviderConfig) (Provider, error) { return NewGemini(cfg) },
	}
}

type route struct {
	prefix   string
	provider models.ProviderType
}

// Router dispatches a model to the provider whose configured prefix matches
// it. Provider clients are built lazily and reused.
type Router struct {
	configs   map[models.ProviderType]models.ProviderConfig
	factories map[models.ProviderType]Factory
	routes    []route
	cache     *clientcache.Cache[models.ProviderType, Provider]
}

// NewRouter creates a router over the configured providers. A nil factories
// map uses DefaultFactories.
func NewRouter(configs map[models.ProviderType]models.ProviderConfig, factories map[models.ProviderType]Factory) (*Router, error) {
	if factories == nil {
		factories = DefaultFactories()
	}

	r := &Router{
		configs:   make(map[models.ProviderType]models.ProviderConfig, len(configs)),
		factories: factories,
		cache:     clientcache.NewCache[models.ProviderType, Provider](),
	}

	for providerType, cfg := range configs {
		if _, ok := factories[providerType]; !ok {
			return nil, models.NewConfigurationError("unsupported provider %q", providerType)
		}
		if cfg.APIKey == "" {
			fiberlog.Warnf("Provider %s has no API key configured, skipping", providerType)
			continue
		}
		prefixes := cfg.ModelPrefixes
		if len(prefixes) == 0 {
			prefixes = models.DefaultModelPrefixes(providerType)
		}
		for _, prefix := range prefixes {
			r.routes = append(r.routes, route{prefix: prefix, provider: providerType})
		}
		r.configs[providerType] = cfg
	}

	// Longest prefix wins.
	sort.SliceStable(r.routes, func(i, j int) bool {
		return len(r.routes[i].prefix) > len(r.routes[j].prefix)
	})

	return r, nil
}

// ProviderFor returns the provider type serving model.
func (r *Router) ProviderFor(model string) (models.ProviderType, bool) {
	providerType, _, ok := r.resolve(model)
	return providerType, ok
}

// resolve maps a catalog model id to a provider and the model name sent
// upstream. "provider:model" ids bypass prefix routing.
func (r *Router) resolve(model string) (models.ProviderType, string, bool) {
	if utils.IsQualifiedModel(model) {
		name, upstream, err := utils.ParseProviderModel(model)
		if err != nil {
			return "", "", false
		}
		providerType := models.ProviderType(name)
		if _, ok := r.configs[providerType]; !ok {
			return "", "", false
		}
		return providerType, upstream, true
	}

	for _, rt := range r.routes {
		if strings.HasPrefix(model, rt.prefix) {
			return rt.provider, model, true
		}
	}
	return "", "", false
}

// Validate checks that every model has a configured provider.
func (r *Router) Validate(modelIDs []string) error {
	var missing []string
	for _, model := range modelIDs {
		if _, ok := r.ProviderFor(model); !ok {
			missing = append(missing, model)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return models.NewConfigurationError("no provider configured for models: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (r *Router) Complete(ctx context.Context, model string, prompt models.Prompt) (*models.Completion, error) {
	providerType, upstream, ok := r.resolve(model)
	if !ok {
		return nil, models.NewInvocationError(models.KindModelUnavailable, model, "no provider configured for model", nil)
	}

	provider, err := r.cache.GetOrCreate(providerType, func() (Provider, error) {
		fiberlog.Debugf("Creating %s provider client", providerType)
		return r.factories[providerType](r.configs[providerType])
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", providerType, err)
	}

	completion, err := provider.Complete(ctx, upstream, prompt)
	if completion != nil {
		completion.Model = model
	}
	return completion, err
}
