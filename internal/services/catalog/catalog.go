package catalog

import (
	"maps"
	"math"
	"slices"
	"sort"

	"github.com/Egham-7/adaptive-tiers/internal/models"
)

// RequiredCapabilities is the capability set every tier must map.
var RequiredCapabilities = []string{
	models.CapabilityCharacterReply,
	models.CapabilityEmotionDetect,
	models.CapabilityScheduleExtract,
	models.CapabilityDiary,
	models.CapabilityBig5Analysis,
	models.CapabilityCharacterDetails,
}

// Catalog is the immutable tier table. All lookups are pure and safe for
// concurrent use.
type Catalog struct {
	tiers   map[models.Tier]models.TierConfig
	pricing map[string]models.ModelPrice
}

// New validates and snapshots the tier table. Every capability in required
// must be mapped for every tier.
func New(tiers map[models.Tier]models.TierConfig, pricing map[string]models.ModelPrice, required []string) (*Catalog, error) {
	if len(tiers) == 0 {
		return nil, models.NewConfigurationError("tier catalog is empty")
	}

	snapshot := make(map[models.Tier]models.TierConfig, len(tiers))
	for tier, cfg := range tiers {
		if tier == "" {
			return nil, models.NewConfigurationError("tier name must not be empty")
		}
		if len(cfg.Models) == 0 {
			return nil, models.NewConfigurationError("tier %q maps no capabilities", tier)
		}
		for capability, model := range cfg.Models {
			if model == "" {
				return nil, models.NewConfigurationError("tier %q capability %q has an empty model", tier, capability)
			}
		}
		for _, capability := range required {
			if _, ok := cfg.Models[capability]; !ok {
				return nil, models.NewConfigurationError("tier %q is missing capability %q", tier, capability)
			}
		}

		snapshot[tier] = models.TierConfig{
			MaxDailyChats: cfg.MaxDailyChats,
			Models:        maps.Clone(cfg.Models),
			Features:      cfg.Features.Clone(),
			RateLimits:    cfg.RateLimits,
			Generation:    maps.Clone(cfg.Generation),
		}
	}

	return &Catalog{
		tiers:   snapshot,
		pricing: maps.Clone(pricing),
	}, nil
}

func (c *Catalog) tier(tier models.Tier) (models.TierConfig, error) {
	cfg, ok := c.tiers[tier]
	if !ok {
		return models.TierConfig{}, models.NewConfigurationError("unknown tier %q", tier)
	}
	return cfg, nil
}

// Describe returns a copy of the tier's full definition.
func (c *Catalog) Describe(tier models.Tier) (models.TierConfig, error) {
	cfg, err := c.tier(tier)
	if err != nil {
		return models.TierConfig{}, err
	}
	return models.TierConfig{
		MaxDailyChats: cfg.MaxDailyChats,
		Models:        maps.Clone(cfg.Models),
		Features:      cfg.Features.Clone(),
		RateLimits:    cfg.RateLimits,
		Generation:    maps.Clone(cfg.Generation),
	}, nil
}

// ModelFor returns the model serving capability on tier.
func (c *Catalog) ModelFor(tier models.Tier, capability string) (string, error) {
	cfg, err := c.tier(tier)
	if err != nil {
		return "", err
	}
	model, ok := cfg.Models[capability]
	if !ok {
		return "", models.NewConfigurationError("tier %q has no model for capability %q", tier, capability)
	}
	return model, nil
}

// FeaturesFor returns a copy of the tier's feature flags.
func (c *Catalog) FeaturesFor(tier models.Tier) (models.FeatureFlags, error) {
	cfg, err := c.tier(tier)
	if err != nil {
		return nil, err
	}
	if cfg.Features == nil {
		return models.FeatureFlags{}, nil
	}
	return cfg.Features.Clone(), nil
}

// RateLimitFor returns the tier's rate limit policy.
func (c *Catalog) RateLimitFor(tier models.Tier) (models.RateLimitPolicy, error) {
	cfg, err := c.tier(tier)
	if err != nil {
		return models.RateLimitPolicy{}, err
	}
	return cfg.RateLimits, nil
}

// DailyChatLimitFor returns the tier's daily chat ceiling.
func (c *Catalog) DailyChatLimitFor(tier models.Tier) (models.Limit, error) {
	cfg, err := c.tier(tier)
	if err != nil {
		return 0, err
	}
	return cfg.MaxDailyChats, nil
}

// GenerationFor returns generation parameters for capability on tier. The
// zero value leaves provider defaults in place.
func (c *Catalog) GenerationFor(tier models.Tier, capability string) models.GenerationParams {
	cfg, ok := c.tiers[tier]
	if !ok {
		return models.GenerationParams{}
	}
	return cfg.Generation[capability]
}

// PriceFor returns the per-1K token price of model.
func (c *Catalog) PriceFor(model string) (models.ModelPrice, bool) {
	price, ok := c.pricing[model]
	return price, ok
}

// EstimateCost returns the cost of a call in micro-USD. Unpriced models cost 0.
func (c *Catalog) EstimateCost(model string, inputTokens, outputTokens int64) int64 {
	price, ok := c.pricing[model]
	if !ok {
		return 0
	}
	// price is USD per 1K tokens; 1 USD = 1e6 micros
	micros := float64(inputTokens)*price.InputPer1K*1000 + float64(outputTokens)*price.OutputPer1K*1000
	return int64(math.Round(micros))
}

// Tiers returns the configured tier names in sorted order.
func (c *Catalog) Tiers() []models.Tier {
	tiers := slices.Collect(maps.Keys(c.tiers))
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	return tiers
}

// Models returns every model referenced by any tier, sorted.
func (c *Catalog) Models() []string {
	seen := make(map[string]struct{})
	for _, cfg := range c.tiers {
		for _, model := range cfg.Models {
			seen[model] = struct{}{}
		}
	}
	out := slices.Collect(maps.Keys(seen))
	slices.Sort(out)
	return out
}
