package models

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tier is a subscription level. The set of tiers is closed at deploy time.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Capability names used by the invocation core.
const (
	CapabilityCharacterReply   = "characterReply"
	CapabilityEmotionDetect    = "emotionDetect"
	CapabilityScheduleExtract  = "scheduleExtract"
	CapabilityDiary            = "diary"
	CapabilityBig5Analysis     = "big5Analysis"
	CapabilityCharacterDetails = "characterDetails"
)

// Feature flag names.
const (
	FeatureModelOverride           = "modelOverride"
	FeatureVoiceGeneration         = "voiceGeneration"
	FeatureHighQualityAnalysis     = "highQualityAnalysis"
	FeatureAdvancedPersonality     = "advancedPersonality"
	FeatureCustomCharacterCreation = "customCharacterCreation"
)

// Limit is a numeric ceiling. Zero or negative means unlimited; Unlimited is
// the canonical sentinel and the YAML value "unlimited" decodes to it.
type Limit int64

// Unlimited disables a ceiling.
const Unlimited Limit = -1

// IsUnlimited reports whether the limit disables accounting entirely.
func (l Limit) IsUnlimited() bool {
	return l <= 0
}

// Allows reports whether n fits under the limit.
func (l Limit) Allows(n int64) bool {
	return l.IsUnlimited() || n <= int64(l)
}

func (l Limit) String() string {
	if l.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(int64(l), 10)
}

// UnmarshalYAML accepts integers and the literal "unlimited".
func (l *Limit) UnmarshalYAML(value *yaml.Node) error {
	raw := strings.TrimSpace(value.Value)
	if strings.EqualFold(raw, "unlimited") {
		*l = Unlimited
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid limit %q: must be an integer or \"unlimited\"", raw)
	}
	if n < 0 {
		n = int64(Unlimited)
	}
	*l = Limit(n)
	return nil
}

// MarshalYAML writes unlimited limits as the literal "unlimited".
func (l Limit) MarshalYAML() (any, error) {
	if l.IsUnlimited() {
		return "unlimited", nil
	}
	return int64(l), nil
}

// RateLimitPolicy bounds request rate and request size for a tier.
type RateLimitPolicy struct {
	RequestsPerMinute   Limit `json:"requests_per_minute" yaml:"requests_per_minute"`
	MaxTokensPerRequest Limit `json:"max_tokens_per_request" yaml:"max_tokens_per_request"`
}

// FeatureFlags maps feature name to enablement.
type FeatureFlags map[string]bool

// Enabled reports whether the named feature is on. Unknown features are off.
func (f FeatureFlags) Enabled(name string) bool {
	return f[name]
}

// Clone returns a copy callers may mutate freely.
func (f FeatureFlags) Clone() FeatureFlags {
	return maps.Clone(f)
}

// CapabilityModelMap maps capability name to model identifier.
type CapabilityModelMap map[string]string

// GenerationParams tunes the provider call for a tier and capability.
type GenerationParams struct {
	MaxOutputTokens int      `json:"max_output_tokens,omitzero" yaml:"max_output_tokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitzero" yaml:"temperature,omitempty"`
}

// TierConfig is the static definition of one tier.
type TierConfig struct {
	MaxDailyChats Limit                       `json:"max_daily_chats" yaml:"max_daily_chats"`
	Models        CapabilityModelMap          `json:"models" yaml:"models"`
	Features      FeatureFlags                `json:"features,omitzero" yaml:"features,omitempty"`
	RateLimits    RateLimitPolicy             `json:"rate_limits" yaml:"rate_limits"`
	Generation    map[string]GenerationParams `json:"generation,omitzero" yaml:"generation,omitempty"`
}

// ModelPrice is the provider price per 1K tokens in USD.
type ModelPrice struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}
