package ratelimit

import (
	"context"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// PolicySource resolves a tier's rate limit policy.
type PolicySource interface {
	RateLimitFor(tier models.Tier) (models.RateLimitPolicy, error)
}

// BucketStore holds one token bucket per key. Take removes one token if
// available. capacity is the bucket size and refillPerSecond the continuous
// refill rate.
type BucketStore interface {
	Take(ctx context.Context, key string, capacity int64, refillPerSecond float64) (bool, error)
}

// Limiter enforces per-tier request rate and request size limits.
type Limiter struct {
	policies PolicySource
	store    BucketStore
}

// New creates a limiter over store.
func New(policies PolicySource, store BucketStore) *Limiter {
	return &Limiter{policies: policies, store: store}
}

// CheckAndConsume reports whether userID may make a request now and consumes
// one token if so. Unlimited tiers never touch the store. Store failures fail
// open; only configuration errors are returned.
func (l *Limiter) CheckAndConsume(ctx context.Context, tier models.Tier, userID string) (bool, error) {
	policy, err := l.policies.RateLimitFor(tier)
	if err != nil {
		return false, err
	}

	rpm := policy.RequestsPerMinute
	if rpm.IsUnlimited() {
		return true, nil
	}

	allowed, err := l.store.Take(ctx, bucketKey(tier, userID), int64(rpm), float64(rpm)/60)
	if err != nil {
		fiberlog.Warnf("Rate limiter store failed for tier %s, allowing request: %v", tier, err)
		return true, nil
	}
	return allowed, nil
}

// CheckTokenBudget reports whether a request of requestedTokens fits the
// tier's per-request budget.
func (l *Limiter) CheckTokenBudget(tier models.Tier, requestedTokens int64) (bool, error) {
	policy, err := l.policies.RateLimitFor(tier)
	if err != nil {
		return false, err
	}
	return policy.MaxTokensPerRequest.Allows(requestedTokens), nil
}

func bucketKey(tier models.Tier, userID string) string {
	return string(tier) + ":" + userID
}
