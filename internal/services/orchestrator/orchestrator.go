package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/models"
	"github.com/Egham-7/adaptive-tiers/internal/services/gateway"
	"github.com/Egham-7/adaptive-tiers/internal/services/usage"
	"github.com/Egham-7/adaptive-tiers/internal/utils"

	"github.com/cenkalti/backoff/v4"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const (
	defaultTimeout      = 60 * time.Second
	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 10 * time.Second

	// ReasonDailyChatLimit marks a RateLimited failure caused by the daily
	// chat ceiling rather than the per-minute bucket.
	ReasonDailyChatLimit = "daily_chat_limit"
)

// Catalog is the tier table as seen by the orchestrator.
type Catalog interface {
	ModelFor(tier models.Tier, capability string) (string, error)
	FeaturesFor(tier models.Tier) (models.FeatureFlags, error)
	DailyChatLimitFor(tier models.Tier) (models.Limit, error)
	GenerationFor(tier models.Tier, capability string) models.GenerationParams
	EstimateCost(model string, inputTokens, outputTokens int64) int64
}

// Fallbacks yields the ordered candidate models for a resolved model.
type Fallbacks interface {
	Candidates(model string) []string
}

// RateLimiter admits requests per tier and user.
type RateLimiter interface {
	CheckAndConsume(ctx context.Context, tier models.Tier, userID string) (bool, error)
	CheckTokenBudget(tier models.Tier, requestedTokens int64) (bool, error)
}

// Invoker performs a single provider call. Failures are
// *models.InvocationError.
type Invoker interface {
	Invoke(ctx context.Context, model string, prompt models.Prompt, timeout time.Duration) (*models.Completion, error)
}

// Config is the orchestrator's timing policy.
type Config struct {
	Timeout             time.Duration // Per provider call
	MaxAttemptsPerModel int           // Same-model attempts on Timeout and Unknown
	RetryBackoff        time.Duration // Base delay, doubled per retry
}

// ConfigFrom converts the YAML invocation section.
func ConfigFrom(cfg models.InvocationConfig) Config {
	return Config{
		Timeout:             time.Duration(cfg.TimeoutMs) * time.Millisecond,
		MaxAttemptsPerModel: cfg.MaxAttemptsPerModel,
		RetryBackoff:        time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
	}
}

// Orchestrator runs the tiered invocation pipeline: resolve, admit, invoke
// with fallback, record usage.
type Orchestrator struct {
	catalog   Catalog
	fallbacks Fallbacks
	limiter   RateLimiter
	invoker   Invoker
	ledger    usage.Ledger
	clock     *usage.Clock
	cfg       Config
	// newBackOff builds the same-model retry schedule for one call.
	newBackOff func() backoff.BackOff
}

// New wires an orchestrator. All collaborators are required.
func New(catalog Catalog, fallbacks Fallbacks, limiter RateLimiter, invoker Invoker, ledger usage.Ledger, clock *usage.Clock, cfg Config) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttemptsPerModel <= 0 {
		cfg.MaxAttemptsPerModel = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	o := &Orchestrator{
		catalog:   catalog,
		fallbacks: fallbacks,
		limiter:   limiter,
		invoker:   invoker,
		ledger:    ledger,
		clock:     clock,
		cfg:       cfg,
	}
	o.newBackOff = o.exponentialBackOff
	return o
}

// Execute serves one request. On failure the error is always a
// *models.InvocationError; Exhausted is set when every candidate failed.
func (o *Orchestrator) Execute(ctx context.Context, req models.InvocationRequest) (*models.InvocationResult, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	requestID := req.RequestID

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	// Resolving
	requested, err := o.resolveModel(req)
	if err != nil {
		return nil, err
	}

	// RateChecking
	allowed, err := o.limiter.CheckAndConsume(ctx, req.Tier, req.UserID)
	if err != nil {
		return nil, asInvalidTier(err)
	}
	if !allowed {
		fiberlog.Infof("[%s] Rate limited user %s on tier %s", requestID, req.UserID, req.Tier)
		return nil, models.NewInvocationError(models.KindRateLimited, "", "requests per minute exceeded", nil)
	}

	estimated := int64(req.EstimatedTokens)
	if estimated <= 0 {
		estimated = utils.EstimateTokens(req.Prompt.Text())
	}
	fits, err := o.limiter.CheckTokenBudget(req.Tier, estimated)
	if err != nil {
		return nil, asInvalidTier(err)
	}
	if !fits {
		fiberlog.Infof("[%s] Request of ~%d tokens exceeds tier %s budget", requestID, estimated, req.Tier)
		return nil, models.NewInvocationError(models.KindRequestTooLarge, "", "estimated tokens exceed the tier's per-request budget", nil)
	}

	if err := o.checkDailyLimit(ctx, req); err != nil {
		return nil, err
	}

	candidates := o.fallbacks.Candidates(requested)
	prompt := o.applyGeneration(req)
	callCtx := gateway.WithMeta(ctx, models.InvocationMeta{
		RequestID:  requestID,
		UserID:     req.UserID,
		Tier:       req.Tier,
		Capability: req.Capability,
	})

	// Invoking
	attempted := make([]string, 0, len(candidates))
	var last *models.InvocationError
	for i, model := range candidates {
		if ctx.Err() != nil {
			return nil, cancelled(ctx, attempted, last)
		}
		attempted = append(attempted, model)

		completion, invErr := o.invokeWithRetry(callCtx, requestID, model, prompt)
		if invErr == nil {
			return o.succeed(ctx, req, requested, model, completion, attempted), nil
		}
		last = invErr

		if ctx.Err() != nil {
			return nil, cancelled(ctx, attempted, last)
		}
		if !invErr.Retryable() {
			fiberlog.Infof("[%s] Aborting on %s from %s", requestID, invErr.Kind, model)
			return nil, &models.InvocationError{
				Kind:      invErr.Kind,
				Model:     model,
				Reason:    invErr.Reason,
				Attempted: attempted,
				Cause:     invErr,
			}
		}
		if i < len(candidates)-1 {
			fiberlog.Warnf("[%s] Model %s failed with %s, falling back to %s", requestID, model, invErr.Kind, candidates[i+1])
		}
	}

	fiberlog.Errorf("[%s] All candidates failed %v, last failure %s", requestID, attempted, last.Kind)
	return nil, &models.InvocationError{
		Kind:      last.Kind,
		Model:     last.Model,
		Reason:    last.Reason,
		Attempted: attempted,
		Exhausted: true,
		Cause:     last,
	}
}

func validateRequest(req models.InvocationRequest) error {
	var missing []string
	if strings.TrimSpace(req.UserID) == "" {
		missing = append(missing, "user_id")
	}
	if req.Tier == "" {
		missing = append(missing, "tier")
	}
	if req.Capability == "" {
		missing = append(missing, "capability")
	}
	if strings.TrimSpace(req.Prompt.User) == "" {
		missing = append(missing, "prompt")
	}
	if len(missing) > 0 {
		return models.NewInvocationError(models.KindInvalidInput, "", "missing required fields: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

func (o *Orchestrator) resolveModel(req models.InvocationRequest) (string, error) {
	model, err := o.catalog.ModelFor(req.Tier, req.Capability)
	if err != nil {
		return "", asInvalidTier(err)
	}
	if req.ModelOverride == "" {
		return model, nil
	}

	features, err := o.catalog.FeaturesFor(req.Tier)
	if err != nil {
		return "", asInvalidTier(err)
	}
	if !features.Enabled(models.FeatureModelOverride) {
		fiberlog.Warnf("[%s] Tier %s does not allow model override, ignoring %q", req.RequestID, req.Tier, req.ModelOverride)
		return model, nil
	}
	return req.ModelOverride, nil
}

// asInvalidTier turns catalog lookup misses into caller errors. The table was
// validated at startup, so a miss here means the request named an unknown
// tier or capability.
func asInvalidTier(err error) error {
	var invErr *models.InvocationError
	if errors.As(err, &invErr) && invErr.Kind == models.KindConfiguration {
		return models.NewInvocationError(models.KindInvalidInput, "", invErr.Reason, err)
	}
	return err
}

// checkDailyLimit enforces the tier's daily chat ceiling. Ledger read errors
// fail open. The ceiling is soft: requests already in flight are counted only
// when they succeed, so concurrent requests can overshoot it by their number.
func (o *Orchestrator) checkDailyLimit(ctx context.Context, req models.InvocationRequest) error {
	limit, err := o.catalog.DailyChatLimitFor(req.Tier)
	if err != nil {
		return asInvalidTier(err)
	}
	if limit.IsUnlimited() {
		return nil
	}

	record, err := o.ledger.Get(ctx, req.UserID, o.clock.Today())
	if err != nil {
		fiberlog.Warnf("[%s] Failed to read usage for %s, skipping daily limit: %v", req.RequestID, req.UserID, err)
		return nil
	}
	if !limit.Allows(record.ChatCount + 1) {
		fiberlog.Infof("[%s] User %s reached daily chat limit %s", req.RequestID, req.UserID, limit)
		return models.NewInvocationError(models.KindRateLimited, "", ReasonDailyChatLimit, nil)
	}
	return nil
}

// applyGeneration fills the tier's generation defaults and caps the output
// length at the tier's maximum.
func (o *Orchestrator) applyGeneration(req models.InvocationRequest) models.Prompt {
	prompt := req.Prompt
	params := o.catalog.GenerationFor(req.Tier, req.Capability)
	if params.MaxOutputTokens > 0 && (prompt.MaxOutputTokens <= 0 || prompt.MaxOutputTokens > params.MaxOutputTokens) {
		prompt.MaxOutputTokens = params.MaxOutputTokens
	}
	if prompt.Temperature == nil && params.Temperature != nil {
		t := *params.Temperature
		prompt.Temperature = &t
	}
	return prompt
}

// invokeWithRetry calls one model, repeating Timeout and Unknown failures up
// to MaxAttemptsPerModel times.
func (o *Orchestrator) invokeWithRetry(ctx context.Context, requestID, model string, prompt models.Prompt) (*models.Completion, *models.InvocationError) {
	var (
		completion *models.Completion
		last       *models.InvocationError
		attempt    int
	)

	op := func() error {
		attempt++
		c, err := o.invoker.Invoke(ctx, model, prompt, o.cfg.Timeout)
		if err == nil {
			completion = c
			return nil
		}
		last = gateway.Classify(model, err)
		if !sameModelRetryable(last.Kind) || ctx.Err() != nil {
			return backoff.Permanent(last)
		}
		return last
	}
	notify := func(_ error, next time.Duration) {
		fiberlog.Debugf("[%s] Retrying %s after %s in %s (attempt %d/%d)", requestID, model, last.Kind, next, attempt+1, o.cfg.MaxAttemptsPerModel)
	}

	policy := backoff.WithMaxRetries(backoff.WithContext(o.newBackOff(), ctx), uint64(o.cfg.MaxAttemptsPerModel-1))
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		// The policy reports ctx errors in place of the last failure.
		return nil, last
	}
	return completion, nil
}

// exponentialBackOff doubles RetryBackoff per retry up to maxRetryBackoff.
// Attempts are bounded by MaxAttemptsPerModel, not elapsed time.
func (o *Orchestrator) exponentialBackOff() backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = o.cfg.RetryBackoff
	expo.MaxInterval = maxRetryBackoff
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0
	return expo
}

func sameModelRetryable(kind models.FailureKind) bool {
	return kind == models.KindTimeout || kind == models.KindUnknown
}

// succeed records usage for a completed call. Usage is written on a context
// detached from the caller: the provider already did the work.
func (o *Orchestrator) succeed(ctx context.Context, req models.InvocationRequest, requested, model string, completion *models.Completion, attempted []string) *models.InvocationResult {
	inputTokens, outputTokens := splitTokens(completion)
	cost := o.catalog.EstimateCost(model, inputTokens, outputTokens)

	result := &models.InvocationResult{
		Completion:     *completion,
		RequestID:      req.RequestID,
		RequestedModel: requested,
		FallbackUsed:   model != requested,
		Attempted:      attempted,
		CostMicros:     cost,
	}
	result.Model = model

	delta := models.UsageDelta{Chats: 1, Tokens: completion.Tokens(), CostMicros: cost}
	record, err := o.ledger.Increment(context.WithoutCancel(ctx), req.UserID, o.clock.Today(), delta)
	if err != nil {
		fiberlog.Errorf("[%s] Failed to record usage for %s: %v", req.RequestID, req.UserID, err)
	} else {
		result.Usage = record
	}

	if result.FallbackUsed {
		fiberlog.Infof("[%s] Served by fallback model %s (requested %s)", req.RequestID, model, requested)
	}
	return result
}

// splitTokens returns input and output tokens, splitting a bare total 70/30
// when the provider reports no breakdown.
func splitTokens(c *models.Completion) (int64, int64) {
	if c.InputTokens > 0 || c.OutputTokens > 0 {
		return c.InputTokens, c.OutputTokens
	}
	total := c.Tokens()
	input := total * 7 / 10
	return input, total - input
}

func cancelled(ctx context.Context, attempted []string, last *models.InvocationError) *models.InvocationError {
	invErr := &models.InvocationError{
		Kind:      models.KindTimeout,
		Reason:    "request cancelled",
		Attempted: attempted,
		Cause:     ctx.Err(),
	}
	if last != nil {
		invErr.Model = last.Model
	}
	return invErr
}
