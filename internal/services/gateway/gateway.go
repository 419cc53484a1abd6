package gateway

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/Egham-7/adaptive-tiers/internal/models"
	"github.com/Egham-7/adaptive-tiers/internal/services/circuitbreaker"
	"github.com/Egham-7/adaptive-tiers/internal/services/providers"
	"github.com/Egham-7/adaptive-tiers/internal/services/telemetry"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

const defaultTimeout = 60 * time.Second

type metaKey struct{}

// WithMeta attaches request attribution for telemetry.
func WithMeta(ctx context.Context, meta models.InvocationMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFrom returns the attribution attached by WithMeta.
func MetaFrom(ctx context.Context) models.InvocationMeta {
	meta, _ := ctx.Value(metaKey{}).(models.InvocationMeta)
	return meta
}

// Gateway performs one defensive provider call per Invoke. It never retries.
type Gateway struct {
	provider providers.Provider
	breakers *circuitbreaker.Registry
	recorder telemetry.Recorder
	now      func() time.Time
}

type Option func(*Gateway)

// WithCircuitBreakers short-circuits calls to models whose circuit is open.
func WithCircuitBreakers(registry *circuitbreaker.Registry) Option {
	return func(g *Gateway) {
		g.breakers = registry
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(recorder telemetry.Recorder) Option {
	return func(g *Gateway) {
		g.recorder = recorder
	}
}

func New(provider providers.Provider, opts ...Option) *Gateway {
	g := &Gateway{
		provider: provider,
		recorder: telemetry.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Invoke calls model with prompt, bounded by timeout. Every failure is a
// *models.InvocationError.
func (g *Gateway) Invoke(ctx context.Context, model string, prompt models.Prompt, timeout time.Duration) (*models.Completion, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	meta := MetaFrom(ctx)

	var breaker *circuitbreaker.CircuitBreaker
	if g.breakers != nil {
		breaker = g.breakers.For(model)
		if !breaker.CanExecute(ctx) {
			invErr := models.NewInvocationError(models.KindModelUnavailable, model, "circuit open", nil)
			g.emit(meta, model, nil, invErr, 0)
			return nil, invErr
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := g.now()
	completion, err := g.provider.Complete(callCtx, model, prompt)
	latency := g.now().Sub(start)

	if err == nil && completion == nil {
		err = errors.New("provider returned no completion")
	}
	if err != nil {
		invErr := g.classify(ctx, callCtx, model, err)
		if invErr.Kind == models.KindUnknown {
			fiberlog.Errorf("[%s] Unclassified provider error for %s: %v", meta.RequestID, model, err)
		}
		if breaker != nil && countsAgainstModel(ctx, invErr.Kind) {
			breaker.RecordFailure(ctx)
		}
		g.emit(meta, model, nil, invErr, latency)
		return nil, invErr
	}

	if completion.Model == "" {
		completion.Model = model
	}
	completion.Latency = latency

	if breaker != nil {
		breaker.RecordSuccess(ctx)
	}
	g.emit(meta, model, completion, nil, latency)
	return completion, nil
}

// classify prefers the context state over the provider error: providers wrap
// deadline errors inconsistently.
func (g *Gateway) classify(ctx, callCtx context.Context, model string, err error) *models.InvocationError {
	if errors.Is(ctx.Err(), context.Canceled) {
		return models.NewInvocationError(models.KindTimeout, model, "request cancelled", context.Canceled)
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return models.NewInvocationError(models.KindTimeout, model, "provider did not respond in time", err)
	}
	return Classify(model, err)
}

// countsAgainstModel reports whether a failure says something about the
// model's health.
func countsAgainstModel(ctx context.Context, kind models.FailureKind) bool {
	if ctx.Err() != nil {
		return false
	}
	switch kind {
	case models.KindModelUnavailable, models.KindTimeout, models.KindUnknown:
		return true
	default:
		return false
	}
}

func (g *Gateway) emit(meta models.InvocationMeta, model string, completion *models.Completion, invErr *models.InvocationError, latency time.Duration) {
	event := models.InvocationEvent{
		RequestID:  meta.RequestID,
		UserID:     meta.UserID,
		Tier:       meta.Tier,
		Capability: meta.Capability,
		Model:      model,
		Latency:    latency,
		CreatedAt:  g.now(),
	}
	if completion != nil {
		event.Success = true
		event.InputTokens = completion.InputTokens
		event.OutputTokens = completion.OutputTokens
		event.TotalTokens = completion.Tokens()
	}
	if invErr != nil {
		event.Kind = invErr.Kind
		event.Message = truncate(invErr.Reason, 1024)
	}
	g.recorder.Record(event)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
