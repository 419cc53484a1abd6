package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// ConfigFrom converts the YAML breaker settings.
func ConfigFrom(cfg models.CircuitBreakerConfig) Config {
	return Config{
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		Timeout:          time.Duration(cfg.TimeoutMs) * time.Millisecond,
	}
}

const (
	circuitBreakerKeyPrefix = "circuit_breaker:model:"
	stateKey                = "state"
	failureCountKey         = "failure_count"
	successCountKey         = "success_count"
	lastFailureTimeKey      = "last_failure_time"
	lastStateChangeKey      = "last_state_change"
	redisOpTimeout          = 1 * time.Second
)

// Lua scripts for atomic circuit breaker operations
const (
	// recordSuccessScript atomically records success and handles state transitions
	// KEYS[1]: state key
	// KEYS[2]: failure_count key
	// KEYS[3]: success_count key
	// KEYS[4]: last_state_change key
	// ARGV[1]: success threshold (int)
	// ARGV[2]: current timestamp (unix milliseconds)
	recordSuccessScript = `
		local state = tonumber(redis.call('GET', KEYS[1]) or '0')
		redis.call('SET', KEYS[2], 0)

		if state == 2 then
			local count = redis.call('INCR', KEYS[3])
			if count >= tonumber(ARGV[1]) then
				redis.call('SET', KEYS[1], 0)
				redis.call('SET', KEYS[3], 0)
				redis.call('SET', KEYS[4], ARGV[2])
				return 2
			end
			return 1
		end
		return 0
	`

	// recordFailureScript atomically records failure and handles state transitions
	// KEYS[1]: state key
	// KEYS[2]: failure_count key
	// KEYS[3]: last_failure_time key
	// KEYS[4]: last_state_change key
	// KEYS[5]: success_count key
	// ARGV[1]: failure threshold (int)
	// ARGV[2]: current timestamp (unix milliseconds)
	recordFailureScript = `
		local state = tonumber(redis.call('GET', KEYS[1]) or '0')
		local failureCount = redis.call('INCR', KEYS[2])
		redis.call('SET', KEYS[3], ARGV[2])

		local shouldOpen = (state == 0 and failureCount >= tonumber(ARGV[1])) or state == 2

		if shouldOpen then
			redis.call('SET', KEYS[1], 1)
			redis.call('SET', KEYS[4], ARGV[2])
			redis.call('SET', KEYS[5], '0')
			return 1
		end
		return 0
	`

	// tryHalfOpenScript moves an Open circuit to HalfOpen once the timeout has
	// elapsed since the last failure. Only one caller wins the transition.
	// KEYS[1]: state key
	// KEYS[2]: last_failure_time key
	// KEYS[3]: last_state_change key
	// KEYS[4]: success_count key
	// ARGV[1]: open timeout (milliseconds)
	// ARGV[2]: current timestamp (unix milliseconds)
	tryHalfOpenScript = `
		local state = tonumber(redis.call('GET', KEYS[1]) or '0')
		if state ~= 1 then
			return state
		end
		local lastFailure = tonumber(redis.call('GET', KEYS[2]) or '0')
		if tonumber(ARGV[2]) - lastFailure < tonumber(ARGV[1]) then
			return 1
		end
		redis.call('SET', KEYS[1], 2)
		redis.call('SET', KEYS[3], ARGV[2])
		redis.call('SET', KEYS[4], 0)
		return 3
	`
)

// CircuitBreaker guards one model. State lives in redis so every instance
// sees the same circuit.
type CircuitBreaker struct {
	redisClient *redis.Client
	model       string
	config      Config
	keys        keyBuilder
	now         func() time.Time
}

type keyBuilder struct {
	prefix string
}

func (kb keyBuilder) state() string        { return kb.prefix + stateKey }
func (kb keyBuilder) failureCount() string { return kb.prefix + failureCountKey }
func (kb keyBuilder) successCount() string { return kb.prefix + successCountKey }
func (kb keyBuilder) lastFailure() string  { return kb.prefix + lastFailureTimeKey }
func (kb keyBuilder) lastChange() string   { return kb.prefix + lastStateChangeKey }

func NewForModel(redisClient *redis.Client, model string, config Config) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		redisClient: redisClient,
		model:       model,
		config:      config,
		keys:        keyBuilder{prefix: circuitBreakerKeyPrefix + model + ":"},
		now:         time.Now,
	}
}

// CanExecute reports whether a call to the model may proceed. Redis errors
// allow execution.
func (cb *CircuitBreaker) CanExecute(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	keys := []string{
		cb.keys.state(),
		cb.keys.lastFailure(),
		cb.keys.lastChange(),
		cb.keys.successCount(),
	}
	args := []any{
		cb.config.Timeout.Milliseconds(),
		cb.now().UnixMilli(),
	}

	result, err := cb.redisClient.Eval(ctx, tryHalfOpenScript, keys, args...).Int()
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to get state for %s, allowing execution: %v", cb.model, err)
		return true
	}

	switch result {
	case int(Open):
		return false
	case 3:
		fiberlog.Infof("CircuitBreaker: %s transitioned to HalfOpen", cb.model)
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisOpTimeout)
	defer cancel()

	keys := []string{
		cb.keys.state(),
		cb.keys.failureCount(),
		cb.keys.successCount(),
		cb.keys.lastChange(),
	}
	args := []any{
		cb.config.SuccessThreshold,
		cb.now().UnixMilli(),
	}

	result, err := cb.redisClient.Eval(ctx, recordSuccessScript, keys, args...).Int()
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to record success for %s: %v", cb.model, err)
		return
	}

	switch result {
	case 2:
		fiberlog.Infof("CircuitBreaker: %s transitioned to Closed state after success", cb.model)
	case 1:
		fiberlog.Debugf("CircuitBreaker: %s recorded success in HalfOpen state", cb.model)
	}
}

func (cb *CircuitBreaker) RecordFailure(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisOpTimeout)
	defer cancel()

	keys := []string{
		cb.keys.state(),
		cb.keys.failureCount(),
		cb.keys.lastFailure(),
		cb.keys.lastChange(),
		cb.keys.successCount(),
	}
	args := []any{
		cb.config.FailureThreshold,
		cb.now().UnixMilli(),
	}

	result, err := cb.redisClient.Eval(ctx, recordFailureScript, keys, args...).Int()
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to record failure for %s: %v", cb.model, err)
		return
	}

	if result == 1 {
		fiberlog.Warnf("CircuitBreaker: %s transitioned to Open state after failure", cb.model)
	}
}

func (cb *CircuitBreaker) GetState(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	stateStr, err := cb.redisClient.Get(ctx, cb.keys.state()).Result()
	if errors.Is(err, redis.Nil) {
		return Closed
	}
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to get state for %s, returning Closed: %v", cb.model, err)
		return Closed
	}

	stateInt, err := strconv.Atoi(stateStr)
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: invalid state value %q for %s", stateStr, cb.model)
		return Closed
	}
	return State(stateInt)
}

func (cb *CircuitBreaker) Reset(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	pipe := cb.redisClient.Pipeline()
	pipe.Set(ctx, cb.keys.state(), int(Closed), 0)
	pipe.Set(ctx, cb.keys.failureCount(), 0, 0)
	pipe.Set(ctx, cb.keys.successCount(), 0, 0)
	pipe.Set(ctx, cb.keys.lastChange(), cb.now().UnixMilli(), 0)

	if _, err := pipe.Exec(ctx); err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to reset state for %s: %v", cb.model, err)
		return
	}
	fiberlog.Infof("CircuitBreaker: Reset circuit breaker for %s", cb.model)
}

// Registry hands out one breaker per model.
type Registry struct {
	redisClient *redis.Client
	config      Config
	breakers    sync.Map
}

func NewRegistry(redisClient *redis.Client, config Config) *Registry {
	return &Registry{redisClient: redisClient, config: config}
}

// For returns the breaker for model, creating it on first use.
func (r *Registry) For(model string) *CircuitBreaker {
	if cb, ok := r.breakers.Load(model); ok {
		return cb.(*CircuitBreaker)
	}
	cb, _ := r.breakers.LoadOrStore(model, NewForModel(r.redisClient, model, r.config))
	return cb.(*CircuitBreaker)
}
