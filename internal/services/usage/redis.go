package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisKeyPrefix = "usage:"

	fieldChats       = "chat_count"
	fieldTokens      = "token_count"
	fieldCost        = "cost_micros"
	fieldLastUpdated = "last_updated"
)

// RedisLedger stores each user-day as a hash. Increments run in a MULTI/EXEC
// pipeline so the three counters move together.
type RedisLedger struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	clock     *Clock
}

// NewRedisLedger creates a redis-backed ledger. A zero retention keeps
// records forever.
func NewRedisLedger(client *redis.Client, prefix string, retention time.Duration, clock *Clock) *RedisLedger {
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	if clock == nil {
		clock = NewClock(nil)
	}
	return &RedisLedger{
		client:    client,
		prefix:    prefix,
		retention: retention,
		clock:     clock,
	}
}

func (r *RedisLedger) key(userID string, day models.Day) string {
	return r.prefix + userID + ":" + string(day)
}

func (r *RedisLedger) Get(ctx context.Context, userID string, day models.Day) (*models.UsageRecord, error) {
	if err := validateKey(userID, day); err != nil {
		return nil, err
	}

	fields, err := r.client.HGetAll(ctx, r.key(userID, day)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	return parseRecord(userID, day, fields)
}

func (r *RedisLedger) Increment(ctx context.Context, userID string, day models.Day, delta models.UsageDelta) (*models.UsageRecord, error) {
	if err := validateKey(userID, day); err != nil {
		return nil, err
	}
	if err := delta.Validate(); err != nil {
		return nil, models.NewValidationError("invalid usage delta", err)
	}

	key := r.key(userID, day)
	now := r.clock.Now()

	var chats, tokens, cost *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		chats = pipe.HIncrBy(ctx, key, fieldChats, delta.Chats)
		tokens = pipe.HIncrBy(ctx, key, fieldTokens, delta.Tokens)
		cost = pipe.HIncrBy(ctx, key, fieldCost, delta.CostMicros)
		pipe.HSet(ctx, key, fieldLastUpdated, now.UnixMilli())
		if r.retention > 0 {
			pipe.Expire(ctx, key, r.retention)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}

	return &models.UsageRecord{
		UserID:      userID,
		Day:         day,
		ChatCount:   chats.Val(),
		TokenCount:  tokens.Val(),
		CostMicros:  cost.Val(),
		LastUpdated: now,
	}, nil
}

func (r *RedisLedger) History(ctx context.Context, userID string, from, to models.Day) ([]models.UsageRecord, error) {
	if err := validateRange(userID, from, to); err != nil {
		return nil, err
	}

	var days []models.Day
	for day := from; day <= to; day = day.Next() {
		days = append(days, day)
	}

	cmds := make([]*redis.MapStringStringCmd, len(days))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, day := range days {
			cmds[i] = pipe.HGetAll(ctx, r.key(userID, day))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get usage history: %w", err)
	}

	var out []models.UsageRecord
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		record, err := parseRecord(userID, days[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, *record)
	}
	return out, nil
}

func parseRecord(userID string, day models.Day, fields map[string]string) (*models.UsageRecord, error) {
	record := emptyRecord(userID, day)
	if len(fields) == 0 {
		return record, nil
	}

	var err error
	if record.ChatCount, err = parseCounter(fields, fieldChats); err != nil {
		return nil, err
	}
	if record.TokenCount, err = parseCounter(fields, fieldTokens); err != nil {
		return nil, err
	}
	if record.CostMicros, err = parseCounter(fields, fieldCost); err != nil {
		return nil, err
	}
	if ms, err := parseCounter(fields, fieldLastUpdated); err == nil && ms > 0 {
		record.LastUpdated = time.UnixMilli(ms)
	}
	return record, nil
}

func parseCounter(fields map[string]string, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt usage field %s=%q: %w", name, raw, err)
	}
	return n, nil
}
