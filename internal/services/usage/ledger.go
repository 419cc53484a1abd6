package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// maxHistoryDays bounds History ranges.
const maxHistoryDays = 366

// Ledger is the durable per-user, per-day usage store. Increment must be a
// single atomic update so concurrent requests for the same user never lose
// counts.
type Ledger interface {
	Get(ctx context.Context, userID string, day models.Day) (*models.UsageRecord, error)
	Increment(ctx context.Context, userID string, day models.Day, delta models.UsageDelta) (*models.UsageRecord, error)
	History(ctx context.Context, userID string, from, to models.Day) ([]models.UsageRecord, error)
}

// Clock computes calendar days in the ledger's time zone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock returns a wall clock for loc.
func NewClock(loc *time.Location) *Clock {
	return NewClockFunc(loc, time.Now)
}

// NewClockFunc returns a clock backed by now, for tests and replays.
func NewClockFunc(loc *time.Location, now func() time.Time) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: now}
}

// Now returns the current instant in the clock's zone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the current calendar day in the clock's zone.
func (c *Clock) Today() models.Day {
	return models.DayOf(c.now(), c.loc)
}

// Location returns the zone that defines day boundaries.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// NewLedger builds the ledger selected by cfg.Backend.
func NewLedger(cfg models.UsageConfig, db *gorm.DB, client *redis.Client, clock *Clock) (Ledger, error) {
	switch cfg.Backend {
	case models.UsageBackendMemory, "":
		return NewMemoryLedger(clock), nil
	case models.UsageBackendRedis:
		if client == nil {
			return nil, models.NewConfigurationError("usage backend redis requires a redis client")
		}
		retention := time.Duration(cfg.RedisRetentionDays) * 24 * time.Hour
		return NewRedisLedger(client, cfg.RedisKeyPrefix, retention, clock), nil
	case models.UsageBackendDatabase:
		if db == nil {
			return nil, models.NewConfigurationError("usage backend database requires a database connection")
		}
		return NewGormLedger(db, clock)
	default:
		return nil, models.NewConfigurationError("unknown usage backend %q", cfg.Backend)
	}
}

func validateKey(userID string, day models.Day) error {
	if userID == "" {
		return models.NewValidationError("user id is required", nil)
	}
	if _, err := models.ParseDay(string(day)); err != nil {
		return models.NewValidationError("invalid usage day", err)
	}
	return nil
}

func validateRange(userID string, from, to models.Day) error {
	if err := validateKey(userID, from); err != nil {
		return err
	}
	if err := validateKey(userID, to); err != nil {
		return err
	}
	if to < from {
		return models.NewValidationError(fmt.Sprintf("history range is reversed: %s > %s", from, to), nil)
	}
	if days := to.Time().Sub(from.Time()).Hours() / 24; days >= maxHistoryDays {
		return models.NewValidationError(fmt.Sprintf("history range exceeds %d days", maxHistoryDays), nil)
	}
	return nil
}

func emptyRecord(userID string, day models.Day) *models.UsageRecord {
	return &models.UsageRecord{UserID: userID, Day: day}
}
