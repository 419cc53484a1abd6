package models

import (
	"fmt"
	"time"
)

// DayLayout is the calendar-day key format.
const DayLayout = "2006-01-02"

// Day is a calendar day in the ledger's configured time zone.
type Day string

// DayOf returns the calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	return Day(t.In(loc).Format(DayLayout))
}

// ParseDay validates a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	if _, err := time.Parse(DayLayout, s); err != nil {
		return "", fmt.Errorf("invalid day %q: expected YYYY-MM-DD", s)
	}
	return Day(s), nil
}

// Time returns midnight of the day in UTC, for range iteration.
func (d Day) Time() time.Time {
	t, _ := time.Parse(DayLayout, string(d))
	return t
}

// Next returns the following calendar day.
func (d Day) Next() Day {
	return Day(d.Time().AddDate(0, 0, 1).Format(DayLayout))
}

// UsageRecord is one user's consumption on one calendar day.
type UsageRecord struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	UserID      string    `gorm:"size:128;not null;uniqueIndex:idx_usage_user_day,priority:1" json:"user_id"`
	Day         Day       `gorm:"size:10;not null;uniqueIndex:idx_usage_user_day,priority:2" json:"day"`
	ChatCount   int64     `gorm:"not null;default:0" json:"chat_count"`
	TokenCount  int64     `gorm:"not null;default:0" json:"token_count"`
	CostMicros  int64     `gorm:"not null;default:0" json:"cost_micros"`
	LastUpdated time.Time `json:"last_updated"`
}

// TableName pins the table name across drivers.
func (UsageRecord) TableName() string {
	return "usage_records"
}

// UsageDelta is what one successful invocation adds to a record.
type UsageDelta struct {
	Chats      int64
	Tokens     int64
	CostMicros int64
}

// Validate rejects negative deltas.
func (d UsageDelta) Validate() error {
	if d.Chats < 0 || d.Tokens < 0 || d.CostMicros < 0 {
		return fmt.Errorf("usage delta must be non-negative: %+v", d)
	}
	return nil
}

// UsageBackend selects the ledger store.
type UsageBackend string

const (
	UsageBackendMemory   UsageBackend = "memory"
	UsageBackendRedis    UsageBackend = "redis"
	UsageBackendDatabase UsageBackend = "database"
)

// UsageConfig configures the usage ledger.
type UsageConfig struct {
	Backend            UsageBackend `json:"backend,omitzero" yaml:"backend"`
	TimeZone           string       `json:"timezone,omitzero" yaml:"timezone"`                                   // IANA zone that defines the day boundary
	RedisKeyPrefix     string       `json:"redis_key_prefix,omitzero" yaml:"redis_key_prefix,omitempty"`         // Defaults to "usage:"
	RedisRetentionDays int          `json:"redis_retention_days,omitzero" yaml:"redis_retention_days,omitempty"` // 0 keeps records forever
}

// RateLimiterBackend selects where token buckets live.
type RateLimiterBackend string

const (
	RateLimiterBackendLocal RateLimiterBackend = "local"
	RateLimiterBackendRedis RateLimiterBackend = "redis"
)

// RateLimiterConfig configures the per-user token buckets.
type RateLimiterConfig struct {
	Backend      RateLimiterBackend `json:"backend,omitzero" yaml:"backend"`
	MaxBuckets   int                `json:"max_buckets,omitzero" yaml:"max_buckets,omitempty"`       // Local backend LRU size
	IdleExpiryMs int                `json:"idle_expiry_ms,omitzero" yaml:"idle_expiry_ms,omitempty"` // Drop idle buckets after this long
}
