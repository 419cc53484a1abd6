package database

import (
	"fmt"

	"gorm.io/gorm"
)

// RunClickHouseMigrations creates the telemetry table directly. GORM's
// AutoMigrate mishandles ClickHouse column introspection.
func RunClickHouseMigrations(db *gorm.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS invocation_events (
			id UInt64,
			request_id String,
			user_id String,
			tier LowCardinality(String),
			capability LowCardinality(String),
			model LowCardinality(String),
			success UInt8,
			kind LowCardinality(String),
			message String,
			input_tokens Int64,
			output_tokens Int64,
			total_tokens Int64,
			latency Int64,
			created_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(created_at)
		ORDER BY (model, created_at)
		SETTINGS index_granularity = 8192`,

		`ALTER TABLE invocation_events ADD INDEX IF NOT EXISTS idx_invocation_events_request_id request_id TYPE bloom_filter GRANULARITY 4`,
		`ALTER TABLE invocation_events ADD INDEX IF NOT EXISTS idx_invocation_events_user_id user_id TYPE bloom_filter GRANULARITY 4`,
	}

	for _, query := range queries {
		if err := db.Exec(query).Error; err != nil {
			return fmt.Errorf("clickhouse migration failed: %w", err)
		}
	}
	return nil
}
