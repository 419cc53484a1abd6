package usage

import (
	"context"
	"fmt"

	"github.com/Egham-7/adaptive-tiers/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedger stores usage in the usage_records table. Increments are a single
// upsert that adds to the existing row, so concurrent writers never race on a
// read-modify-write.
type GormLedger struct {
	db    *gorm.DB
	clock *Clock
}

// NewGormLedger creates a ledger on db. ClickHouse cannot serve as a ledger
// because it has no transactional upsert.
func NewGormLedger(db *gorm.DB, clock *Clock) (*GormLedger, error) {
	if db.Dialector.Name() == string(models.ClickHouse) {
		return nil, models.NewConfigurationError("clickhouse cannot back the usage ledger; use postgresql, mysql or sqlite")
	}
	if clock == nil {
		clock = NewClock(nil)
	}
	return &GormLedger{db: db, clock: clock}, nil
}

func (s *GormLedger) AutoMigrate() error {
	return s.db.AutoMigrate(&models.UsageRecord{})
}

func (s *GormLedger) Get(ctx context.Context, userID string, day models.Day) (*models.UsageRecord, error) {
	if err := validateKey(userID, day); err != nil {
		return nil, err
	}

	var records []models.UsageRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		Limit(1).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}

	if len(records) == 0 {
		return emptyRecord(userID, day), nil
	}
	return &records[0], nil
}

func (s *GormLedger) Increment(ctx context.Context, userID string, day models.Day, delta models.UsageDelta) (*models.UsageRecord, error) {
	if err := validateKey(userID, day); err != nil {
		return nil, err
	}
	if err := delta.Validate(); err != nil {
		return nil, models.NewValidationError("invalid usage delta", err)
	}

	now := s.clock.Now()
	var updated models.UsageRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := models.UsageRecord{
			UserID:      userID,
			Day:         day,
			ChatCount:   delta.Chats,
			TokenCount:  delta.Tokens,
			CostMicros:  delta.CostMicros,
			LastUpdated: now,
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{
				"chat_count":   gorm.Expr("usage_records.chat_count + ?", delta.Chats),
				"token_count":  gorm.Expr("usage_records.token_count + ?", delta.Tokens),
				"cost_micros":  gorm.Expr("usage_records.cost_micros + ?", delta.CostMicros),
				"last_updated": now,
			}),
		}).Create(&record).Error; err != nil {
			return fmt.Errorf("failed to upsert usage: %w", err)
		}

		if err := tx.Where("user_id = ? AND day = ?", userID, day).First(&updated).Error; err != nil {
			return fmt.Errorf("failed to read back usage: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

func (s *GormLedger) History(ctx context.Context, userID string, from, to models.Day) ([]models.UsageRecord, error) {
	if err := validateRange(userID, from, to); err != nil {
		return nil, err
	}

	var records []models.UsageRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND day >= ? AND day <= ?", userID, from, to).
		Order("day ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get usage history: %w", err)
	}

	return records, nil
}
