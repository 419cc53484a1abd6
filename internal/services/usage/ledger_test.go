package usage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var tokyo = mustLoad("Asia/Tokyo")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func fixedClock() *Clock {
	return NewClockFunc(tokyo, func() time.Time {
		return time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	})
}

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newRedisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func ledgers(t *testing.T) map[string]Ledger {
	t.Helper()

	gormLedger, err := NewGormLedger(newSQLiteDB(t), fixedClock())
	require.NoError(t, err)
	require.NoError(t, gormLedger.AutoMigrate())

	client, _ := newRedisClient(t)

	return map[string]Ledger{
		"memory": NewMemoryLedger(fixedClock()),
		"gorm":   gormLedger,
		"redis":  NewRedisLedger(client, "", 0, fixedClock()),
	}
}

func TestLedgerGetUnknownIsZero(t *testing.T) {
	for name, ledger := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			record, err := ledger.Get(context.Background(), "user-1", "2025-03-14")
			require.NoError(t, err)
			assert.Equal(t, "user-1", record.UserID)
			assert.Equal(t, models.Day("2025-03-14"), record.Day)
			assert.Zero(t, record.ChatCount)
			assert.Zero(t, record.TokenCount)
		})
	}
}

func TestLedgerIncrementAccumulates(t *testing.T) {
	ctx := context.Background()
	for name, ledger := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := ledger.Increment(ctx, "user-1", "2025-03-14", models.UsageDelta{Chats: 1, Tokens: 120, CostMicros: 900})
			require.NoError(t, err)

			record, err := ledger.Increment(ctx, "user-1", "2025-03-14", models.UsageDelta{Chats: 1, Tokens: 80, CostMicros: 100})
			require.NoError(t, err)
			assert.Equal(t, int64(2), record.ChatCount)
			assert.Equal(t, int64(200), record.TokenCount)
			assert.Equal(t, int64(1000), record.CostMicros)
			assert.False(t, record.LastUpdated.IsZero())

			got, err := ledger.Get(ctx, "user-1", "2025-03-14")
			require.NoError(t, err)
			assert.Equal(t, int64(2), got.ChatCount)
			assert.Equal(t, int64(200), got.TokenCount)

			other, err := ledger.Get(ctx, "user-1", "2025-03-15")
			require.NoError(t, err)
			assert.Zero(t, other.ChatCount)
		})
	}
}

func TestLedgerConcurrentIncrements(t *testing.T) {
	const workers = 20
	ctx := context.Background()

	for name, ledger := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := ledger.Increment(ctx, "user-c", "2025-03-14", models.UsageDelta{Chats: 1, Tokens: 10})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			record, err := ledger.Get(ctx, "user-c", "2025-03-14")
			require.NoError(t, err)
			assert.Equal(t, int64(workers), record.ChatCount)
			assert.Equal(t, int64(workers*10), record.TokenCount)
		})
	}
}

func TestLedgerHistory(t *testing.T) {
	ctx := context.Background()
	for name, ledger := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			for _, day := range []models.Day{"2025-03-12", "2025-03-14", "2025-03-20"} {
				_, err := ledger.Increment(ctx, "user-h", day, models.UsageDelta{Chats: 1})
				require.NoError(t, err)
			}
			_, err := ledger.Increment(ctx, "someone-else", "2025-03-13", models.UsageDelta{Chats: 1})
			require.NoError(t, err)

			history, err := ledger.History(ctx, "user-h", "2025-03-10", "2025-03-15")
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, models.Day("2025-03-12"), history[0].Day)
			assert.Equal(t, models.Day("2025-03-14"), history[1].Day)
		})
	}
}

func TestLedgerRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	for name, ledger := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := ledger.Increment(ctx, "user-1", "2025-03-14", models.UsageDelta{Chats: -1})
			assert.Error(t, err)

			_, err = ledger.Increment(ctx, "", "2025-03-14", models.UsageDelta{Chats: 1})
			assert.Error(t, err)

			_, err = ledger.Get(ctx, "user-1", "14/03/2025")
			assert.Error(t, err)

			_, err = ledger.History(ctx, "user-1", "2025-03-15", "2025-03-14")
			assert.Error(t, err)

			_, err = ledger.History(ctx, "user-1", "2023-01-01", "2025-01-01")
			assert.Error(t, err)
		})
	}
}

func TestRedisLedgerRetention(t *testing.T) {
	client, mr := newRedisClient(t)
	ledger := NewRedisLedger(client, "tiers:usage:", 48*time.Hour, fixedClock())

	_, err := ledger.Increment(context.Background(), "user-1", "2025-03-14", models.UsageDelta{Chats: 1})
	require.NoError(t, err)

	assert.True(t, mr.Exists("tiers:usage:user-1:2025-03-14"))
	assert.Equal(t, 48*time.Hour, mr.TTL("tiers:usage:user-1:2025-03-14"))
	assert.Equal(t, "1", mr.HGet("tiers:usage:user-1:2025-03-14", "chat_count"))
}

func TestRedisLedgerCorruptField(t *testing.T) {
	client, mr := newRedisClient(t)
	ledger := NewRedisLedger(client, "", 0, fixedClock())

	mr.HSet("usage:user-1:2025-03-14", "chat_count", "many")

	_, err := ledger.Get(context.Background(), "user-1", "2025-03-14")
	assert.Error(t, err)
}

func TestClockUsesConfiguredZone(t *testing.T) {
	// 16:30 UTC is already the next day in Tokyo.
	now := time.Date(2025, 3, 14, 16, 30, 0, 0, time.UTC)
	clock := NewClockFunc(tokyo, func() time.Time { return now })

	assert.Equal(t, models.Day("2025-03-15"), clock.Today())
	assert.Equal(t, models.Day("2025-03-14"), NewClockFunc(time.UTC, func() time.Time { return now }).Today())
}

func TestNewLedger(t *testing.T) {
	ledger, err := NewLedger(models.UsageConfig{Backend: models.UsageBackendMemory}, nil, nil, fixedClock())
	require.NoError(t, err)
	assert.IsType(t, &MemoryLedger{}, ledger)

	_, err = NewLedger(models.UsageConfig{Backend: models.UsageBackendRedis}, nil, nil, fixedClock())
	assert.True(t, models.IsConfigurationError(err))

	_, err = NewLedger(models.UsageConfig{Backend: models.UsageBackendDatabase}, nil, nil, fixedClock())
	assert.True(t, models.IsConfigurationError(err))

	_, err = NewLedger(models.UsageConfig{Backend: "etcd"}, nil, nil, fixedClock())
	assert.True(t, models.IsConfigurationError(err))
}
