package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type memorySink struct {
	mu     sync.Mutex
	events []models.InvocationEvent
	err    error
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Write(_ context.Context, event models.InvocationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *memorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	first := &memorySink{}
	second := &memorySink{err: errors.New("sink down")}
	d := NewDispatcher(2, 100, first, second)

	for range 10 {
		d.Record(models.InvocationEvent{RequestID: "req", Model: "gpt-4o", Success: true})
	}
	d.Stop()

	assert.Equal(t, 10, first.Len())
	assert.Equal(t, 10, second.Len())
}

func TestDispatcherDropsAfterStop(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher(1, 10, sink)
	d.Stop()
	d.Stop()

	d.Record(models.InvocationEvent{RequestID: "late"})
	assert.Zero(t, sink.Len())
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Write(ctx context.Context, _ models.InvocationEvent) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func TestDispatcherNeverBlocksCaller(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(1, 2, sink)

	done := make(chan struct{})
	go func() {
		for range 50 {
			d.Record(models.InvocationEvent{RequestID: "burst"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	close(sink.release)
	d.Stop()
}

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Write(ctx, models.InvocationEvent{Model: "gpt-4o", Success: true, TotalTokens: 30, Latency: time.Second}))
	require.NoError(t, sink.Write(ctx, models.InvocationEvent{Model: "gpt-4o", Kind: models.KindTimeout, Latency: time.Second}))
	require.NoError(t, sink.Write(ctx, models.InvocationEvent{Model: "gpt-4o", Kind: models.KindTimeout}))

	assert.Equal(t, float64(1), testutil.ToFloat64(sink.invocations.WithLabelValues("gpt-4o", "success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(sink.invocations.WithLabelValues("gpt-4o", "timeout")))
	assert.Equal(t, float64(30), testutil.ToFloat64(sink.tokens.WithLabelValues("gpt-4o")))

	_, err = NewPrometheusSink(reg)
	assert.Error(t, err)
}

func TestDatabaseSink(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:telemetry?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	sink := NewDatabaseSink(db)
	require.NoError(t, sink.AutoMigrate())

	event := models.InvocationEvent{
		RequestID: "req-1",
		UserID:    "user-1",
		Tier:      models.TierPremium,
		Model:     "gpt-4o",
		Kind:      models.KindModelUnavailable,
		Message:   "overloaded",
		Latency:   250 * time.Millisecond,
	}
	require.NoError(t, sink.Write(context.Background(), event))

	var stored []models.InvocationEvent
	require.NoError(t, db.Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.Equal(t, models.KindModelUnavailable, stored[0].Kind)
	assert.Equal(t, 250*time.Millisecond, stored[0].Latency)
}

func TestLogSinkAndNop(t *testing.T) {
	assert.NoError(t, LogSink{}.Write(context.Background(), models.InvocationEvent{Kind: models.KindUnknown}))
	Nop{}.Record(models.InvocationEvent{})
}
