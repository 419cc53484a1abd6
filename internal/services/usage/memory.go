package usage

import (
	"context"
	"sort"
	"sync"

	"github.com/Egham-7/adaptive-tiers/internal/models"
)

type memoryKey struct {
	userID string
	day    models.Day
}

// MemoryLedger keeps usage in process memory. It is lost on restart and is
// meant for development and tests.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[memoryKey]models.UsageRecord
	clock   *Clock
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger(clock *Clock) *MemoryLedger {
	if clock == nil {
		clock = NewClock(nil)
	}
	return &MemoryLedger{
		records: make(map[memoryKey]models.UsageRecord),
		clock:   clock,
	}
}

func (m *MemoryLedger) Get(_ context.Context, userID string, day models.Day) (*models.UsageRecord, error) {
	if err := validateKey(userID, day); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[memoryKey{userID, day}]
	if !ok {
		return emptyRecord(userID, day), nil
	}
	return &record, nil
}

func (m *MemoryLedger) Increment(_ context.Context, userID string, day models.Day, delta models.UsageDelta) (*models.UsageRecord, error) {
	if err := validateKey(userID, day); err != nil {
		return nil, err
	}
	if err := delta.Validate(); err != nil {
		return nil, models.NewValidationError("invalid usage delta", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey{userID, day}
	record, ok := m.records[key]
	if !ok {
		record = *emptyRecord(userID, day)
	}
	record.ChatCount += delta.Chats
	record.TokenCount += delta.Tokens
	record.CostMicros += delta.CostMicros
	record.LastUpdated = m.clock.Now()
	m.records[key] = record

	return &record, nil
}

func (m *MemoryLedger) History(_ context.Context, userID string, from, to models.Day) ([]models.UsageRecord, error) {
	if err := validateRange(userID, from, to); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.UsageRecord
	for key, record := range m.records {
		if key.userID == userID && key.day >= from && key.day <= to {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}
