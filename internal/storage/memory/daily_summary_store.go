package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"options-ledger/internal/domain"
	"options-ledger/internal/storage"
)

type dailyKey struct {
	symbol string
	day    time.Time
}

// DailySummaryStore is an in-memory implementation of storage.DailySummaryStore.
type DailySummaryStore struct {
	mu   sync.RWMutex
	data map[dailyKey]*domain.DailySummary
}

// NewDailySummaryStore creates a new in-memory daily summary store.
func NewDailySummaryStore() *DailySummaryStore {
	return &DailySummaryStore{
		data: make(map[dailyKey]*domain.DailySummary),
	}
}

var _ storage.DailySummaryStore = (*DailySummaryStore)(nil)

// SaveDailySummaries upserts summaries by (symbol, day).
func (s *DailySummaryStore) SaveDailySummaries(_ context.Context, summaries []*domain.DailySummary) error {
	for _, ds := range summaries {
		if ds == nil || ds.Symbol == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ds := range summaries {
		c := *ds
		c.Day = ds.Day.UTC().Truncate(24 * time.Hour)
		s.data[dailyKey{symbol: c.Symbol, day: c.Day}] = &c
	}
	return nil
}

// GetBySymbol returns summaries for a symbol ordered by day.
func (s *DailySummaryStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DailySummary
	for k, v := range s.data {
		if k.symbol == symbol {
			c := *v
			result = append(result, &c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Day.Before(result[j].Day)
	})
	return result, nil
}
