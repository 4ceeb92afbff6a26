package memory

import (
	"context"
	"sort"
	"sync"

	"options-ledger/internal/domain"
	"options-ledger/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeRecord // keyed by trade id
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		data: make(map[string]*domain.TradeRecord),
	}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// SaveTrades upserts trades by ID.
func (s *LedgerStore) SaveTrades(_ context.Context, trades []*domain.TradeRecord) error {
	for _, t := range trades {
		if t == nil || t.ID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range trades {
		s.data[t.ID] = t.Clone()
	}
	return nil
}

// UpdateCalculated rewrites Calculated fields of existing trades.
func (s *LedgerStore) UpdateCalculated(_ context.Context, updates []storage.CalculatedUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		t, ok := s.data[u.ID]
		if !ok {
			continue
		}
		calc := u.Calculated
		t.Calculated = &calc
	}
	return nil
}

// LoadAllAscending returns every trade ordered ascending.
func (s *LedgerStore) LoadAllAscending(_ context.Context) ([]*domain.TradeRecord, error) {
	return s.filterAscending(func(*domain.TradeRecord) bool { return true }), nil
}

// LoadFrom returns trades with timestamp >= from, ordered ascending.
func (s *LedgerStore) LoadFrom(_ context.Context, from int64) ([]*domain.TradeRecord, error) {
	return s.filterAscending(func(t *domain.TradeRecord) bool { return t.Timestamp >= from }), nil
}

// LoadLatest returns the n most recent trades, ordered descending.
func (s *LedgerStore) LoadLatest(ctx context.Context, n int) ([]*domain.TradeRecord, error) {
	return s.LoadBefore(ctx, nil, nil, n)
}

// LoadBefore returns up to n trades strictly before the cursor, ordered descending.
func (s *LedgerStore) LoadBefore(_ context.Context, timestamp *int64, id *string, n int) ([]*domain.TradeRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	all := s.filterAscending(func(t *domain.TradeRecord) bool {
		switch {
		case timestamp == nil:
			return true
		case id == nil:
			return t.Timestamp < *timestamp
		default:
			return domain.CompareCursors(t.Cursor(), domain.TradeCursor{Timestamp: *timestamp, ID: *id}) < 0
		}
	})

	result := make([]*domain.TradeRecord, 0, n)
	for i := len(all) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, all[i])
	}
	return result, nil
}

// LoadBySymbol returns trades for a symbol ordered ascending.
func (s *LedgerStore) LoadBySymbol(_ context.Context, symbol string, category *domain.Category) ([]*domain.TradeRecord, error) {
	return s.filterAscending(func(t *domain.TradeRecord) bool {
		if t.Symbol != symbol {
			return false
		}
		return category == nil || t.Category == *category
	}), nil
}

// GetCount returns the number of stored trades.
func (s *LedgerStore) GetCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// CountUncalculated returns the number of trades without Calculated fields.
func (s *LedgerStore) CountUncalculated(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, t := range s.data {
		if t.Calculated == nil {
			count++
		}
	}
	return count, nil
}

// filterAscending returns copies of matching trades ordered by (timestamp, id).
func (s *LedgerStore) filterAscending(match func(*domain.TradeRecord) bool) []*domain.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.data {
		if match(t) {
			result = append(result, t.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return domain.CompareTrades(result[i], result[j]) < 0
	})
	return result
}
