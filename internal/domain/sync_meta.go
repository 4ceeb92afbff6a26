package domain

import (
	"github.com/shopspring/decimal"
)

// BackwardExhausted marks a category whose history has been fully backfilled.
const BackwardExhausted = "__exhausted__"

// SyncMeta is the single persisted metadata record of the ledger.
type SyncMeta struct {
	// RegistrationTime is the sync floor (ms). Nil until set.
	RegistrationTime *int64 `json:"registration_time,omitempty"`

	// ForwardWatermark is the next unsynced timestamp per category.
	ForwardWatermark map[Category]int64 `json:"forward_watermark"`
	// BackwardCursor is the exchange cursor per category, or BackwardExhausted.
	BackwardCursor map[Category]string `json:"backward_cursor"`
	// OldestTimestamp is the oldest ingested timestamp per category.
	OldestTimestamp map[Category]int64 `json:"oldest_timestamp"`

	// CalculatedThrough is the timestamp through which Calculated fields are correct.
	CalculatedThrough *int64 `json:"calculated_through,omitempty"`
	RecalcRequired    bool   `json:"recalc_required"`
	// RecalcFrom is the earliest timestamp needing recomputation. Nil means full.
	RecalcFrom *int64 `json:"recalc_from,omitempty"`

	// Snapshot is the replay state after the last calculated trade.
	Snapshot *LedgerSnapshot `json:"snapshot,omitempty"`

	LastLoadedAt *int64 `json:"last_loaded_at,omitempty"`
}

// NewSyncMeta returns an empty metadata record.
func NewSyncMeta() *SyncMeta {
	return &SyncMeta{
		ForwardWatermark: make(map[Category]int64),
		BackwardCursor:   make(map[Category]string),
		OldestTimestamp:  make(map[Category]int64),
	}
}

// Clone returns a deep copy.
func (m *SyncMeta) Clone() *SyncMeta {
	c := NewSyncMeta()
	c.RegistrationTime = clonePtr(m.RegistrationTime)
	c.CalculatedThrough = clonePtr(m.CalculatedThrough)
	c.RecalcRequired = m.RecalcRequired
	c.RecalcFrom = clonePtr(m.RecalcFrom)
	c.LastLoadedAt = clonePtr(m.LastLoadedAt)
	for k, v := range m.ForwardWatermark {
		c.ForwardWatermark[k] = v
	}
	for k, v := range m.BackwardCursor {
		c.BackwardCursor[k] = v
	}
	for k, v := range m.OldestTimestamp {
		c.OldestTimestamp[k] = v
	}
	if m.Snapshot != nil {
		c.Snapshot = m.Snapshot.Clone()
	}
	return c
}

// EnsureMaps initializes nil maps, e.g. after decoding a stored record.
func (m *SyncMeta) EnsureMaps() {
	if m.ForwardWatermark == nil {
		m.ForwardWatermark = make(map[Category]int64)
	}
	if m.BackwardCursor == nil {
		m.BackwardCursor = make(map[Category]string)
	}
	if m.OldestTimestamp == nil {
		m.OldestTimestamp = make(map[Category]int64)
	}
}

// MarkRecalcRequired flags the ledger for recomputation from ts (ms).
// The earliest requested point wins.
func (m *SyncMeta) MarkRecalcRequired(ts int64) {
	if !m.RecalcRequired || (m.RecalcFrom != nil && ts < *m.RecalcFrom) {
		m.RecalcFrom = &ts
	}
	m.RecalcRequired = true
}

// MarkFullRecalcRequired flags the ledger for a full recomputation.
func (m *SyncMeta) MarkFullRecalcRequired() {
	m.RecalcRequired = true
	m.RecalcFrom = nil
}

// ClearRecalc resets the recalculation flag.
func (m *SyncMeta) ClearRecalc() {
	m.RecalcRequired = false
	m.RecalcFrom = nil
}

// ObserveOldest lowers the oldest known timestamp of a category.
func (m *SyncMeta) ObserveOldest(c Category, ts int64) {
	if cur, ok := m.OldestTimestamp[c]; !ok || ts < cur {
		m.OldestTimestamp[c] = ts
	}
}

// LedgerSnapshot is a serializable replay checkpoint.
type LedgerSnapshot struct {
	Positions  []PositionSnapshot         `json:"positions"`
	Cumulative map[string]decimal.Decimal `json:"cumulative"`
	// Through is the last trade folded into the snapshot.
	Through TradeCursor `json:"through"`
}

// PositionSnapshot is the persisted state of one instrument.
type PositionSnapshot struct {
	Category Category        `json:"category"`
	Symbol   string          `json:"symbol"`
	Position decimal.Decimal `json:"position"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}

// Clone returns a deep copy.
func (s *LedgerSnapshot) Clone() *LedgerSnapshot {
	c := &LedgerSnapshot{
		Positions:  append([]PositionSnapshot(nil), s.Positions...),
		Cumulative: make(map[string]decimal.Decimal, len(s.Cumulative)),
		Through:    s.Through,
	}
	for k, v := range s.Cumulative {
		c.Cumulative[k] = v
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
