package storage

import (
	"context"

	"options-ledger/internal/domain"
)

// LedgerStore provides access to ledger_trades storage.
// Records are keyed by TradeRecord.ID and never deleted.
type LedgerStore interface {
	// SaveTrades upserts trades by ID. Re-saving an ID overwrites the
	// stored record, including Calculated.
	SaveTrades(ctx context.Context, trades []*domain.TradeRecord) error

	// UpdateCalculated rewrites the Calculated fields of existing trades.
	// Unknown IDs are ignored.
	UpdateCalculated(ctx context.Context, updates []CalculatedUpdate) error

	// LoadAllAscending returns every trade ordered by (timestamp ASC, id ASC).
	LoadAllAscending(ctx context.Context) ([]*domain.TradeRecord, error)

	// LoadFrom returns trades with timestamp >= from, ordered ascending.
	LoadFrom(ctx context.Context, from int64) ([]*domain.TradeRecord, error)

	// LoadLatest returns the n most recent trades, ordered descending.
	LoadLatest(ctx context.Context, n int) ([]*domain.TradeRecord, error)

	// LoadBefore returns up to n trades strictly before the (timestamp, id)
	// cursor, ordered descending. A nil id compares on timestamp only;
	// a nil timestamp behaves like LoadLatest.
	LoadBefore(ctx context.Context, timestamp *int64, id *string, n int) ([]*domain.TradeRecord, error)

	// LoadBySymbol returns trades for a symbol, optionally restricted to a
	// category, ordered ascending.
	LoadBySymbol(ctx context.Context, symbol string, category *domain.Category) ([]*domain.TradeRecord, error)

	// GetCount returns the number of stored trades.
	GetCount(ctx context.Context) (int, error)

	// CountUncalculated returns the number of trades without Calculated fields.
	CountUncalculated(ctx context.Context) (int, error)
}

// CalculatedUpdate assigns replay output to a stored trade.
type CalculatedUpdate struct {
	ID         string
	Calculated domain.Calculated
}

// SyncMetaStore persists the single ledger metadata record.
type SyncMetaStore interface {
	// LoadMeta returns the metadata record.
	// Returns ErrNotFound if it has never been saved.
	LoadMeta(ctx context.Context) (*domain.SyncMeta, error)

	// SaveMeta replaces the metadata record.
	SaveMeta(ctx context.Context, meta *domain.SyncMeta) error
}

// DailySummaryStore provides access to the derived per-symbol daily aggregates.
type DailySummaryStore interface {
	// SaveDailySummaries upserts summaries by (symbol, day).
	SaveDailySummaries(ctx context.Context, summaries []*domain.DailySummary) error

	// GetBySymbol returns summaries for a symbol ordered by day ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.DailySummary, error)
}
