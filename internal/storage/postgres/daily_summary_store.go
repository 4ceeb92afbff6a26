package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"options-ledger/internal/domain"
	"options-ledger/internal/storage"
)

// DailySummaryStore implements storage.DailySummaryStore using PostgreSQL.
type DailySummaryStore struct {
	pool *Pool
}

// NewDailySummaryStore creates a new DailySummaryStore.
func NewDailySummaryStore(pool *Pool) *DailySummaryStore {
	return &DailySummaryStore{pool: pool}
}

var _ storage.DailySummaryStore = (*DailySummaryStore)(nil)

// SaveDailySummaries upserts summaries by (symbol, day).
func (s *DailySummaryStore) SaveDailySummaries(ctx context.Context, summaries []*domain.DailySummary) error {
	if len(summaries) == 0 {
		return nil
	}

	query := `
		INSERT INTO ledger_daily_summaries (
			symbol, day, trade_count, total_size, total_notional, total_fees, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (symbol, day) DO UPDATE SET
			trade_count = EXCLUDED.trade_count,
			total_size = EXCLUDED.total_size,
			total_notional = EXCLUDED.total_notional,
			total_fees = EXCLUDED.total_fees,
			updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for _, ds := range summaries {
		if ds == nil || ds.Symbol == "" {
			return storage.ErrInvalidInput
		}
		day := ds.Day.UTC().Truncate(24 * time.Hour)
		batch.Queue(query, ds.Symbol, day, ds.TradeCount, ds.TotalSize, ds.TotalNotional, ds.TotalFees)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range summaries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert daily summary: %w", err)
		}
	}
	return nil
}

// GetBySymbol returns summaries for a symbol ordered by day ASC.
func (s *DailySummaryStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.DailySummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, day, trade_count, total_size, total_notional, total_fees
		FROM ledger_daily_summaries
		WHERE symbol = $1
		ORDER BY day ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("get daily summaries by symbol: %w", err)
	}
	defer rows.Close()

	var result []*domain.DailySummary
	for rows.Next() {
		var ds domain.DailySummary
		if err := rows.Scan(&ds.Symbol, &ds.Day, &ds.TradeCount, &ds.TotalSize, &ds.TotalNotional, &ds.TotalFees); err != nil {
			return nil, fmt.Errorf("scan daily summary row: %w", err)
		}
		ds.Day = ds.Day.UTC()
		result = append(result, &ds)
	}
	return result, rows.Err()
}
