package clickhouse

import (
	"context"
	"fmt"
	"time"

	"options-ledger/internal/domain"
	"options-ledger/internal/storage"
)

// DailySummaryStore implements storage.DailySummaryStore using ClickHouse.
// Rows are versioned by updated_at; reads use FINAL so the latest save wins.
type DailySummaryStore struct {
	conn *Conn
	now  func() time.Time
}

// NewDailySummaryStore creates a new DailySummaryStore.
func NewDailySummaryStore(conn *Conn) *DailySummaryStore {
	return &DailySummaryStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.DailySummaryStore = (*DailySummaryStore)(nil)

// SaveDailySummaries upserts summaries by (symbol, day).
func (s *DailySummaryStore) SaveDailySummaries(ctx context.Context, summaries []*domain.DailySummary) error {
	if len(summaries) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_daily_summaries (
			symbol, day, trade_count, total_size, total_notional, total_fees, updated_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	version := s.now().UTC()
	for _, ds := range summaries {
		if ds == nil || ds.Symbol == "" {
			_ = batch.Abort()
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			ds.Symbol,
			ds.Day.UTC().Truncate(24*time.Hour),
			uint32(ds.TradeCount),
			ds.TotalSize,
			ds.TotalNotional,
			ds.TotalFees,
			version,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySymbol returns summaries for a symbol ordered by day ASC.
func (s *DailySummaryStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.DailySummary, error) {
	query := `
		SELECT symbol, day, trade_count, total_size, total_notional, total_fees
		FROM ledger_daily_summaries FINAL
		WHERE symbol = ?
		ORDER BY day ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query daily summaries by symbol: %w", err)
	}
	defer rows.Close()

	var result []*domain.DailySummary
	for rows.Next() {
		var (
			ds    domain.DailySummary
			count uint32
		)
		if err := rows.Scan(&ds.Symbol, &ds.Day, &count, &ds.TotalSize, &ds.TotalNotional, &ds.TotalFees); err != nil {
			return nil, fmt.Errorf("scan daily summary row: %w", err)
		}
		ds.TradeCount = int(count)
		ds.Day = ds.Day.UTC()
		result = append(result, &ds)
	}

	return result, rows.Err()
}
