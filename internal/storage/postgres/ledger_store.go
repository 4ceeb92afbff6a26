package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"options-ledger/internal/domain"
	"options-ledger/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

const tradeColumns = `
	trade_id, ts, symbol, category, tx_type, side,
	quantity, price, fee, settle_coin, change, cash_flow,
	order_id, order_link_id, exec_id,
	payload_position, payload_strike, payload_delivery_price,
	payload_trade_price, payload_price, payload_exec_price, raw,
	calc_position_after, calc_avg_price_after, calc_realized, calc_cumulative_after`

// SaveTrades upserts trades by trade_id in a single transaction.
func (s *LedgerStore) SaveTrades(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	for _, t := range trades {
		if t == nil || t.ID == "" {
			return storage.ErrInvalidInput
		}
	}

	query := `
		INSERT INTO ledger_trades (` + tradeColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18,
			$19, $20, $21, $22,
			$23, $24, $25, $26
		)
		ON CONFLICT (trade_id) DO UPDATE SET
			ts = EXCLUDED.ts,
			symbol = EXCLUDED.symbol,
			category = EXCLUDED.category,
			tx_type = EXCLUDED.tx_type,
			side = EXCLUDED.side,
			quantity = EXCLUDED.quantity,
			price = EXCLUDED.price,
			fee = EXCLUDED.fee,
			settle_coin = EXCLUDED.settle_coin,
			change = EXCLUDED.change,
			cash_flow = EXCLUDED.cash_flow,
			order_id = EXCLUDED.order_id,
			order_link_id = EXCLUDED.order_link_id,
			exec_id = EXCLUDED.exec_id,
			payload_position = EXCLUDED.payload_position,
			payload_strike = EXCLUDED.payload_strike,
			payload_delivery_price = EXCLUDED.payload_delivery_price,
			payload_trade_price = EXCLUDED.payload_trade_price,
			payload_price = EXCLUDED.payload_price,
			payload_exec_price = EXCLUDED.payload_exec_price,
			raw = EXCLUDED.raw,
			calc_position_after = EXCLUDED.calc_position_after,
			calc_avg_price_after = EXCLUDED.calc_avg_price_after,
			calc_realized = EXCLUDED.calc_realized,
			calc_cumulative_after = EXCLUDED.calc_cumulative_after,
			updated_at = NOW()
	`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range trades {
		calc := nullCalculated(t.Calculated)
		batch.Queue(query,
			t.ID, t.Timestamp, t.Symbol, string(t.Category), string(t.Type), string(t.Side),
			t.Quantity, t.Price, t.Fee, t.SettleCoin, t.Change, t.CashFlow,
			t.OrderID, t.OrderLinkID, t.ExecID,
			t.Payload.Position, t.Payload.Strike, t.Payload.DeliveryPrice,
			t.Payload.TradePrice, t.Payload.Price, t.Payload.ExecPrice, rawParam(t.Raw),
			calc[0], calc[1], calc[2], calc[3],
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range trades {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert ledger trade: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpdateCalculated rewrites the calc_* columns of existing trades.
func (s *LedgerStore) UpdateCalculated(ctx context.Context, updates []storage.CalculatedUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	query := `
		UPDATE ledger_trades
		SET calc_position_after = $2,
		    calc_avg_price_after = $3,
		    calc_realized = $4,
		    calc_cumulative_after = $5,
		    updated_at = NOW()
		WHERE trade_id = $1
	`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, u := range updates {
		c := u.Calculated
		batch.Queue(query, u.ID, c.PositionAfter, c.AvgPriceAfter, c.Realized, c.CumulativeAfter)
	}

	br := tx.SendBatch(ctx, batch)
	for range updates {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("update calculated fields: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadAllAscending returns every trade ordered by (ts, trade_id).
func (s *LedgerStore) LoadAllAscending(ctx context.Context) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + `
		FROM ledger_trades
		ORDER BY ts ASC, trade_id ASC
	`
	return s.queryTrades(ctx, "load all trades", query)
}

// LoadFrom returns trades with ts >= from ordered ascending.
func (s *LedgerStore) LoadFrom(ctx context.Context, from int64) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + `
		FROM ledger_trades
		WHERE ts >= $1
		ORDER BY ts ASC, trade_id ASC
	`
	return s.queryTrades(ctx, "load trades from", query, from)
}

// LoadLatest returns the n most recent trades ordered descending.
func (s *LedgerStore) LoadLatest(ctx context.Context, n int) ([]*domain.TradeRecord, error) {
	return s.LoadBefore(ctx, nil, nil, n)
}

// LoadBefore returns up to n trades strictly before the cursor ordered descending.
func (s *LedgerStore) LoadBefore(ctx context.Context, timestamp *int64, id *string, n int) ([]*domain.TradeRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	switch {
	case timestamp == nil:
		query := `SELECT ` + tradeColumns + `
			FROM ledger_trades
			ORDER BY ts DESC, trade_id DESC
			LIMIT $1
		`
		return s.queryTrades(ctx, "load latest trades", query, n)
	case id == nil:
		query := `SELECT ` + tradeColumns + `
			FROM ledger_trades
			WHERE ts < $1
			ORDER BY ts DESC, trade_id DESC
			LIMIT $2
		`
		return s.queryTrades(ctx, "load trades before", query, *timestamp, n)
	default:
		query := `SELECT ` + tradeColumns + `
			FROM ledger_trades
			WHERE (ts, trade_id) < ($1, $2)
			ORDER BY ts DESC, trade_id DESC
			LIMIT $3
		`
		return s.queryTrades(ctx, "load trades before cursor", query, *timestamp, *id, n)
	}
}

// LoadBySymbol returns trades for a symbol ordered ascending.
func (s *LedgerStore) LoadBySymbol(ctx context.Context, symbol string, category *domain.Category) ([]*domain.TradeRecord, error) {
	if category == nil {
		query := `SELECT ` + tradeColumns + `
			FROM ledger_trades
			WHERE symbol = $1
			ORDER BY ts ASC, trade_id ASC
		`
		return s.queryTrades(ctx, "load trades by symbol", query, symbol)
	}

	query := `SELECT ` + tradeColumns + `
		FROM ledger_trades
		WHERE symbol = $1 AND category = $2
		ORDER BY ts ASC, trade_id ASC
	`
	return s.queryTrades(ctx, "load trades by symbol", query, symbol, string(*category))
}

// GetCount returns the number of stored trades.
func (s *LedgerStore) GetCount(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_trades`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger trades: %w", err)
	}
	return n, nil
}

// CountUncalculated returns the number of trades with any calc_* column NULL.
func (s *LedgerStore) CountUncalculated(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ledger_trades
		WHERE calc_position_after IS NULL
		   OR calc_avg_price_after IS NULL
		   OR calc_realized IS NULL
		   OR calc_cumulative_after IS NULL
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count uncalculated trades: %w", err)
	}
	return n, nil
}

func (s *LedgerStore) queryTrades(ctx context.Context, op, query string, args ...any) ([]*domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrade scans a single row into a TradeRecord.
// A row with any NULL calc_* column yields a nil Calculated.
func scanTrade(row pgx.Row) (*domain.TradeRecord, error) {
	var (
		t                         domain.TradeRecord
		category, txType, side    string
		raw                       []byte
		posAfter, avgAfter        decimal.NullDecimal
		realized, cumulativeAfter decimal.NullDecimal
	)

	err := row.Scan(
		&t.ID, &t.Timestamp, &t.Symbol, &category, &txType, &side,
		&t.Quantity, &t.Price, &t.Fee, &t.SettleCoin, &t.Change, &t.CashFlow,
		&t.OrderID, &t.OrderLinkID, &t.ExecID,
		&t.Payload.Position, &t.Payload.Strike, &t.Payload.DeliveryPrice,
		&t.Payload.TradePrice, &t.Payload.Price, &t.Payload.ExecPrice, &raw,
		&posAfter, &avgAfter, &realized, &cumulativeAfter,
	)
	if err != nil {
		return nil, err
	}

	t.Category = domain.Category(category)
	t.Type = domain.TransactionType(txType)
	t.Side = domain.Side(side)
	if raw != nil {
		t.Raw = json.RawMessage(raw)
	}
	if posAfter.Valid && avgAfter.Valid && realized.Valid && cumulativeAfter.Valid {
		t.Calculated = &domain.Calculated{
			PositionAfter:   posAfter.Decimal,
			AvgPriceAfter:   avgAfter.Decimal,
			Realized:        realized.Decimal,
			CumulativeAfter: cumulativeAfter.Decimal,
		}
	}

	return &t, nil
}

// scanTrades scans multiple rows into a slice of TradeRecord.
func scanTrades(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger trade row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger trade rows: %w", err)
	}

	return trades, nil
}

// nullCalculated maps an optional Calculated to four nullable columns.
func nullCalculated(c *domain.Calculated) [4]decimal.NullDecimal {
	if c == nil {
		return [4]decimal.NullDecimal{}
	}
	return [4]decimal.NullDecimal{
		decimal.NewNullDecimal(c.PositionAfter),
		decimal.NewNullDecimal(c.AvgPriceAfter),
		decimal.NewNullDecimal(c.Realized),
		decimal.NewNullDecimal(c.CumulativeAfter),
	}
}

func rawParam(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
