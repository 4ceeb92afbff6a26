package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-ledger/internal/domain"
	"options-ledger/internal/storage"
)

func TestSyncMetaStore_LoadNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSyncMetaStore(pool)

	_, err := store.LoadMeta(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSyncMetaStore_SaveAndLoad(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSyncMetaStore(pool)

	meta := domain.NewSyncMeta()
	meta.RegistrationTime = ptr(int64(1_700_000_000_000))
	meta.ForwardWatermark[domain.CategoryLinear] = 1_700_000_100_000
	meta.BackwardCursor[domain.CategoryOption] = domain.BackwardExhausted
	meta.OldestTimestamp[domain.CategorySpot] = 1_690_000_000_000
	meta.MarkRecalcRequired(1_695_000_000_000)
	meta.Snapshot = &domain.LedgerSnapshot{
		Positions: []domain.PositionSnapshot{{
			Category: domain.CategoryLinear,
			Symbol:   "BTCUSDT",
			Position: decimal.RequireFromString("-0.25"),
			AvgPrice: decimal.RequireFromString("64000.5"),
		}},
		Cumulative: map[string]decimal.Decimal{"USDT": decimal.RequireFromString("12.3456789012")},
		Through:    domain.TradeCursor{Timestamp: 1_700_000_050_000, ID: "x"},
	}

	require.NoError(t, store.SaveMeta(ctx, meta))

	got, err := store.LoadMeta(ctx)
	require.NoError(t, err)

	assert.Equal(t, *meta.RegistrationTime, *got.RegistrationTime)
	assert.Equal(t, meta.ForwardWatermark, got.ForwardWatermark)
	assert.Equal(t, domain.BackwardExhausted, got.BackwardCursor[domain.CategoryOption])
	assert.True(t, got.RecalcRequired)
	require.NotNil(t, got.RecalcFrom)
	assert.Equal(t, int64(1_695_000_000_000), *got.RecalcFrom)
	require.NotNil(t, got.Snapshot)
	assert.True(t, got.Snapshot.Positions[0].AvgPrice.Equal(decimal.RequireFromString("64000.5")))
	assert.True(t, got.Snapshot.Cumulative["USDT"].Equal(decimal.RequireFromString("12.3456789012")))
	assert.Equal(t, "x", got.Snapshot.Through.ID)
}

func TestSyncMetaStore_SaveOverwrites(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSyncMetaStore(pool)

	first := domain.NewSyncMeta()
	first.ForwardWatermark[domain.CategoryLinear] = 100
	require.NoError(t, store.SaveMeta(ctx, first))

	second := domain.NewSyncMeta()
	second.ForwardWatermark[domain.CategoryLinear] = 200
	require.NoError(t, store.SaveMeta(ctx, second))

	got, err := store.LoadMeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.ForwardWatermark[domain.CategoryLinear])
}

func TestDailySummaryStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewDailySummaryStore(pool)
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveDailySummaries(ctx, []*domain.DailySummary{
		{Symbol: "BTCUSDT", Day: day, TradeCount: 1, TotalSize: decimal.NewFromInt(1), TotalNotional: decimal.NewFromInt(100), TotalFees: decimal.Zero},
		{Symbol: "BTCUSDT", Day: day.AddDate(0, 0, 1), TradeCount: 2, TotalSize: decimal.NewFromInt(2), TotalNotional: decimal.NewFromInt(200), TotalFees: decimal.Zero},
	}))
	require.NoError(t, store.SaveDailySummaries(ctx, []*domain.DailySummary{
		{Symbol: "BTCUSDT", Day: day, TradeCount: 3, TotalSize: decimal.NewFromInt(3), TotalNotional: decimal.NewFromInt(300), TotalFees: decimal.NewFromInt(1)},
	}))

	got, err := store.GetBySymbol(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Day.Equal(day))
	assert.Equal(t, 3, got[0].TradeCount)
	assert.True(t, got[0].TotalFees.Equal(decimal.NewFromInt(1)))
}
