package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"options-ledger/internal/domain"
	"options-ledger/internal/storage"
)

func newTrade(id string, ts int64, symbol string) *domain.TradeRecord {
	return &domain.TradeRecord{
		ID:         id,
		Timestamp:  ts,
		Symbol:     symbol,
		Category:   domain.CategoryLinear,
		Type:       domain.TypeTrade,
		Side:       domain.SideBuy,
		Quantity:   decimal.NewFromInt(1),
		Price:      decimal.NewFromInt(100),
		SettleCoin: "USDT",
	}
}

func TestLedgerStore_SaveTradesUpsertsByID(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	batch := []*domain.TradeRecord{newTrade("a", 1000, "BTCUSDT"), newTrade("b", 2000, "BTCUSDT")}
	if err := store.SaveTrades(ctx, batch); err != nil {
		t.Fatalf("SaveTrades failed: %v", err)
	}
	if err := store.SaveTrades(ctx, batch); err != nil {
		t.Fatalf("second SaveTrades failed: %v", err)
	}

	count, err := store.GetCount(ctx)
	if err != nil {
		t.Fatalf("GetCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count mismatch: got %d, want 2", count)
	}

	updated := newTrade("a", 1000, "BTCUSDT")
	updated.Price = decimal.NewFromInt(105)
	if err := store.SaveTrades(ctx, []*domain.TradeRecord{updated}); err != nil {
		t.Fatalf("SaveTrades failed: %v", err)
	}

	all, _ := store.LoadAllAscending(ctx)
	if !all[0].Price.Equal(decimal.NewFromInt(105)) {
		t.Errorf("upsert did not overwrite price: got %s", all[0].Price)
	}
}

func TestLedgerStore_SaveTradesRejectsMissingID(t *testing.T) {
	store := NewLedgerStore()

	err := store.SaveTrades(context.Background(), []*domain.TradeRecord{newTrade("", 1, "X")})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLedgerStore_LoadBeforeCursor(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	_ = store.SaveTrades(ctx, []*domain.TradeRecord{
		newTrade("a", 1000, "BTCUSDT"),
		newTrade("b", 2000, "BTCUSDT"),
		newTrade("c", 2000, "BTCUSDT"),
		newTrade("d", 3000, "BTCUSDT"),
	})

	latest, err := store.LoadLatest(ctx, 2)
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if len(latest) != 2 || latest[0].ID != "d" || latest[1].ID != "c" {
		t.Fatalf("unexpected latest: %v", ids(latest))
	}

	ts := int64(2000)
	id := "c"
	before, err := store.LoadBefore(ctx, &ts, &id, 10)
	if err != nil {
		t.Fatalf("LoadBefore failed: %v", err)
	}
	if got := ids(before); len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("unexpected page: %v", got)
	}

	tsOnly, _ := store.LoadBefore(ctx, &ts, nil, 10)
	if got := ids(tsOnly); len(got) != 1 || got[0] != "a" {
		t.Errorf("unexpected timestamp-only page: %v", got)
	}
}

func TestLedgerStore_LoadBySymbolAndCategory(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	spot := newTrade("s1", 1500, "BTCUSDT")
	spot.Category = domain.CategorySpot
	_ = store.SaveTrades(ctx, []*domain.TradeRecord{
		newTrade("l2", 2000, "BTCUSDT"),
		newTrade("l1", 1000, "BTCUSDT"),
		spot,
		newTrade("e1", 1200, "ETHUSDT"),
	})

	all, _ := store.LoadBySymbol(ctx, "BTCUSDT", nil)
	if got := ids(all); len(got) != 3 || got[0] != "l1" || got[1] != "s1" || got[2] != "l2" {
		t.Errorf("unexpected symbol trades: %v", got)
	}

	cat := domain.CategoryLinear
	linear, _ := store.LoadBySymbol(ctx, "BTCUSDT", &cat)
	if len(linear) != 2 {
		t.Errorf("expected 2 linear trades, got %d", len(linear))
	}
}

func TestLedgerStore_UpdateCalculated(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	_ = store.SaveTrades(ctx, []*domain.TradeRecord{newTrade("a", 1000, "BTCUSDT"), newTrade("b", 2000, "BTCUSDT")})

	n, _ := store.CountUncalculated(ctx)
	if n != 2 {
		t.Fatalf("expected 2 uncalculated, got %d", n)
	}

	err := store.UpdateCalculated(ctx, []storage.CalculatedUpdate{
		{ID: "a", Calculated: domain.Calculated{PositionAfter: decimal.NewFromInt(1)}},
		{ID: "missing"},
	})
	if err != nil {
		t.Fatalf("UpdateCalculated failed: %v", err)
	}

	n, _ = store.CountUncalculated(ctx)
	if n != 1 {
		t.Errorf("expected 1 uncalculated, got %d", n)
	}

	from, _ := store.LoadFrom(ctx, 1000)
	if from[0].Calculated == nil || !from[0].Calculated.PositionAfter.Equal(decimal.NewFromInt(1)) {
		t.Errorf("calculated not stored: %+v", from[0].Calculated)
	}
}

func TestLedgerStore_ReturnsCopies(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	_ = store.SaveTrades(ctx, []*domain.TradeRecord{newTrade("a", 1000, "BTCUSDT")})

	got, _ := store.LoadAllAscending(ctx)
	got[0].Symbol = "MUTATED"

	again, _ := store.LoadAllAscending(ctx)
	if again[0].Symbol != "BTCUSDT" {
		t.Errorf("store leaked internal record")
	}
}

func ids(trades []*domain.TradeRecord) []string {
	out := make([]string, len(trades))
	for i, t := range trades {
		out[i] = t.ID
	}
	return out
}
