package ingestion

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"options-ledger/internal/domain"
)

func TestNormalize_Trade(t *testing.T) {
	raw := domain.RawTransaction{
		UniqueKey:       "tx-1",
		TransactionTime: "1700000000000",
		Symbol:          "BTCUSDT",
		Category:        domain.CategoryLinear,
		Type:            "trade",
		Side:            "Sell",
		Qty:             "0.5",
		TradePrice:      "42000.5",
		Fee:             "0.21",
		Currency:        "USDT",
		Change:          "-0.21",
		CashFlow:        "0",
		OrderID:         "o-1",
		TradeID:         "e-1",
		Payload:         json.RawMessage(`{"id":"tx-1","qty":"0.5"}`),
	}

	trade, diags := Normalize(raw)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	if trade.ID != "tx-1" || trade.Timestamp != 1700000000000 {
		t.Errorf("unexpected identity %s@%d", trade.ID, trade.Timestamp)
	}
	if trade.Type != domain.TypeTrade || trade.Side != domain.SideSell {
		t.Errorf("unexpected type/side %s/%s", trade.Type, trade.Side)
	}
	if !trade.Quantity.Equal(decimal.RequireFromString("0.5")) || !trade.Price.Equal(decimal.RequireFromString("42000.5")) {
		t.Errorf("unexpected qty/price %s/%s", trade.Quantity, trade.Price)
	}
	if trade.SettleCoin != "USDT" || trade.ExecID != "e-1" {
		t.Errorf("unexpected coin/exec %s/%s", trade.SettleCoin, trade.ExecID)
	}
	if string(trade.Raw) != string(raw.Payload) {
		t.Errorf("raw payload not preserved: %s", trade.Raw)
	}
	if trade.Calculated != nil {
		t.Error("expected no calculated fields at ingestion")
	}
}

func TestNormalize_DeliveryPayloadFields(t *testing.T) {
	raw := domain.RawTransaction{
		UniqueKey:       "d-1",
		TransactionTime: "1700000000000",
		Symbol:          "ETH-28JUN24-3000-C",
		Category:        domain.CategoryOption,
		Type:            "DELIVERY",
		Qty:             "2",
		Currency:        "USDC",
		Payload:         json.RawMessage(`{"position":"-2","strike":3000,"deliveryPrice":"","tradePrice":"3200.5","execPrice":null}`),
	}

	trade, diags := Normalize(raw)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}

	p := trade.Payload
	if !p.Position.Valid || !p.Position.Decimal.Equal(decimal.NewFromInt(-2)) {
		t.Errorf("unexpected position %+v", p.Position)
	}
	if !p.Strike.Valid || !p.Strike.Decimal.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("unexpected strike %+v", p.Strike)
	}
	if p.DeliveryPrice.Valid || p.ExecPrice.Valid || p.Price.Valid {
		t.Errorf("expected empty and null fields to be absent: %+v", p)
	}

	price, ok := p.SettlementPrice()
	if !ok || !price.Equal(decimal.RequireFromString("3200.5")) {
		t.Errorf("expected settlement fallback to trade price, got %s", price)
	}
}

func TestNormalize_MalformedValuesProduceDiagnostics(t *testing.T) {
	raw := domain.RawTransaction{
		UniqueKey:       "bad-1",
		TransactionTime: "yesterday",
		Symbol:          "BTCUSDT",
		Category:        domain.CategoryLinear,
		Type:            "TRADE",
		Side:            "Buy",
		Qty:             "1..0",
		TradePrice:      "100",
		Fee:             "",
		Payload:         json.RawMessage(`{"position":`),
	}

	trade, diags := Normalize(raw)
	if trade.Timestamp != 0 || !trade.Quantity.IsZero() || !trade.Fee.IsZero() {
		t.Errorf("expected defaults, got ts=%d qty=%s fee=%s", trade.Timestamp, trade.Quantity, trade.Fee)
	}

	fields := make(map[string]bool)
	for _, d := range diags {
		fields[d.Field] = true
		if d.UniqueKey != "bad-1" {
			t.Errorf("diagnostic not attributed: %+v", d)
		}
	}
	for _, f := range []string{"transactionTime", "qty", "payload"} {
		if !fields[f] {
			t.Errorf("expected diagnostic for %s, got %v", f, diags)
		}
	}
	if fields["fee"] {
		t.Error("empty fee should default silently")
	}
}

func TestNormalize_DerivesMissingID(t *testing.T) {
	raw := domain.RawTransaction{
		TransactionTime: "1700000000000",
		Symbol:          "BTCUSDT",
		Category:        domain.CategoryInverse,
		Type:            "SETTLEMENT",
		Fee:             "0.0001",
		Currency:        "BTC",
	}

	a, _ := Normalize(raw)
	b, _ := Normalize(raw)
	if len(a.ID) != 64 || a.ID != b.ID {
		t.Errorf("expected deterministic derived id, got %q and %q", a.ID, b.ID)
	}

	raw.Fee = "0.0002"
	c, _ := Normalize(raw)
	if c.ID != a.ID {
		t.Error("fee is not part of the derived identity")
	}
	raw.TransactionTime = "1700000000001"
	d, _ := Normalize(raw)
	if d.ID == a.ID {
		t.Error("expected different id for different timestamp")
	}
}

func TestNormalizeAll_DedupesAndSorts(t *testing.T) {
	raws := []domain.RawTransaction{
		{UniqueKey: "b", TransactionTime: "2000", Qty: "1"},
		{UniqueKey: "c", TransactionTime: "1000", Qty: "1"},
		{UniqueKey: "a", TransactionTime: "2000", Qty: "1"},
		{UniqueKey: "b", TransactionTime: "2000", Qty: "2"},
	}

	trades, _ := NormalizeAll(raws)
	if len(trades) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(trades))
	}
	want := []string{"c", "a", "b"}
	for i, id := range want {
		if trades[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, trades[i].ID)
		}
	}
	if !trades[2].Quantity.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected last duplicate to win, got qty %s", trades[2].Quantity)
	}
}
