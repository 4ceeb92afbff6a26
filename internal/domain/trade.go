package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// TradeRecord is one ingested exchange transaction.
// All fields except Calculated are immutable once ingested.
type TradeRecord struct {
	ID        string // exchange unique key or derived hash
	Timestamp int64  // transaction time (ms)
	Symbol    string
	Category  Category
	Type      TransactionType
	Side      Side

	Quantity   decimal.Decimal // magnitude as reported; signed at replay time
	Price      decimal.Decimal
	Fee        decimal.Decimal
	SettleCoin string
	Change     decimal.Decimal
	CashFlow   decimal.Decimal

	OrderID     string
	OrderLinkID string
	ExecID      string

	// Payload holds the typed optional fields extracted from Raw at ingestion.
	Payload PayloadFields
	// Raw is the original exchange item, kept for audit.
	Raw json.RawMessage

	// Calculated is nil until the record has participated in a replay pass.
	Calculated *Calculated
}

// Calculated holds the replay-derived fields of a TradeRecord.
type Calculated struct {
	PositionAfter   decimal.Decimal // signed position size after this trade
	AvgPriceAfter   decimal.Decimal // weighted average entry price after this trade
	Realized        decimal.Decimal // realized PnL contributed by this trade
	CumulativeAfter decimal.Decimal // cumulative realized PnL net of fees for the settle coin
}

// PayloadFields are the optional raw-payload fields used by delivery valuation.
type PayloadFields struct {
	Position      decimal.NullDecimal
	Strike        decimal.NullDecimal
	DeliveryPrice decimal.NullDecimal
	TradePrice    decimal.NullDecimal
	Price         decimal.NullDecimal
	ExecPrice     decimal.NullDecimal
}

// SettlementPrice returns the first present price in the order
// deliveryPrice, tradePrice, price, execPrice.
func (p PayloadFields) SettlementPrice() (decimal.Decimal, bool) {
	for _, v := range []decimal.NullDecimal{p.DeliveryPrice, p.TradePrice, p.Price, p.ExecPrice} {
		if v.Valid {
			return v.Decimal, true
		}
	}
	return decimal.Zero, false
}

// InstrumentKey identifies the replay state bucket of a trade.
type InstrumentKey struct {
	Category Category
	Symbol   string
}

func (k InstrumentKey) String() string {
	return fmt.Sprintf("%s:%s", k.Category, k.Symbol)
}

// Key returns the instrument key of the trade.
func (t *TradeRecord) Key() InstrumentKey {
	return InstrumentKey{Category: t.Category, Symbol: t.Symbol}
}

// Cursor returns the (timestamp, id) position of the trade.
func (t *TradeRecord) Cursor() TradeCursor {
	return TradeCursor{Timestamp: t.Timestamp, ID: t.ID}
}

// Clone returns a deep copy of the record.
func (t *TradeRecord) Clone() *TradeRecord {
	c := *t
	if t.Raw != nil {
		c.Raw = append(json.RawMessage(nil), t.Raw...)
	}
	if t.Calculated != nil {
		calc := *t.Calculated
		c.Calculated = &calc
	}
	return &c
}

// TradeCursor anchors paging at a (timestamp, id) boundary.
type TradeCursor struct {
	Timestamp int64
	ID        string
}
