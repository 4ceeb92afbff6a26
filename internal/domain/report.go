package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SummaryRow aggregates trades of one (category, symbol, settle coin).
type SummaryRow struct {
	Category      Category        `json:"category"`
	Symbol        string          `json:"symbol"`
	SettleCoin    string          `json:"settle_coin"`
	TradeCount    int             `json:"trade_count"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	TotalNotional decimal.Decimal `json:"total_notional"`
	TotalFees     decimal.Decimal `json:"total_fees"`
	RealizedPnl   decimal.Decimal `json:"realized_pnl"`
}

// CurrencyPnlRow aggregates realized PnL per settle coin.
type CurrencyPnlRow struct {
	SettleCoin  string          `json:"settle_coin"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
	Fees        decimal.Decimal `json:"fees"`
	NetPnl      decimal.Decimal `json:"net_pnl"`
}

// DailySummary aggregates trades of one symbol on one UTC day.
type DailySummary struct {
	Symbol        string          `json:"symbol"`
	Day           time.Time       `json:"day"` // UTC midnight
	TradeCount    int             `json:"trade_count"`
	TotalSize     decimal.Decimal `json:"total_size"`
	TotalNotional decimal.Decimal `json:"total_notional"`
	TotalFees     decimal.Decimal `json:"total_fees"`
}

// DailyPnlChart is the rolling per-currency realized PnL chart.
type DailyPnlChart struct {
	Days   []time.Time     `json:"days"` // UTC midnights, ascending
	Series []PnlSeries     `json:"series"`
	Min    decimal.Decimal `json:"min"` // <= 0
	Max    decimal.Decimal `json:"max"` // >= 0
}

// PnlSeries holds one realized PnL value per chart day.
type PnlSeries struct {
	SettleCoin string            `json:"settle_coin"`
	Values     []decimal.Decimal `json:"values"`
}
