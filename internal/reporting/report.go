package reporting

import (
	"time"

	"options-ledger/internal/domain"
)

// Report bundles every derived ledger view for export.
type Report struct {
	GeneratedAt time.Time
	TradeCount  int

	// Sorted by trade count desc, then category and symbol
	Summary []domain.SummaryRow
	// Sorted by settle coin
	CurrencyPnl []domain.CurrencyPnlRow
	// Sorted by symbol, then day
	Daily []*domain.DailySummary
	Chart *domain.DailyPnlChart
}
