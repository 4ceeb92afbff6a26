package reporting

import (
	"fmt"
	"strings"

	"options-ledger/internal/domain"
)

// RenderSummaryCSV renders per-symbol summary rows as CSV string.
func RenderSummaryCSV(rows []domain.SummaryRow) string {
	var sb strings.Builder

	sb.WriteString("category,symbol,settle_coin,trade_count,total_quantity,total_notional,total_fees,realized_pnl\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%d,%s,%s,%s,%s\n",
			r.Category,
			r.Symbol,
			r.SettleCoin,
			r.TradeCount,
			r.TotalQuantity.String(),
			r.TotalNotional.String(),
			r.TotalFees.String(),
			r.RealizedPnl.String(),
		))
	}

	return sb.String()
}

// RenderCurrencyPnlCSV renders per-currency PnL rows as CSV string.
func RenderCurrencyPnlCSV(rows []domain.CurrencyPnlRow) string {
	var sb strings.Builder

	sb.WriteString("settle_coin,realized_pnl,fees,net_pnl\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s\n",
			r.SettleCoin,
			r.RealizedPnl.String(),
			r.Fees.String(),
			r.NetPnl.String(),
		))
	}

	return sb.String()
}

// RenderDailyCSV renders daily summaries as CSV string.
func RenderDailyCSV(rows []*domain.DailySummary) string {
	var sb strings.Builder

	sb.WriteString("symbol,day,trade_count,total_size,total_notional,total_fees\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%s,%s,%s\n",
			r.Symbol,
			r.Day.Format("2006-01-02"),
			r.TradeCount,
			r.TotalSize.String(),
			r.TotalNotional.String(),
			r.TotalFees.String(),
		))
	}

	return sb.String()
}
