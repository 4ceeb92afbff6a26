package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Ledger Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Transactions: %d\n\n", r.TradeCount))

	// Realized PnL by settle coin
	sb.WriteString("## Realized PnL by Currency\n\n")
	if len(r.CurrencyPnl) > 0 {
		sb.WriteString("| Currency | Realized | Fees | Net |\n")
		sb.WriteString("|----------|----------|------|-----|\n")
		for _, c := range r.CurrencyPnl {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				c.SettleCoin, c.RealizedPnl.String(), c.Fees.String(), c.NetPnl.String()))
		}
	} else {
		sb.WriteString("No transactions.\n")
	}
	sb.WriteString("\n")

	// Per-symbol summary
	sb.WriteString("## Summary by Symbol\n\n")
	if len(r.Summary) > 0 {
		sb.WriteString("| Category | Symbol | Currency | Trades | Quantity | Notional | Fees | Realized |\n")
		sb.WriteString("|----------|--------|----------|--------|----------|----------|------|----------|\n")
		for _, s := range r.Summary {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %s | %s | %s | %s |\n",
				s.Category, s.Symbol, s.SettleCoin, s.TradeCount,
				s.TotalQuantity.String(), s.TotalNotional.String(), s.TotalFees.String(), s.RealizedPnl.String()))
		}
	} else {
		sb.WriteString("No transactions.\n")
	}
	sb.WriteString("\n")

	// Rolling chart, non-zero days only
	if r.Chart != nil && len(r.Chart.Series) > 0 {
		sb.WriteString(fmt.Sprintf("## Daily Realized PnL (last %d days)\n\n", len(r.Chart.Days)))
		sb.WriteString("| Day | Currency | Realized |\n")
		sb.WriteString("|-----|----------|----------|\n")
		for i, day := range r.Chart.Days {
			for _, s := range r.Chart.Series {
				if s.Values[i].IsZero() {
					continue
				}
				sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
					day.Format("2006-01-02"), s.SettleCoin, s.Values[i].String()))
			}
		}
		sb.WriteString(fmt.Sprintf("\nRange: %s .. %s\n", r.Chart.Min.String(), r.Chart.Max.String()))
	}

	return sb.String()
}
