package reporting

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"options-ledger/internal/domain"
)

// ChartDays is the length of the rolling daily PnL chart.
const ChartDays = 30

const dayMs = int64(24 * time.Hour / time.Millisecond)

// realized returns the realized PnL contributed by a trade, zero if uncalculated.
func realized(t *domain.TradeRecord) decimal.Decimal {
	if t.Calculated == nil {
		return decimal.Zero
	}
	return t.Calculated.Realized
}

func notional(t *domain.TradeRecord) decimal.Decimal {
	return t.Price.Mul(t.Quantity).Abs()
}

// utcDay returns the UTC midnight of a millisecond timestamp.
func utcDay(ts int64) time.Time {
	return time.UnixMilli(ts - floorMod(ts, dayMs)).UTC()
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// BuildSummary groups trades by (category, symbol, settle coin).
func BuildSummary(trades []*domain.TradeRecord) []domain.SummaryRow {
	type key struct {
		category domain.Category
		symbol   string
		coin     string
	}
	groups := make(map[key]*domain.SummaryRow)

	for _, t := range trades {
		k := key{t.Category, t.Symbol, t.SettleCoin}
		row, ok := groups[k]
		if !ok {
			row = &domain.SummaryRow{Category: t.Category, Symbol: t.Symbol, SettleCoin: t.SettleCoin}
			groups[k] = row
		}
		row.TradeCount++
		row.TotalQuantity = row.TotalQuantity.Add(t.Quantity.Abs())
		row.TotalNotional = row.TotalNotional.Add(notional(t))
		row.TotalFees = row.TotalFees.Add(t.Fee)
		row.RealizedPnl = row.RealizedPnl.Add(realized(t))
	}

	rows := make([]domain.SummaryRow, 0, len(groups))
	for _, row := range groups {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.TradeCount != b.TradeCount {
			return a.TradeCount > b.TradeCount
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.SettleCoin < b.SettleCoin
	})
	return rows
}

// BuildCurrencyPnl groups realized PnL and fees by settle coin.
func BuildCurrencyPnl(trades []*domain.TradeRecord) []domain.CurrencyPnlRow {
	groups := make(map[string]*domain.CurrencyPnlRow)
	for _, t := range trades {
		row, ok := groups[t.SettleCoin]
		if !ok {
			row = &domain.CurrencyPnlRow{SettleCoin: t.SettleCoin}
			groups[t.SettleCoin] = row
		}
		row.RealizedPnl = row.RealizedPnl.Add(realized(t))
		row.Fees = row.Fees.Add(t.Fee)
	}

	rows := make([]domain.CurrencyPnlRow, 0, len(groups))
	for _, row := range groups {
		row.NetPnl = row.RealizedPnl.Sub(row.Fees)
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].SettleCoin < rows[j].SettleCoin
	})
	return rows
}

// BuildDailySummaries groups trades by (symbol, UTC day).
func BuildDailySummaries(trades []*domain.TradeRecord) []*domain.DailySummary {
	type key struct {
		symbol string
		day    int64
	}
	groups := make(map[key]*domain.DailySummary)

	for _, t := range trades {
		day := utcDay(t.Timestamp)
		k := key{t.Symbol, day.UnixMilli()}
		s, ok := groups[k]
		if !ok {
			s = &domain.DailySummary{Symbol: t.Symbol, Day: day}
			groups[k] = s
		}
		s.TradeCount++
		s.TotalSize = s.TotalSize.Add(t.Quantity.Abs())
		s.TotalNotional = s.TotalNotional.Add(notional(t))
		s.TotalFees = s.TotalFees.Add(t.Fee)
	}

	out := make([]*domain.DailySummary, 0, len(groups))
	for _, s := range groups {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Day.Before(out[j].Day)
	})
	return out
}

// BuildDailyPnlChart buckets realized PnL per settle coin into the UTC days
// of the window of length days ending on now's UTC day. Trades outside the
// window are ignored. Min and Max always include zero.
func BuildDailyPnlChart(trades []*domain.TradeRecord, now time.Time, days int) *domain.DailyPnlChart {
	if days <= 0 {
		days = ChartDays
	}
	today := utcDay(now.UnixMilli())
	first := today.AddDate(0, 0, -(days - 1))
	startMs := first.UnixMilli()
	endMs := today.UnixMilli() + dayMs

	chart := &domain.DailyPnlChart{
		Days: make([]time.Time, days),
		Min:  decimal.Zero,
		Max:  decimal.Zero,
	}
	for i := range chart.Days {
		chart.Days[i] = first.AddDate(0, 0, i)
	}

	series := make(map[string][]decimal.Decimal)
	for _, t := range trades {
		if t.Timestamp < startMs || t.Timestamp >= endMs {
			continue
		}
		values, ok := series[t.SettleCoin]
		if !ok {
			values = make([]decimal.Decimal, days)
			series[t.SettleCoin] = values
		}
		idx := int((t.Timestamp - startMs) / dayMs)
		values[idx] = values[idx].Add(realized(t))
	}

	coins := make([]string, 0, len(series))
	for coin := range series {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	for _, coin := range coins {
		values := series[coin]
		for _, v := range values {
			if v.LessThan(chart.Min) {
				chart.Min = v
			}
			if v.GreaterThan(chart.Max) {
				chart.Max = v
			}
		}
		chart.Series = append(chart.Series, domain.PnlSeries{SettleCoin: coin, Values: values})
	}
	return chart
}
