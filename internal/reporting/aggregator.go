// Package reporting derives summary views from the ledger.
package reporting

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"options-ledger/internal/domain"
	"options-ledger/internal/observability"
	"options-ledger/internal/storage"
)

// Cache keys. The chart key is suffixed with its UTC day.
const (
	summaryCacheKey  = "summary_by_symbol"
	currencyCacheKey = "pnl_by_currency"
	dailyCacheKey    = "daily_summaries"
	chartCacheKey    = "daily_pnl_chart"
)

// Aggregator computes and caches the derived views of the ledger.
// All views are invalidated together.
type Aggregator struct {
	trades storage.LedgerStore
	cache  *cache.Cache
	now    func() time.Time // Injectable clock for deterministic output
	days   int
}

// NewAggregator creates a reporting aggregator over trades.
func NewAggregator(trades storage.LedgerStore) *Aggregator {
	return &Aggregator{
		trades: trades,
		cache:  cache.New(cache.NoExpiration, 10*time.Minute),
		now:    func() time.Time { return time.Now().UTC() },
		days:   ChartDays,
	}
}

// WithClock sets a custom clock function for deterministic output.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Invalidate drops every cached view.
func (a *Aggregator) Invalidate() {
	a.cache.Flush()
}

// SummaryBySymbol returns per (category, symbol, settle coin) rows.
func (a *Aggregator) SummaryBySymbol(ctx context.Context) ([]domain.SummaryRow, error) {
	v, err := a.cached(ctx, summaryCacheKey, summaryCacheKey, func(trades []*domain.TradeRecord) interface{} {
		return BuildSummary(trades)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.SummaryRow), nil
}

// PnlByCurrency returns per settle coin realized PnL rows.
func (a *Aggregator) PnlByCurrency(ctx context.Context) ([]domain.CurrencyPnlRow, error) {
	v, err := a.cached(ctx, currencyCacheKey, currencyCacheKey, func(trades []*domain.TradeRecord) interface{} {
		return BuildCurrencyPnl(trades)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.CurrencyPnlRow), nil
}

// DailySummaries returns per (symbol, UTC day) aggregates.
func (a *Aggregator) DailySummaries(ctx context.Context) ([]*domain.DailySummary, error) {
	v, err := a.cached(ctx, dailyCacheKey, dailyCacheKey, func(trades []*domain.TradeRecord) interface{} {
		return BuildDailySummaries(trades)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*domain.DailySummary), nil
}

// DailyPnlChart returns the rolling realized PnL chart ending today (UTC).
func (a *Aggregator) DailyPnlChart(ctx context.Context) (*domain.DailyPnlChart, error) {
	now := a.now()
	key := chartCacheKey + ":" + now.UTC().Format("2006-01-02")
	v, err := a.cached(ctx, chartCacheKey, key, func(trades []*domain.TradeRecord) interface{} {
		return BuildDailyPnlChart(trades, now, a.days)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.DailyPnlChart), nil
}

// Generate builds a complete report.
func (a *Aggregator) Generate(ctx context.Context) (*Report, error) {
	summary, err := a.SummaryBySymbol(ctx)
	if err != nil {
		return nil, err
	}
	currency, err := a.PnlByCurrency(ctx)
	if err != nil {
		return nil, err
	}
	daily, err := a.DailySummaries(ctx)
	if err != nil {
		return nil, err
	}
	chart, err := a.DailyPnlChart(ctx)
	if err != nil {
		return nil, err
	}

	count := 0
	for _, row := range summary {
		count += row.TradeCount
	}

	return &Report{
		GeneratedAt: a.now(),
		TradeCount:  count,
		Summary:     summary,
		CurrencyPnl: currency,
		Daily:       daily,
		Chart:       chart,
	}, nil
}

func (a *Aggregator) cached(ctx context.Context, name, key string, build func([]*domain.TradeRecord) interface{}) (interface{}, error) {
	if v, ok := a.cache.Get(key); ok {
		observability.RecordCacheLookup(name, true)
		return v, nil
	}
	observability.RecordCacheLookup(name, false)

	trades, err := a.trades.LoadAllAscending(ctx)
	if err != nil {
		return nil, err
	}
	v := build(trades)
	a.cache.Set(key, v, cache.NoExpiration)
	return v, nil
}
