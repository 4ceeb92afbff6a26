// Package ledger is the single owner of ledger mutations and the read API
// consumed by the HTTP layer and the command line tools.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"options-ledger/internal/domain"
	"options-ledger/internal/ingestion"
	"options-ledger/internal/observability"
	"options-ledger/internal/replay"
	"options-ledger/internal/reporting"
	"options-ledger/internal/storage"
	"options-ledger/internal/view"
)

// Options contains configuration for creating a Service.
type Options struct {
	TradeStore storage.LedgerStore
	MetaStore  storage.SyncMetaStore
	// DailyStore receives refreshed daily summaries after each mutation.
	// Optional.
	DailyStore storage.DailySummaryStore
	Source     ingestion.TransactionSource

	Categories  []domain.Category
	AccountType string
	PageLimit   int
	Window      time.Duration
	// PageSize is the paged view load size.
	PageSize int

	Now    func() time.Time
	Logger zerolog.Logger
}

// Outcome describes a mutation request.
// Skipped is set when another mutation was in flight; nothing ran.
type Outcome struct {
	Skipped bool
	Sync    *ingestion.SyncResult
	Recalc  *replay.Result
}

// Service serializes sync and recalculation and serves derived views.
//
// Mutations are mutually exclusive: a request made while another is in
// flight returns immediately with Skipped set. Reads wait for a running
// mutation to finish so they never observe a half-applied pass.
type Service struct {
	stateMu sync.Mutex
	state   State
	errMsg  string

	data sync.RWMutex

	trades storage.LedgerStore
	meta   storage.SyncMetaStore
	daily  storage.DailySummaryStore

	coordinator *ingestion.Coordinator
	recalc      *replay.Manager
	reports     *reporting.Aggregator
	view        *view.PagedCache
	events      *broker

	now    func() time.Time
	logger zerolog.Logger
}

// NewService wires the ledger components over the given stores.
func NewService(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	recalc := replay.NewManager(replay.ManagerOptions{
		TradeStore: opts.TradeStore,
		MetaStore:  opts.MetaStore,
		Logger:     opts.Logger,
	})

	return &Service{
		trades: opts.TradeStore,
		meta:   opts.MetaStore,
		daily:  opts.DailyStore,
		coordinator: ingestion.NewCoordinator(ingestion.CoordinatorOptions{
			Source:      opts.Source,
			TradeStore:  opts.TradeStore,
			MetaStore:   opts.MetaStore,
			Applier:     recalc,
			Categories:  opts.Categories,
			AccountType: opts.AccountType,
			PageLimit:   opts.PageLimit,
			Window:      opts.Window,
			Now:         now,
			Logger:      opts.Logger,
		}),
		recalc:  recalc,
		reports: reporting.NewAggregator(opts.TradeStore).WithClock(now),
		view:    view.NewPagedCache(opts.TradeStore, opts.PageSize),
		events:  newBroker(),
		now:     now,
		logger:  opts.Logger.With().Str("component", "ledger").Logger(),
	}
}

// Subscribe registers for change events. The returned function
// unsubscribes and closes the channel.
func (s *Service) Subscribe() (<-chan ChangeEvent, func()) {
	return s.events.subscribe()
}

// Load runs a pending recalculation, including the lazy one for trades
// that were never calculated.
func (s *Service) Load(ctx context.Context) (*Outcome, error) {
	return s.mutate(ctx, StateRecalculating, EventRecalculated, func(ctx context.Context, out *Outcome) (int, error) {
		res, err := s.recalc.RunIfRequired(ctx)
		out.Recalc = res
		if res == nil {
			return 0, err
		}
		return res.Replayed, err
	})
}

// SyncForward ingests new transactions up to now and applies them.
func (s *Service) SyncForward(ctx context.Context) (*Outcome, error) {
	return s.mutate(ctx, StateForwardSyncing, EventForwardSync, func(ctx context.Context, out *Outcome) (int, error) {
		res, err := s.coordinator.SyncForward(ctx)
		out.Sync = res
		if err != nil {
			return res.TradesIngested, err
		}
		out.Recalc, err = s.recalc.RunIfRequired(ctx)
		return res.TradesIngested, err
	})
}

// SyncBackward loads one page of older history per category and
// recomputes the ledger from the earliest ingested trade.
func (s *Service) SyncBackward(ctx context.Context) (*Outcome, error) {
	return s.mutate(ctx, StateBackwardSyncing, EventBackwardSync, func(ctx context.Context, out *Outcome) (int, error) {
		res, err := s.coordinator.SyncBackward(ctx)
		out.Sync = res
		if err != nil {
			return res.TradesIngested, err
		}
		out.Recalc, err = s.recalc.RunIfRequired(ctx)
		return res.TradesIngested, err
	})
}

// Recalculate replays the whole ledger, or the trades at or after from.
func (s *Service) Recalculate(ctx context.Context, from *time.Time) (*Outcome, error) {
	return s.mutate(ctx, StateRecalculating, EventRecalculated, func(ctx context.Context, out *Outcome) (int, error) {
		var err error
		if from == nil {
			out.Recalc, err = s.recalc.Full(ctx)
		} else {
			out.Recalc, err = s.recalc.FromDate(ctx, from.UnixMilli())
		}
		if err != nil {
			return 0, err
		}
		return out.Recalc.Replayed, nil
	})
}

// SetRegistrationDate stores the sync floor and recomputes the ledger
// from it. Sync watermarks and cursors are kept.
func (s *Service) SetRegistrationDate(ctx context.Context, t time.Time) (*Outcome, error) {
	if t.IsZero() {
		return nil, fmt.Errorf("%w: zero registration date", storage.ErrInvalidInput)
	}
	ts := t.UnixMilli()

	return s.mutate(ctx, StateRecalculating, EventRegistration, func(ctx context.Context, out *Outcome) (int, error) {
		meta, err := storage.LoadOrInitMeta(ctx, s.meta)
		if err != nil {
			return 0, fmt.Errorf("load meta: %w", err)
		}
		meta.RegistrationTime = &ts
		meta.MarkRecalcRequired(ts)
		if err := s.meta.SaveMeta(ctx, meta); err != nil {
			return 0, fmt.Errorf("save meta: %w", err)
		}

		out.Recalc, err = s.recalc.RunIfRequired(ctx)
		if err != nil || out.Recalc == nil {
			return 0, err
		}
		return out.Recalc.Replayed, nil
	})
}

// mutate runs fn in the target state. Derived views are invalidated after
// fn even when it fails, since completed sync windows stay persisted.
func (s *Service) mutate(ctx context.Context, target State, kind EventKind, fn func(context.Context, *Outcome) (int, error)) (*Outcome, error) {
	if !s.tryAcquire(target) {
		observability.RecordSkipped(target.String())
		s.logger.Debug().
			Str("requested", target.String()).
			Str("current", s.State().String()).
			Msg("mutation skipped, ledger busy")
		return &Outcome{Skipped: true}, nil
	}
	defer s.release()

	s.data.Lock()
	defer s.data.Unlock()

	out := &Outcome{}
	count, err := fn(ctx, out)

	changed := count > 0 || (out.Recalc != nil && out.Recalc.Replayed > 0)
	if rerr := s.refreshDerived(ctx, changed); rerr != nil && err == nil {
		err = rerr
	}
	s.setError(err)

	if err != nil {
		s.logger.Error().Err(err).Str("operation", target.String()).Msg("mutation failed")
	}
	if err == nil || count > 0 {
		s.events.publish(ChangeEvent{Kind: kind, At: s.now(), Count: count})
	}
	return out, err
}

// refreshDerived rebuilds the derived views. The paged view is kept when
// the ledger did not change, so offsets already handed out stay stable.
func (s *Service) refreshDerived(ctx context.Context, changed bool) error {
	s.reports.Invalidate()
	if changed {
		s.view.Reset()
	}

	n, err := s.trades.GetCount(ctx)
	if err != nil {
		return fmt.Errorf("count trades: %w", err)
	}
	observability.UpdateLedgerTrades(n)

	if s.daily == nil {
		return nil
	}
	summaries, err := s.reports.DailySummaries(ctx)
	if err != nil {
		return fmt.Errorf("build daily summaries: %w", err)
	}
	if len(summaries) == 0 {
		return nil
	}
	if err := s.daily.SaveDailySummaries(ctx, summaries); err != nil {
		return fmt.Errorf("save daily summaries: %w", err)
	}
	return nil
}

func (s *Service) setError(err error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if err != nil {
		s.errMsg = err.Error()
	} else {
		s.errMsg = ""
	}
}

// ErrorMessage returns the error of the last failed mutation, or "" after
// a successful one.
func (s *Service) ErrorMessage() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.errMsg
}

// EnsureRange loads the paged view far enough to serve [offset, offset+limit).
func (s *Service) EnsureRange(ctx context.Context, offset, limit int) error {
	s.data.RLock()
	defer s.data.RUnlock()
	return s.view.EnsureRange(ctx, offset, limit)
}

// GetRange returns loaded trades in [offset, offset+limit), newest first.
func (s *Service) GetRange(offset, limit int) []*domain.TradeRecord {
	s.data.RLock()
	defer s.data.RUnlock()
	return s.view.GetRange(offset, limit)
}

// ViewProgress reports how many trades the paged view holds and whether
// it has reached the oldest trade.
func (s *Service) ViewProgress() (loaded int, exhausted bool) {
	s.data.RLock()
	defer s.data.RUnlock()
	return s.view.Len(), s.view.Exhausted()
}

// GetTradesForSymbol returns a symbol's trades in replay order.
// A nil category matches every category.
func (s *Service) GetTradesForSymbol(ctx context.Context, symbol string, category *domain.Category) ([]*domain.TradeRecord, error) {
	s.data.RLock()
	defer s.data.RUnlock()
	return s.trades.LoadBySymbol(ctx, symbol, category)
}

// GetRawJSONForSymbol returns the original exchange payloads of a symbol's
// trades in replay order. Trades ingested without a payload are rendered
// from their stored fields.
func (s *Service) GetRawJSONForSymbol(ctx context.Context, symbol string, category *domain.Category) ([]json.RawMessage, error) {
	trades, err := s.GetTradesForSymbol(ctx, symbol, category)
	if err != nil {
		return nil, err
	}

	out := make([]json.RawMessage, 0, len(trades))
	for _, t := range trades {
		if len(t.Raw) > 0 {
			out = append(out, t.Raw)
			continue
		}
		b, err := json.Marshal(rawFromRecord(t))
		if err != nil {
			return nil, fmt.Errorf("render trade %s: %w", t.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// rawItem mirrors the exchange transaction-log item layout.
type rawItem struct {
	ID              string `json:"id"`
	Symbol          string `json:"symbol"`
	Category        string `json:"category"`
	Side            string `json:"side"`
	TransactionTime string `json:"transactionTime"`
	Type            string `json:"type"`
	Qty             string `json:"qty"`
	TradePrice      string `json:"tradePrice"`
	Fee             string `json:"fee"`
	Currency        string `json:"currency"`
	Change          string `json:"change"`
	CashFlow        string `json:"cashFlow"`
	OrderID         string `json:"orderId"`
	OrderLinkID     string `json:"orderLinkId"`
	TradeID         string `json:"tradeId"`
}

func rawFromRecord(t *domain.TradeRecord) rawItem {
	return rawItem{
		ID:              t.ID,
		Symbol:          t.Symbol,
		Category:        string(t.Category),
		Side:            string(t.Side),
		TransactionTime: fmt.Sprintf("%d", t.Timestamp),
		Type:            string(t.Type),
		Qty:             t.Quantity.String(),
		TradePrice:      t.Price.String(),
		Fee:             t.Fee.String(),
		Currency:        t.SettleCoin,
		Change:          t.Change.String(),
		CashFlow:        t.CashFlow.String(),
		OrderID:         t.OrderID,
		OrderLinkID:     t.OrderLinkID,
		TradeID:         t.ExecID,
	}
}

// GetSummaryBySymbol returns per-instrument aggregates.
func (s *Service) GetSummaryBySymbol(ctx context.Context) ([]domain.SummaryRow, error) {
	s.data.RLock()
	defer s.data.RUnlock()
	return s.reports.SummaryBySymbol(ctx)
}

// GetRealizedPnlBySettleCoin returns realized PnL per settlement currency.
func (s *Service) GetRealizedPnlBySettleCoin(ctx context.Context) ([]domain.CurrencyPnlRow, error) {
	s.data.RLock()
	defer s.data.RUnlock()
	return s.reports.PnlByCurrency(ctx)
}

// GetDailyRealizedPnlChart returns the rolling per-currency chart.
func (s *Service) GetDailyRealizedPnlChart(ctx context.Context) (*domain.DailyPnlChart, error) {
	s.data.RLock()
	defer s.data.RUnlock()
	return s.reports.DailyPnlChart(ctx)
}

// GetDailySummaries returns a symbol's per-day aggregates, read from the
// daily summary store when one is configured.
func (s *Service) GetDailySummaries(ctx context.Context, symbol string) ([]*domain.DailySummary, error) {
	s.data.RLock()
	defer s.data.RUnlock()

	if s.daily != nil {
		return s.daily.GetBySymbol(ctx, symbol)
	}
	all, err := s.reports.DailySummaries(ctx)
	if err != nil {
		return nil, err
	}
	var out []*domain.DailySummary
	for _, d := range all {
		if d.Symbol == symbol {
			out = append(out, d)
		}
	}
	return out, nil
}

// Report builds the full report.
func (s *Service) Report(ctx context.Context) (*reporting.Report, error) {
	s.data.RLock()
	defer s.data.RUnlock()
	return s.reports.Generate(ctx)
}

// TotalTransactionsCount returns the number of stored trades.
func (s *Service) TotalTransactionsCount(ctx context.Context) (int, error) {
	return s.trades.GetCount(ctx)
}

// IsRegistrationDateRequired reports whether forward sync has neither a
// registration date nor a stored watermark to start from.
func (s *Service) IsRegistrationDateRequired(ctx context.Context) (bool, error) {
	meta, err := storage.LoadOrInitMeta(ctx, s.meta)
	if err != nil {
		return false, err
	}
	return meta.RegistrationTime == nil && len(meta.ForwardWatermark) == 0, nil
}

// LastLoadedAt returns when forward sync last completed a window.
func (s *Service) LastLoadedAt(ctx context.Context) (*time.Time, error) {
	meta, err := storage.LoadOrInitMeta(ctx, s.meta)
	if err != nil {
		return nil, err
	}
	if meta.LastLoadedAt == nil {
		return nil, nil
	}
	t := time.UnixMilli(*meta.LastLoadedAt).UTC()
	return &t, nil
}

// Status is a point-in-time view of the service.
type Status struct {
	State                    string     `json:"state"`
	TotalTransactions        int        `json:"total_transactions"`
	RegistrationDateRequired bool       `json:"registration_date_required"`
	RegistrationDate         *time.Time `json:"registration_date,omitempty"`
	LastLoadedAt             *time.Time `json:"last_loaded_at,omitempty"`
	RecalcRequired           bool       `json:"recalc_required"`
	ErrorMessage             string     `json:"error_message,omitempty"`
}

// Status returns the current service status.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	count, err := s.trades.GetCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("count trades: %w", err)
	}
	meta, err := storage.LoadOrInitMeta(ctx, s.meta)
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	recalc, err := s.recalc.NeedsRecalculation(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		State:                    s.State().String(),
		TotalTransactions:        count,
		RegistrationDateRequired: meta.RegistrationTime == nil && len(meta.ForwardWatermark) == 0,
		RecalcRequired:           recalc,
		ErrorMessage:             s.ErrorMessage(),
	}
	if meta.RegistrationTime != nil {
		t := time.UnixMilli(*meta.RegistrationTime).UTC()
		st.RegistrationDate = &t
	}
	if meta.LastLoadedAt != nil {
		t := time.UnixMilli(*meta.LastLoadedAt).UTC()
		st.LastLoadedAt = &t
	}
	return st, nil
}
