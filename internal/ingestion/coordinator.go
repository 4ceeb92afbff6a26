package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"options-ledger/internal/domain"
	"options-ledger/internal/observability"
	"options-ledger/internal/storage"
)

var (
	// ErrRegistrationRequired is returned when no sync floor is known.
	ErrRegistrationRequired = errors.New("registration date required")
	// ErrMissingCredentials is returned when the source has no API credentials.
	ErrMissingCredentials = errors.New("exchange credentials missing")
)

// Sync directions, used for metrics and logging.
const (
	DirectionForward  = "forward"
	DirectionBackward = "backward"
)

// Defaults for Coordinator.
const (
	DefaultWindow      = 7 * 24 * time.Hour
	DefaultPageLimit   = 50
	DefaultAccountType = "UNIFIED"
	DefaultMaxPages    = 1000
)

// Coordinator drives forward and backward ingestion per category.
// It is not safe for concurrent use; the ledger service serializes calls.
type Coordinator struct {
	source      TransactionSource
	trades      storage.LedgerStore
	meta        storage.SyncMetaStore
	applier     BatchApplier
	categories  []domain.Category
	accountType string
	pageLimit   int
	window      time.Duration
	maxPages    int
	now         func() time.Time
	logger      zerolog.Logger
}

// CoordinatorOptions contains configuration for creating a Coordinator.
type CoordinatorOptions struct {
	Source     TransactionSource
	TradeStore storage.LedgerStore
	MetaStore  storage.SyncMetaStore
	// Applier receives each persisted forward window. Nil defers the work
	// to the next recalculation.
	Applier     BatchApplier
	Categories  []domain.Category
	AccountType string
	PageLimit   int
	Window      time.Duration
	// MaxPages bounds the pages drained per window.
	MaxPages int
	Now      func() time.Time
	Logger   zerolog.Logger
}

// NewCoordinator creates a sync coordinator.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	c := &Coordinator{
		source:      opts.Source,
		trades:      opts.TradeStore,
		meta:        opts.MetaStore,
		applier:     opts.Applier,
		categories:  opts.Categories,
		accountType: opts.AccountType,
		pageLimit:   opts.PageLimit,
		window:      opts.Window,
		maxPages:    opts.MaxPages,
		now:         opts.Now,
		logger:      opts.Logger.With().Str("component", "sync").Logger(),
	}
	if len(c.categories) == 0 {
		c.categories = domain.AllCategories()
	}
	if c.accountType == "" {
		c.accountType = DefaultAccountType
	}
	if c.pageLimit <= 0 {
		c.pageLimit = DefaultPageLimit
	}
	if c.window <= 0 {
		c.window = DefaultWindow
	}
	if c.maxPages <= 0 {
		c.maxPages = DefaultMaxPages
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// SyncResult contains statistics from a sync operation.
type SyncResult struct {
	Direction      string
	TradesIngested int
	Windows        int
	Pages          int
	// Exhausted lists categories whose history became fully loaded in this call.
	Exhausted   []domain.Category
	Diagnostics []Diagnostic
	Duration    time.Duration
}

// SyncForward catches every category up to now.
// Completed windows stay persisted when a later window fails.
func (c *Coordinator) SyncForward(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{Direction: DirectionForward}

	err := c.syncForward(ctx, result)
	result.Duration = time.Since(start)
	observability.RecordSyncRun(DirectionForward, err, result.Duration)
	return result, err
}

func (c *Coordinator) syncForward(ctx context.Context, result *SyncResult) error {
	if !sourceConfigured(c.source) {
		return ErrMissingCredentials
	}

	meta, err := storage.LoadOrInitMeta(ctx, c.meta)
	if err != nil {
		return fmt.Errorf("load meta: %w", err)
	}

	// Check every category before any network call.
	resume := make(map[domain.Category]int64, len(c.categories))
	for _, cat := range c.categories {
		from, ok := forwardResume(meta, cat)
		if !ok {
			return ErrRegistrationRequired
		}
		resume[cat] = from
	}

	now := c.now().UnixMilli()
	for _, cat := range c.categories {
		if err := c.forwardCategory(ctx, meta, cat, resume[cat], now, result); err != nil {
			return fmt.Errorf("forward sync %s: %w", cat, err)
		}
	}
	return nil
}

// forwardResume returns the stored watermark, else the registration time.
func forwardResume(meta *domain.SyncMeta, cat domain.Category) (int64, bool) {
	if wm, ok := meta.ForwardWatermark[cat]; ok {
		return wm, true
	}
	if meta.RegistrationTime != nil {
		return *meta.RegistrationTime, true
	}
	return 0, false
}

func (c *Coordinator) forwardCategory(ctx context.Context, meta *domain.SyncMeta, cat domain.Category, from, now int64, result *SyncResult) error {
	windowMs := c.window.Milliseconds()

	for start := from; start < now; {
		end := start + windowMs
		if end > now {
			end = now
		}

		raws, pages, err := c.drainWindow(ctx, cat, start, end-1)
		result.Pages += pages
		if err != nil {
			return err
		}

		trades, diags := NormalizeAll(raws)
		c.logDiagnostics(diags)
		result.Diagnostics = append(result.Diagnostics, diags...)

		next := end
		if len(trades) > 0 {
			if err := c.persist(ctx, meta, cat, trades, DirectionForward); err != nil {
				return err
			}
			if c.applier != nil {
				if err := c.applier.ApplyBatch(ctx, meta, trades); err != nil {
					return fmt.Errorf("apply batch: %w", err)
				}
			} else {
				meta.MarkRecalcRequired(trades[0].Timestamp)
			}
			if wm := trades[len(trades)-1].Timestamp + 1; wm > start {
				next = wm
			}
		}

		meta.ForwardWatermark[cat] = next
		loadedAt := c.now().UnixMilli()
		meta.LastLoadedAt = &loadedAt
		if err := c.meta.SaveMeta(ctx, meta); err != nil {
			return fmt.Errorf("save meta: %w", err)
		}

		result.Windows++
		result.TradesIngested += len(trades)
		observability.RecordWindow(string(cat))

		c.logger.Debug().
			Str("category", string(cat)).
			Int64("window_start", start).
			Int64("window_end", end).
			Int("pages", pages).
			Int("trades", len(trades)).
			Int64("watermark", next).
			Msg("forward window drained")

		start = next
	}
	return nil
}

// drainWindow pages through [start, end] until no next cursor is returned.
func (c *Coordinator) drainWindow(ctx context.Context, cat domain.Category, start, end int64) ([]domain.RawTransaction, int, error) {
	var items []domain.RawTransaction
	cursor := ""
	seen := make(map[string]bool)

	for pages := 0; ; {
		if err := ctx.Err(); err != nil {
			return nil, pages, err
		}
		if pages >= c.maxPages {
			return nil, pages, fmt.Errorf("window %d-%d exceeded %d pages", start, end, c.maxPages)
		}

		page, err := c.source.FetchTransactions(ctx, domain.Query{
			AccountType: c.accountType,
			Category:    cat,
			Limit:       c.pageLimit,
			Cursor:      cursor,
			StartTime:   &start,
			EndTime:     &end,
		})
		pages++
		if err != nil {
			return nil, pages, err
		}
		observability.RecordPage(DirectionForward, string(cat))

		items = append(items, withCategory(page.Items, cat)...)
		if page.NextCursor == "" {
			return items, pages, nil
		}
		if seen[page.NextCursor] {
			return nil, pages, fmt.Errorf("exchange repeated cursor %q", page.NextCursor)
		}
		seen[page.NextCursor] = true
		cursor = page.NextCursor
	}
}

// SyncBackward loads one older page per category that is not exhausted.
// Ingested trades mark the ledger for recalculation from their earliest
// timestamp; the caller decides when to recompute.
func (c *Coordinator) SyncBackward(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{Direction: DirectionBackward}

	err := c.syncBackward(ctx, result)
	result.Duration = time.Since(start)
	observability.RecordSyncRun(DirectionBackward, err, result.Duration)
	return result, err
}

func (c *Coordinator) syncBackward(ctx context.Context, result *SyncResult) error {
	if !sourceConfigured(c.source) {
		return ErrMissingCredentials
	}

	meta, err := storage.LoadOrInitMeta(ctx, c.meta)
	if err != nil {
		return fmt.Errorf("load meta: %w", err)
	}

	for _, cat := range c.categories {
		cursor := meta.BackwardCursor[cat]
		if cursor == domain.BackwardExhausted {
			continue
		}
		if cursor == "" {
			if _, ok := backwardBound(meta, cat); !ok {
				return ErrRegistrationRequired
			}
		}
	}

	for _, cat := range c.categories {
		if err := c.backwardCategory(ctx, meta, cat, result); err != nil {
			return fmt.Errorf("backward sync %s: %w", cat, err)
		}
	}
	return nil
}

// backwardBound returns the oldest known timestamp, else the registration time.
func backwardBound(meta *domain.SyncMeta, cat domain.Category) (int64, bool) {
	if oldest, ok := meta.OldestTimestamp[cat]; ok {
		return oldest, true
	}
	if meta.RegistrationTime != nil {
		return *meta.RegistrationTime, true
	}
	return 0, false
}

func (c *Coordinator) backwardCategory(ctx context.Context, meta *domain.SyncMeta, cat domain.Category, result *SyncResult) error {
	cursor := meta.BackwardCursor[cat]
	if cursor == domain.BackwardExhausted {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q := domain.Query{
		AccountType: c.accountType,
		Category:    cat,
		Limit:       c.pageLimit,
		Cursor:      cursor,
	}
	if cursor == "" {
		bound, _ := backwardBound(meta, cat)
		q.EndTime = &bound
	}

	page, err := c.source.FetchTransactions(ctx, q)
	result.Pages++
	if err != nil {
		return err
	}
	observability.RecordPage(DirectionBackward, string(cat))

	trades, diags := NormalizeAll(withCategory(page.Items, cat))
	c.logDiagnostics(diags)
	result.Diagnostics = append(result.Diagnostics, diags...)

	if len(trades) > 0 {
		if err := c.persist(ctx, meta, cat, trades, DirectionBackward); err != nil {
			return err
		}
		meta.MarkRecalcRequired(trades[0].Timestamp)
	}

	if page.NextCursor == "" {
		meta.BackwardCursor[cat] = domain.BackwardExhausted
		result.Exhausted = append(result.Exhausted, cat)
	} else {
		meta.BackwardCursor[cat] = page.NextCursor
	}

	if err := c.meta.SaveMeta(ctx, meta); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	result.TradesIngested += len(trades)

	c.logger.Info().
		Str("category", string(cat)).
		Int("trades", len(trades)).
		Bool("exhausted", page.NextCursor == "").
		Msg("backward page loaded")
	return nil
}

// persist upserts trades and records the oldest timestamp seen.
func (c *Coordinator) persist(ctx context.Context, meta *domain.SyncMeta, cat domain.Category, trades []*domain.TradeRecord, direction string) error {
	if err := c.trades.SaveTrades(ctx, trades); err != nil {
		return fmt.Errorf("save trades: %w", err)
	}
	meta.ObserveOldest(cat, trades[0].Timestamp)
	observability.RecordTradesIngested(direction, string(cat), len(trades))
	return nil
}

func (c *Coordinator) logDiagnostics(diags []Diagnostic) {
	for _, d := range diags {
		c.logger.Warn().
			Str("id", d.UniqueKey).
			Str("field", d.Field).
			Str("value", d.Value).
			Msg(d.Message)
	}
}

// withCategory fills in the category of items that did not carry one.
func withCategory(items []domain.RawTransaction, cat domain.Category) []domain.RawTransaction {
	for i := range items {
		if items[i].Category == "" {
			items[i].Category = cat
		}
	}
	return items
}
