// Package replay recomputes the calculated fields of the ledger.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"options-ledger/internal/accounting"
	"options-ledger/internal/domain"
	"options-ledger/internal/observability"
	"options-ledger/internal/storage"
)

// Mode identifies how a recalculation pass was run.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeFromDate    Mode = "from_date"
	ModeIncremental Mode = "incremental"
)

// Result describes a recalculation pass.
type Result struct {
	Mode Mode
	// From is the cutoff of a from-date pass.
	From        *int64
	Replayed    int
	Diagnostics []accounting.Diagnostic
	Duration    time.Duration
}

// Manager runs full, from-date and incremental recalculations.
// It is not safe for concurrent use; the ledger service serializes calls.
type Manager struct {
	trades storage.LedgerStore
	meta   storage.SyncMetaStore
	logger zerolog.Logger
}

// ManagerOptions contains configuration for creating a Manager.
type ManagerOptions struct {
	TradeStore storage.LedgerStore
	MetaStore  storage.SyncMetaStore
	Logger     zerolog.Logger
}

// NewManager creates a recalculation manager.
func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		trades: opts.TradeStore,
		meta:   opts.MetaStore,
		logger: opts.Logger.With().Str("component", "recalc").Logger(),
	}
}

// Full replays the whole ledger from an empty state.
func (m *Manager) Full(ctx context.Context) (*Result, error) {
	return m.withMeta(ctx, func(meta *domain.SyncMeta) (*Result, error) {
		return m.full(ctx, meta)
	})
}

// FromDate replays trades with timestamp >= from, seeded by the trades before it.
func (m *Manager) FromDate(ctx context.Context, from int64) (*Result, error) {
	return m.withMeta(ctx, func(meta *domain.SyncMeta) (*Result, error) {
		return m.fromDate(ctx, meta, from)
	})
}

// RunIfRequired runs the pending recalculation, if any. A ledger holding
// uncalculated trades is recomputed in full. Returns nil when nothing was due.
func (m *Manager) RunIfRequired(ctx context.Context) (*Result, error) {
	uncalculated, err := m.trades.CountUncalculated(ctx)
	if err != nil {
		return nil, fmt.Errorf("count uncalculated: %w", err)
	}

	meta, err := storage.LoadOrInitMeta(ctx, m.meta)
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	if !meta.RecalcRequired && uncalculated == 0 {
		return nil, nil
	}

	var res *Result
	if uncalculated == 0 && meta.RecalcFrom != nil {
		res, err = m.fromDate(ctx, meta, *meta.RecalcFrom)
	} else {
		res, err = m.full(ctx, meta)
	}
	if err != nil {
		return nil, err
	}
	if err := m.meta.SaveMeta(ctx, meta); err != nil {
		return nil, fmt.Errorf("save meta: %w", err)
	}
	return res, nil
}

// NeedsRecalculation reports whether the flag is set or any trade lacks
// calculated fields.
func (m *Manager) NeedsRecalculation(ctx context.Context) (bool, error) {
	meta, err := storage.LoadOrInitMeta(ctx, m.meta)
	if err != nil {
		return false, fmt.Errorf("load meta: %w", err)
	}
	if meta.RecalcRequired {
		return true, nil
	}
	n, err := m.trades.CountUncalculated(ctx)
	if err != nil {
		return false, fmt.Errorf("count uncalculated: %w", err)
	}
	return n > 0, nil
}

// ApplyBatch folds a freshly persisted batch into the ledger. When the batch
// sorts strictly after the snapshot checkpoint only the batch is replayed;
// otherwise the ledger is recomputed from the batch's earliest timestamp.
// A pending recalculation is folded into the same pass. meta is updated in
// place and not saved.
func (m *Manager) ApplyBatch(ctx context.Context, meta *domain.SyncMeta, batch []*domain.TradeRecord) error {
	if len(batch) == 0 {
		return nil
	}
	batch = append([]*domain.TradeRecord(nil), batch...)
	domain.SortTrades(batch)
	earliest := batch[0].Timestamp

	var err error
	switch {
	case meta.RecalcRequired && meta.RecalcFrom == nil:
		_, err = m.full(ctx, meta)
	case meta.RecalcRequired:
		from := *meta.RecalcFrom
		if earliest < from {
			from = earliest
		}
		_, err = m.fromDate(ctx, meta, from)
	case meta.Snapshot != nil && domain.CompareCursors(batch[0].Cursor(), meta.Snapshot.Through) > 0:
		_, err = m.incremental(ctx, meta, batch)
	default:
		_, err = m.fromDate(ctx, meta, earliest)
	}
	return err
}

func (m *Manager) withMeta(ctx context.Context, fn func(*domain.SyncMeta) (*Result, error)) (*Result, error) {
	meta, err := storage.LoadOrInitMeta(ctx, m.meta)
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	res, err := fn(meta)
	if err != nil {
		return nil, err
	}
	if err := m.meta.SaveMeta(ctx, meta); err != nil {
		return nil, fmt.Errorf("save meta: %w", err)
	}
	return res, nil
}

func (m *Manager) full(ctx context.Context, meta *domain.SyncMeta) (res *Result, err error) {
	start := time.Now()
	defer func() { m.record(ModeFull, res, err, start) }()

	trades, err := m.trades.LoadAllAscending(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	out, err := accounting.Replay(trades, nil)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if err := m.persist(ctx, trades, out); err != nil {
		return nil, err
	}
	commit(meta, out.State, trades)

	return &Result{Mode: ModeFull, Replayed: len(trades), Diagnostics: out.Diagnostics}, nil
}

func (m *Manager) fromDate(ctx context.Context, meta *domain.SyncMeta, from int64) (res *Result, err error) {
	start := time.Now()

	if snap := meta.Snapshot; snap != nil && snap.Through.Timestamp < from {
		tail, ok, err := m.tailAfterCheckpoint(ctx, snap.Through)
		if err != nil {
			return nil, err
		}
		if ok {
			defer func() { m.record(ModeFromDate, res, err, start) }()
			return m.replayTail(ctx, meta, from, tail)
		}
	}

	all, err := m.trades.LoadAllAscending(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	split := len(all)
	for i, t := range all {
		if t.Timestamp >= from {
			split = i
			break
		}
	}
	before, after := all[:split], all[split:]

	// The stored calculated fields of the earlier trades act as the
	// checkpoint. Without them the pass cannot be partial.
	seed, ok := accounting.StateFromCalculated(before)
	if !ok {
		m.logger.Info().Int64("from", from).Msg("earlier trades uncalculated, escalating to full recalculation")
		return m.full(ctx, meta)
	}
	defer func() { m.record(ModeFromDate, res, err, start) }()

	out, err := accounting.Replay(after, seed)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if err := m.persist(ctx, after, out); err != nil {
		return nil, err
	}
	commit(meta, out.State, all)

	return &Result{Mode: ModeFromDate, From: &from, Replayed: len(after), Diagnostics: out.Diagnostics}, nil
}

// tailAfterCheckpoint loads the trades sorting after through. ok is false
// when a trade at or before through lacks calculated fields: the snapshot
// no longer describes the stored ledger.
func (m *Manager) tailAfterCheckpoint(ctx context.Context, through domain.TradeCursor) ([]*domain.TradeRecord, bool, error) {
	loaded, err := m.trades.LoadFrom(ctx, through.Timestamp)
	if err != nil {
		return nil, false, fmt.Errorf("load trades from checkpoint: %w", err)
	}
	uncalculated, err := m.trades.CountUncalculated(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("count uncalculated: %w", err)
	}

	var tail []*domain.TradeRecord
	for _, t := range loaded {
		if domain.CompareCursors(t.Cursor(), through) <= 0 {
			continue
		}
		tail = append(tail, t)
		if t.Calculated == nil {
			uncalculated--
		}
	}
	return tail, uncalculated == 0, nil
}

// replayTail folds the trades after the snapshot checkpoint into the snapshot.
func (m *Manager) replayTail(ctx context.Context, meta *domain.SyncMeta, from int64, tail []*domain.TradeRecord) (*Result, error) {
	out, err := accounting.Replay(tail, accounting.StateFromSnapshot(meta.Snapshot))
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if err := m.persist(ctx, tail, out); err != nil {
		return nil, err
	}
	meta.Snapshot = out.State.Snapshot()
	if len(tail) > 0 {
		through := tail[len(tail)-1].Timestamp
		meta.CalculatedThrough = &through
	}
	meta.ClearRecalc()

	return &Result{Mode: ModeFromDate, From: &from, Replayed: len(tail), Diagnostics: out.Diagnostics}, nil
}

func (m *Manager) incremental(ctx context.Context, meta *domain.SyncMeta, batch []*domain.TradeRecord) (res *Result, err error) {
	start := time.Now()
	defer func() { m.record(ModeIncremental, res, err, start) }()

	out, err := accounting.Replay(batch, accounting.StateFromSnapshot(meta.Snapshot))
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if err := m.persist(ctx, batch, out); err != nil {
		return nil, err
	}
	meta.Snapshot = out.State.Snapshot()
	through := batch[len(batch)-1].Timestamp
	meta.CalculatedThrough = &through

	return &Result{Mode: ModeIncremental, Replayed: len(batch), Diagnostics: out.Diagnostics}, nil
}

func (m *Manager) persist(ctx context.Context, trades []*domain.TradeRecord, out *accounting.Result) error {
	if len(trades) == 0 {
		return nil
	}
	updates := make([]storage.CalculatedUpdate, len(trades))
	for i, t := range trades {
		updates[i] = storage.CalculatedUpdate{ID: t.ID, Calculated: out.Calculated[i]}
	}
	if err := m.trades.UpdateCalculated(ctx, updates); err != nil {
		return fmt.Errorf("update calculated: %w", err)
	}
	return nil
}

// commit records a completed recomputation in meta.
func commit(meta *domain.SyncMeta, state *accounting.State, all []*domain.TradeRecord) {
	meta.Snapshot = state.Snapshot()
	meta.CalculatedThrough = nil
	if len(all) > 0 {
		through := all[len(all)-1].Timestamp
		meta.CalculatedThrough = &through
	}
	meta.ClearRecalc()
}

func (m *Manager) record(mode Mode, res *Result, err error, start time.Time) {
	d := time.Since(start)
	replayed := 0
	if res != nil {
		res.Duration = d
		replayed = res.Replayed
		for _, diag := range res.Diagnostics {
			observability.RecordDiagnostic(string(diag.Kind))
			m.logger.Warn().
				Str("trade_id", diag.TradeID).
				Str("symbol", diag.Symbol).
				Str("kind", string(diag.Kind)).
				Msg(diag.Message)
		}
	}
	observability.RecordRecalc(string(mode), replayed, err, d)

	if err != nil {
		m.logger.Error().Err(err).Str("mode", string(mode)).Msg("recalculation failed")
		return
	}
	m.logger.Info().
		Str("mode", string(mode)).
		Int("replayed", replayed).
		Dur("duration", d).
		Msg("recalculation complete")
}
