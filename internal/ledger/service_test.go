package ledger

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-ledger/internal/domain"
	"options-ledger/internal/ingestion"
	"options-ledger/internal/ingestion/stub"
	"options-ledger/internal/storage/memory"
)

const (
	hourMs = int64(time.Hour / time.Millisecond)
	dayMs  = 24 * hourMs
	regMs  = int64(1700000000000)
)

func rawTrade(id string, ts int64, side, qty, price string) domain.RawTransaction {
	return domain.RawTransaction{
		UniqueKey:       id,
		TransactionTime: strconv.FormatInt(ts, 10),
		Symbol:          "BTCUSDT",
		Category:        domain.CategoryLinear,
		Type:            "TRADE",
		Side:            side,
		Qty:             qty,
		TradePrice:      price,
		Fee:             "0.1",
		Currency:        "USDT",
	}
}

type fixture struct {
	exchange *stub.StubExchange
	trades   *memory.LedgerStore
	meta     *memory.SyncMetaStore
	daily    *memory.DailySummaryStore
	svc      *Service
	nowMs    int64
}

func newFixture(t *testing.T, source ingestion.TransactionSource, items ...domain.RawTransaction) *fixture {
	t.Helper()
	f := &fixture{
		exchange: stub.NewStubExchange(items),
		trades:   memory.NewLedgerStore(),
		meta:     memory.NewSyncMetaStore(),
		daily:    memory.NewDailySummaryStore(),
		nowMs:    regMs + 10*dayMs,
	}
	if source == nil {
		source = f.exchange
	}
	f.svc = NewService(Options{
		TradeStore: f.trades,
		MetaStore:  f.meta,
		DailyStore: f.daily,
		Source:     source,
		Categories: []domain.Category{domain.CategoryLinear},
		PageLimit:  10,
		Now:        func() time.Time { return time.UnixMilli(f.nowMs).UTC() },
		Logger:     zerolog.Nop(),
	})
	return f
}

func (f *fixture) register(t *testing.T) {
	t.Helper()
	out, err := f.svc.SetRegistrationDate(context.Background(), time.UnixMilli(regMs))
	require.NoError(t, err)
	require.False(t, out.Skipped)
}

func TestService_ForwardSyncCalculatesAndPublishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil,
		rawTrade("t1", regMs+hourMs, "Buy", "2", "100"),
		rawTrade("t2", regMs+2*dayMs, "Sell", "1", "130"),
	)
	f.register(t)

	events, unsubscribe := f.svc.Subscribe()
	defer unsubscribe()

	out, err := f.svc.SyncForward(ctx)
	require.NoError(t, err)
	require.False(t, out.Skipped)
	assert.Equal(t, 2, out.Sync.TradesIngested)

	select {
	case ev := <-events:
		assert.Equal(t, EventForwardSync, ev.Kind)
		assert.Equal(t, 2, ev.Count)
	default:
		t.Fatal("expected a change event")
	}

	trades, err := f.svc.GetTradesForSymbol(ctx, "BTCUSDT", nil)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	require.NotNil(t, trades[1].Calculated)
	assert.True(t, trades[1].Calculated.Realized.Equal(decimal.NewFromInt(30)), "realized %s", trades[1].Calculated.Realized)
	assert.True(t, trades[1].Calculated.PositionAfter.Equal(decimal.NewFromInt(1)))

	pnl, err := f.svc.GetRealizedPnlBySettleCoin(ctx)
	require.NoError(t, err)
	require.Len(t, pnl, 1)
	assert.Equal(t, "USDT", pnl[0].SettleCoin)
	assert.True(t, pnl[0].NetPnl.Equal(decimal.RequireFromString("29.8")), "net %s", pnl[0].NetPnl)

	daily, err := f.svc.GetDailySummaries(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, daily, 2)

	count, err := f.svc.TotalTransactionsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	loaded, err := f.svc.LastLoadedAt(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "", f.svc.ErrorMessage())
}

func TestService_PagedViewSeesNewTradesAfterMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, rawTrade("t1", regMs+hourMs, "Buy", "1", "100"))
	f.register(t)

	_, err := f.svc.SyncForward(ctx)
	require.NoError(t, err)
	require.NoError(t, f.svc.EnsureRange(ctx, 0, 10))
	assert.Len(t, f.svc.GetRange(0, 10), 1)

	// A sync that ingests nothing keeps the loaded page, so offsets a
	// client already holds do not shift.
	_, err = f.svc.SyncForward(ctx)
	require.NoError(t, err)
	assert.Len(t, f.svc.GetRange(0, 10), 1)
	loaded, exhausted := f.svc.ViewProgress()
	assert.Equal(t, 1, loaded)
	assert.True(t, exhausted)

	f.exchange.Add(rawTrade("t2", regMs+11*dayMs, "Sell", "1", "110"))
	f.nowMs = regMs + 12*dayMs
	_, err = f.svc.SyncForward(ctx)
	require.NoError(t, err)

	loaded, exhausted = f.svc.ViewProgress()
	assert.Zero(t, loaded, "view rebuilt after new trades")
	assert.False(t, exhausted)

	require.NoError(t, f.svc.EnsureRange(ctx, 0, 10))
	page := f.svc.GetRange(0, 10)
	require.Len(t, page, 2)
	assert.Equal(t, "t2", page[0].ID)
}

func TestService_RegistrationRequired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, rawTrade("t1", regMs+hourMs, "Buy", "1", "100"))

	required, err := f.svc.IsRegistrationDateRequired(ctx)
	require.NoError(t, err)
	assert.True(t, required)

	_, err = f.svc.SyncForward(ctx)
	assert.ErrorIs(t, err, ingestion.ErrRegistrationRequired)
	assert.NotEmpty(t, f.svc.ErrorMessage())
	assert.Empty(t, f.exchange.Queries(), "no exchange call before registration")

	f.register(t)
	required, err = f.svc.IsRegistrationDateRequired(ctx)
	require.NoError(t, err)
	assert.False(t, required)

	_, err = f.svc.SyncForward(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.svc.ErrorMessage(), "error cleared after success")
}

func TestService_MissingCredentials(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.register(t)
	f.exchange.SetConfigured(false)

	_, err := f.svc.SyncForward(ctx)
	assert.ErrorIs(t, err, ingestion.ErrMissingCredentials)
	_, err = f.svc.SyncBackward(ctx)
	assert.ErrorIs(t, err, ingestion.ErrMissingCredentials)
	assert.Empty(t, f.exchange.Queries())
}

func TestService_BackwardSyncRecomputesHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil,
		rawTrade("old", regMs-5*dayMs, "Buy", "1", "70"),
		rawTrade("t1", regMs+hourMs, "Buy", "2", "100"),
		rawTrade("t2", regMs+2*dayMs, "Sell", "1", "130"),
	)
	f.register(t)

	_, err := f.svc.SyncForward(ctx)
	require.NoError(t, err)

	out, err := f.svc.SyncBackward(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Category{domain.CategoryLinear}, out.Sync.Exhausted)
	require.NotNil(t, out.Recalc)

	trades, err := f.svc.GetTradesForSymbol(ctx, "BTCUSDT", nil)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	for _, tr := range trades {
		require.NotNil(t, tr.Calculated, "trade %s not calculated", tr.ID)
	}
	// Average 90 after the backfilled buy.
	assert.True(t, trades[2].Calculated.Realized.Equal(decimal.NewFromInt(40)), "realized %s", trades[2].Calculated.Realized)

	meta, err := f.meta.LoadMeta(ctx)
	require.NoError(t, err)
	assert.False(t, meta.RecalcRequired)
}

func TestService_RecalculateMatchesSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil,
		rawTrade("t1", regMs+hourMs, "Buy", "2", "100"),
		rawTrade("t2", regMs+2*dayMs, "Sell", "3", "130"),
		rawTrade("t3", regMs+8*dayMs, "Buy", "1", "120"),
	)
	f.register(t)
	_, err := f.svc.SyncForward(ctx)
	require.NoError(t, err)

	before, err := f.svc.GetTradesForSymbol(ctx, "BTCUSDT", nil)
	require.NoError(t, err)

	out, err := f.svc.Recalculate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Recalc.Replayed)

	from := time.UnixMilli(regMs + 2*dayMs)
	_, err = f.svc.Recalculate(ctx, &from)
	require.NoError(t, err)

	after, err := f.svc.GetTradesForSymbol(ctx, "BTCUSDT", nil)
	require.NoError(t, err)
	for i := range before {
		b, a := before[i].Calculated, after[i].Calculated
		assert.True(t, b.PositionAfter.Equal(a.PositionAfter), "position of %s", before[i].ID)
		assert.True(t, b.AvgPriceAfter.Equal(a.AvgPriceAfter), "avg price of %s", before[i].ID)
		assert.True(t, b.Realized.Equal(a.Realized), "realized of %s", before[i].ID)
		assert.True(t, b.CumulativeAfter.Equal(a.CumulativeAfter), "cumulative of %s", before[i].ID)
	}
}

func TestService_LoadRunsLazyRecalculation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	err := f.trades.SaveTrades(ctx, []*domain.TradeRecord{{
		ID: "t1", Timestamp: regMs, Symbol: "BTCUSDT", Category: domain.CategoryLinear,
		Type: domain.TypeTrade, Side: domain.SideBuy,
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100), SettleCoin: "USDT",
	}})
	require.NoError(t, err)

	out, err := f.svc.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, out.Recalc)
	assert.Equal(t, 1, out.Recalc.Replayed)

	out, err = f.svc.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, out.Recalc, "nothing left to recalculate")
}

func TestService_RawJSONForSymbol(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	withRaw := rawTrade("t1", regMs, "Buy", "1", "100")
	withRaw.Payload = []byte(`{"id":"t1","qty":"1"}`)
	f.exchange.Add(withRaw)
	f.register(t)
	_, err := f.svc.SyncForward(ctx)
	require.NoError(t, err)

	err = f.trades.SaveTrades(ctx, []*domain.TradeRecord{{
		ID: "t0", Timestamp: regMs - 1, Symbol: "BTCUSDT", Category: domain.CategoryLinear,
		Type: domain.TypeTrade, Side: domain.SideSell,
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(90), SettleCoin: "USDT",
	}})
	require.NoError(t, err)

	raws, err := f.svc.GetRawJSONForSymbol(ctx, "BTCUSDT", nil)
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.JSONEq(t, `{"id":"t1","qty":"1"}`, string(raws[1]))
	assert.Contains(t, string(raws[0]), `"transactionTime":"1699999999999"`)
}

// blockingSource holds FetchTransactions until released.
type blockingSource struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) FetchTransactions(ctx context.Context, _ domain.Query) (*domain.Page, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return &domain.Page{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestService_BusySkipsOverlappingMutations(t *testing.T) {
	ctx := context.Background()
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, src)
	f.register(t)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.SyncForward(ctx)
		done <- err
	}()
	<-src.started

	assert.Equal(t, StateForwardSyncing, f.svc.State())

	out, err := f.svc.Recalculate(ctx, nil)
	require.NoError(t, err)
	assert.True(t, out.Skipped)

	out, err = f.svc.SyncBackward(ctx)
	require.NoError(t, err)
	assert.True(t, out.Skipped)

	out, err = f.svc.SyncForward(ctx)
	require.NoError(t, err)
	assert.True(t, out.Skipped)

	close(src.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, f.svc.State())

	out, err = f.svc.Recalculate(ctx, nil)
	require.NoError(t, err)
	assert.False(t, out.Skipped)
}

func TestService_CancelledSyncSurfacesError(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, src)
	f.register(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.SyncForward(ctx)
		done <- err
	}()
	<-src.started
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateIdle, f.svc.State())
	assert.NotEmpty(t, f.svc.ErrorMessage())
}

func TestService_Status(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", st.State)
	assert.True(t, st.RegistrationDateRequired)
	assert.Nil(t, st.RegistrationDate)

	f.register(t)
	st, err = f.svc.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.RegistrationDate)
	assert.Equal(t, regMs, st.RegistrationDate.UnixMilli())
	assert.False(t, st.RecalcRequired)

	// A stored trade without calculated fields is pending even though
	// the metadata flag is clear.
	err = f.trades.SaveTrades(ctx, []*domain.TradeRecord{{
		ID: "t1", Timestamp: regMs + hourMs, Symbol: "BTCUSDT", Category: domain.CategoryLinear,
		Type: domain.TypeTrade, Side: domain.SideBuy,
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100), SettleCoin: "USDT",
	}})
	require.NoError(t, err)
	st, err = f.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.RecalcRequired)

	_, err = f.svc.Load(ctx)
	require.NoError(t, err)
	st, err = f.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.RecalcRequired)
}
