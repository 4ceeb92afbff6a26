package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSyncRun_CountsByStatus(t *testing.T) {
	ok := DefaultMetrics.SyncRunsTotal.WithLabelValues("forward", "ok")
	failed := DefaultMetrics.SyncRunsTotal.WithLabelValues("forward", "error")
	okBefore := testutil.ToFloat64(ok)
	failedBefore := testutil.ToFloat64(failed)

	RecordSyncRun("forward", nil, 2*time.Second)
	RecordSyncRun("forward", errors.New("boom"), time.Second)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(failed))
	assert.Greater(t, testutil.ToFloat64(DefaultMetrics.LastSuccessfulSync.WithLabelValues("forward")), 0.0)
}

func TestRecordRecalc_AddsReplayedTrades(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.TradesReplayed)
	RecordRecalc("full", 12, nil, time.Millisecond)
	assert.Equal(t, before+12, testutil.ToFloat64(DefaultMetrics.TradesReplayed))
}

func TestRecordCacheLookup_HitAndMiss(t *testing.T) {
	hit := DefaultMetrics.ReportCacheLookups.WithLabelValues("summary", "hit")
	miss := DefaultMetrics.ReportCacheLookups.WithLabelValues("summary", "miss")
	hitBefore, missBefore := testutil.ToFloat64(hit), testutil.ToFloat64(miss)

	RecordCacheLookup("summary", true)
	RecordCacheLookup("summary", false)
	RecordCacheLookup("summary", false)

	assert.Equal(t, hitBefore+1, testutil.ToFloat64(hit))
	assert.Equal(t, missBefore+2, testutil.ToFloat64(miss))
}

func TestUpdateLedgerTrades(t *testing.T) {
	UpdateLedgerTrades(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(DefaultMetrics.LedgerTrades))
}

func TestHandler_ExposesNamespace(t *testing.T) {
	RecordSkipped("forward_sync")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "options_ledger_ledger_operations_skipped_total"))
}
