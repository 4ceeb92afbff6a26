// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Sync metrics
	SyncRunsTotal  *prometheus.CounterVec
	SyncDuration   *prometheus.HistogramVec
	WindowsFetched *prometheus.CounterVec
	PagesFetched   *prometheus.CounterVec
	TradesIngested *prometheus.CounterVec

	// Recalculation metrics
	RecalcRunsTotal   *prometheus.CounterVec
	RecalcDuration    *prometheus.HistogramVec
	TradesReplayed    prometheus.Counter
	ReplayDiagnostics *prometheus.CounterVec

	// Coordination metrics
	OperationsSkipped *prometheus.CounterVec

	// Exchange metrics
	ExchangeLatency *prometheus.HistogramVec
	ExchangeRetries *prometheus.CounterVec
	ExchangeErrors  *prometheus.CounterVec

	// Reporting metrics
	ReportCacheLookups *prometheus.CounterVec

	// Ledger metrics
	LedgerTrades prometheus.Gauge

	// Health metrics
	LastSuccessfulSync   *prometheus.GaugeVec
	LastSuccessfulRecalc prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "options_ledger"
	}

	return &Metrics{
		SyncRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by direction and status",
		}, []string{"direction", "status"}),
		SyncDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Sync run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"direction"}),
		WindowsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "windows_fetched_total",
			Help:      "Total number of forward sync time windows drained",
		}, []string{"category"}),
		PagesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pages_fetched_total",
			Help:      "Total number of exchange pages fetched",
		}, []string{"direction", "category"}),
		TradesIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "trades_ingested_total",
			Help:      "Total number of transactions persisted",
		}, []string{"direction", "category"}),

		RecalcRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recalc",
			Name:      "runs_total",
			Help:      "Total number of recalculation passes by mode and status",
		}, []string{"mode", "status"}),
		RecalcDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recalc",
			Name:      "duration_seconds",
			Help:      "Recalculation pass duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		TradesReplayed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recalc",
			Name:      "trades_replayed_total",
			Help:      "Total number of trades folded by the accounting engine",
		}),
		ReplayDiagnostics: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recalc",
			Name:      "diagnostics_total",
			Help:      "Total number of recoverable data problems found during replay",
		}, []string{"kind"}),

		OperationsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_skipped_total",
			Help:      "Mutations ignored because another mutation was in flight",
		}, []string{"operation"}),

		ExchangeLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "request_duration_seconds",
			Help:      "Exchange request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		ExchangeRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "retries_total",
			Help:      "Total number of exchange request retries by reason",
		}, []string{"reason"}),
		ExchangeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "api_errors_total",
			Help:      "Total number of non-zero exchange return codes",
		}, []string{"code"}),

		ReportCacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reporting",
			Name:      "cache_lookups_total",
			Help:      "Report cache lookups by report and result",
		}, []string{"report", "result"}),

		LedgerTrades: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "trades",
			Help:      "Number of transactions stored in the ledger",
		}),

		LastSuccessfulSync: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of last successful sync by direction",
		}, []string{"direction"}),
		LastSuccessfulRecalc: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_recalc_timestamp",
			Help:      "Unix timestamp of last successful recalculation",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSyncRun records a completed sync run.
func RecordSyncRun(direction string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	} else {
		DefaultMetrics.LastSuccessfulSync.WithLabelValues(direction).SetToCurrentTime()
	}
	DefaultMetrics.SyncRunsTotal.WithLabelValues(direction, status).Inc()
	DefaultMetrics.SyncDuration.WithLabelValues(direction).Observe(d.Seconds())
}

// RecordWindow increments the drained forward windows counter.
func RecordWindow(category string) {
	DefaultMetrics.WindowsFetched.WithLabelValues(category).Inc()
}

// RecordPage increments the fetched pages counter.
func RecordPage(direction, category string) {
	DefaultMetrics.PagesFetched.WithLabelValues(direction, category).Inc()
}

// RecordTradesIngested adds persisted transactions.
func RecordTradesIngested(direction, category string, n int) {
	DefaultMetrics.TradesIngested.WithLabelValues(direction, category).Add(float64(n))
}

// RecordRecalc records a recalculation pass.
func RecordRecalc(mode string, replayed int, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	} else {
		DefaultMetrics.LastSuccessfulRecalc.SetToCurrentTime()
	}
	DefaultMetrics.RecalcRunsTotal.WithLabelValues(mode, status).Inc()
	DefaultMetrics.RecalcDuration.WithLabelValues(mode).Observe(d.Seconds())
	DefaultMetrics.TradesReplayed.Add(float64(replayed))
}

// RecordDiagnostic increments the replay diagnostics counter.
func RecordDiagnostic(kind string) {
	DefaultMetrics.ReplayDiagnostics.WithLabelValues(kind).Inc()
}

// RecordSkipped increments the skipped operations counter.
func RecordSkipped(operation string) {
	DefaultMetrics.OperationsSkipped.WithLabelValues(operation).Inc()
}

// RecordExchangeLatency records exchange request latency.
func RecordExchangeLatency(endpoint string, seconds float64) {
	DefaultMetrics.ExchangeLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordExchangeRetry increments the exchange retry counter.
func RecordExchangeRetry(reason string) {
	DefaultMetrics.ExchangeRetries.WithLabelValues(reason).Inc()
}

// RecordExchangeError increments the exchange API error counter.
func RecordExchangeError(code string) {
	DefaultMetrics.ExchangeErrors.WithLabelValues(code).Inc()
}

// RecordCacheLookup records a report cache hit or miss.
func RecordCacheLookup(report string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.ReportCacheLookups.WithLabelValues(report, result).Inc()
}

// UpdateLedgerTrades sets the stored transactions gauge.
func UpdateLedgerTrades(n int) {
	DefaultMetrics.LedgerTrades.Set(float64(n))
}
