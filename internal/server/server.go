// Package server exposes the ledger over HTTP and a websocket change feed.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"options-ledger/internal/domain"
	"options-ledger/internal/ledger"
	"options-ledger/internal/observability"
	"options-ledger/internal/reporting"
)

// Ledger is the ledger service surface used by the HTTP layer.
type Ledger interface {
	SyncForward(ctx context.Context) (*ledger.Outcome, error)
	SyncBackward(ctx context.Context) (*ledger.Outcome, error)
	Recalculate(ctx context.Context, from *time.Time) (*ledger.Outcome, error)
	SetRegistrationDate(ctx context.Context, t time.Time) (*ledger.Outcome, error)

	EnsureRange(ctx context.Context, offset, limit int) error
	GetRange(offset, limit int) []*domain.TradeRecord
	ViewProgress() (loaded int, exhausted bool)
	GetTradesForSymbol(ctx context.Context, symbol string, category *domain.Category) ([]*domain.TradeRecord, error)
	GetRawJSONForSymbol(ctx context.Context, symbol string, category *domain.Category) ([]json.RawMessage, error)
	GetSummaryBySymbol(ctx context.Context) ([]domain.SummaryRow, error)
	GetRealizedPnlBySettleCoin(ctx context.Context) ([]domain.CurrencyPnlRow, error)
	GetDailyRealizedPnlChart(ctx context.Context) (*domain.DailyPnlChart, error)
	GetDailySummaries(ctx context.Context, symbol string) ([]*domain.DailySummary, error)
	Report(ctx context.Context) (*reporting.Report, error)
	Status(ctx context.Context) (*ledger.Status, error)

	Subscribe() (<-chan ledger.ChangeEvent, func())
}

var _ Ledger = (*ledger.Service)(nil)

// Config holds server configuration
type Config struct {
	Addr   string
	Log    zerolog.Logger
	Ledger Ledger
	// PingInterval is the websocket keepalive interval. Defaults to 30s.
	PingInterval time.Duration
}

// Server represents the HTTP server
type Server struct {
	router       *chi.Mux
	server       *http.Server
	log          zerolog.Logger
	ledger       Ledger
	pingInterval time.Duration
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		log:          cfg.Log.With().Str("component", "server").Logger(),
		ledger:       cfg.Ledger,
		pingInterval: cfg.PingInterval,
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 30 * time.Second
	}

	s.setupMiddleware()
	s.setupRoutes()

	// No write timeout: sync requests and the websocket feed are long-lived.
	s.server = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", observability.Handler())
	s.router.Get("/ws", s.handleWS)

	s.router.Route("/ledger", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/trades", s.handleTrades)
		r.Route("/symbols/{category}/{symbol}", func(r chi.Router) {
			r.Get("/trades", s.handleSymbolTrades)
			r.Get("/raw", s.handleSymbolRaw)
		})
		r.Get("/summary", s.handleSummary)
		r.Get("/pnl", s.handlePnl)
		r.Get("/chart", s.handleChart)
		r.Get("/daily/{symbol}", s.handleDaily)
		r.Get("/report", s.handleReport)

		r.Post("/sync/forward", s.handleSyncForward)
		r.Post("/sync/backward", s.handleSyncBackward)
		r.Post("/recalculate", s.handleRecalculate)
		r.Put("/registration", s.handleRegistration)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
