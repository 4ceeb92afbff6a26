// Package main runs the ledger service: the HTTP read API, the websocket
// change feed and scheduled forward sync.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"options-ledger/internal/app"
	"options-ledger/internal/config"
	"options-ledger/internal/ledger"
	"options-ledger/internal/logger"
	"options-ledger/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{})
		bootLog.Fatal().Err(err).Msg("load configuration")
	}

	// Flags override environment values
	addr := flag.String("addr", cfg.HTTPAddr, "HTTP listen address")
	schedule := flag.String("schedule", cfg.SyncSchedule, "Forward sync cron schedule")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string (empty for in-memory)")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse connection string (optional)")
	noSync := flag.Bool("no-sync", false, "Disable scheduled forward sync")
	flag.Parse()

	cfg.HTTPAddr = *addr
	cfg.SyncSchedule = *schedule
	cfg.PostgresDSN = *postgresDSN
	cfg.ClickHouseDSN = *clickhouseDSN

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open ledger")
	}
	defer a.Close()

	// Catch up on calculated fields missing from a previous run
	if _, err := a.Service.Load(ctx); err != nil {
		log.Error().Err(err).Msg("initial recalculation failed")
	}

	scheduler := cron.New()
	if !*noSync {
		if _, err := scheduler.AddFunc(cfg.SyncSchedule, func() { runForwardSync(ctx, a.Service, log) }); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.SyncSchedule).Msg("invalid sync schedule")
		}
		scheduler.Start()
		log.Info().Str("schedule", cfg.SyncSchedule).Msg("forward sync scheduled")
	}

	srv := server.New(server.Config{Addr: cfg.HTTPAddr, Log: log, Ledger: a.Service})
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	// Cancel in-flight syncs, then wait for scheduled jobs and requests
	cancel()
	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}

func runForwardSync(ctx context.Context, svc *ledger.Service, log zerolog.Logger) {
	out, err := svc.SyncForward(ctx)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("scheduled forward sync failed")
	case out.Skipped:
		log.Info().Msg("scheduled forward sync skipped, ledger busy")
	default:
		log.Info().
			Int("trades", out.Sync.TradesIngested).
			Int("windows", out.Sync.Windows).
			Dur("duration", out.Sync.Duration).
			Msg("scheduled forward sync complete")
	}
}
