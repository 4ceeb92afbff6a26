// Package app wires stores, the exchange client and the ledger service
// from configuration. It is shared by the command line binaries.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"options-ledger/internal/config"
	"options-ledger/internal/exchange"
	"options-ledger/internal/ledger"
	"options-ledger/internal/storage"
	"options-ledger/internal/storage/memory"
	"options-ledger/internal/storage/migrations"
	chstore "options-ledger/internal/storage/clickhouse"
	pgstore "options-ledger/internal/storage/postgres"
)

// Stores groups the storage implementations used by the ledger.
type Stores struct {
	Trades storage.LedgerStore
	Meta   storage.SyncMetaStore
	Daily  storage.DailySummaryStore
}

// App is a wired ledger service.
type App struct {
	Service  *ledger.Service
	Stores   *Stores
	Exchange *exchange.Client

	cleanup []func()
}

// Open creates the stores, applies migrations and builds the ledger service.
// A configured registration time seeds the sync floor when none is stored.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{}

	stores, err := a.openStores(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Stores = stores

	a.Exchange = exchange.NewClient(cfg.BybitBaseURL, cfg.BybitAPIKey, cfg.BybitAPISecret,
		exchange.WithRateLimit(cfg.ExchangeRate, 1),
		exchange.WithRecvWindow(cfg.BybitRecvWindow),
	)

	a.Service = ledger.NewService(ledger.Options{
		TradeStore:  stores.Trades,
		MetaStore:   stores.Meta,
		DailyStore:  stores.Daily,
		Source:      a.Exchange,
		Categories:  cfg.Categories,
		AccountType: cfg.BybitAccountType,
		PageLimit:   cfg.SyncPageLimit,
		Window:      cfg.SyncWindow(),
		Logger:      log,
	})

	if cfg.RegistrationTime != nil {
		meta, err := storage.LoadOrInitMeta(ctx, stores.Meta)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load meta: %w", err)
		}
		if meta.RegistrationTime == nil {
			log.Info().Time("registration", *cfg.RegistrationTime).Msg("seeding registration date from configuration")
			if _, err := a.Service.SetRegistrationDate(ctx, *cfg.RegistrationTime); err != nil {
				a.Close()
				return nil, fmt.Errorf("set registration date: %w", err)
			}
		}
	}

	return a, nil
}

func (a *App) openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Stores, error) {
	stores := &Stores{}

	if cfg.PostgresDSN == "" {
		log.Warn().Msg("POSTGRES_DSN not set, using in-memory storage")
		stores.Trades = memory.NewLedgerStore()
		stores.Meta = memory.NewSyncMetaStore()
		stores.Daily = memory.NewDailySummaryStore()
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.cleanup = append(a.cleanup, pool.Close)

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		stores.Trades = pgstore.NewLedgerStore(pool)
		stores.Meta = pgstore.NewSyncMetaStore(pool)
		stores.Daily = pgstore.NewDailySummaryStore(pool)
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		a.cleanup = append(a.cleanup, func() { _ = conn.Close() })
		stores.Daily = chstore.NewDailySummaryStore(conn)
	}

	return stores, nil
}

// Close releases database connections.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}
