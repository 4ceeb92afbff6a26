// Package main runs one forward or backward sync against the exchange.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"options-ledger/internal/app"
	"options-ledger/internal/config"
	"options-ledger/internal/ledger"
	"options-ledger/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	direction := flag.String("direction", "forward", "Sync direction: forward or backward")
	pages := flag.Int("pages", 1, "Backward only: number of older pages to load per category (0 = until exhausted)")
	registration := flag.String("registration", "", "Set the registration date first (RFC3339 or YYYY-MM-DD)")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string (empty for in-memory)")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	cfg.PostgresDSN = *postgresDSN
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	if *direction != "forward" && *direction != "backward" {
		log.Fatal().Str("direction", *direction).Msg("--direction must be forward or backward")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("cancelling sync")
		cancel()
	}()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open ledger")
	}
	defer a.Close()

	if *registration != "" {
		t, err := config.ParseDate(*registration)
		if err != nil {
			log.Fatal().Err(err).Msg("parse --registration")
		}
		if _, err := a.Service.SetRegistrationDate(ctx, t); err != nil {
			log.Fatal().Err(err).Msg("set registration date")
		}
	}

	var outcomes []*ledger.Outcome
	if *direction == "forward" {
		out, err := a.Service.SyncForward(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("forward sync failed")
		}
		outcomes = append(outcomes, out)
	} else {
		for i := 0; *pages == 0 || i < *pages; i++ {
			out, err := a.Service.SyncBackward(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("backward sync failed")
			}
			outcomes = append(outcomes, out)
			if out.Sync.TradesIngested == 0 && len(out.Sync.Exhausted) == 0 && out.Sync.Pages == 0 {
				break // every category exhausted
			}
		}
	}

	count, err := a.Service.TotalTransactionsCount(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("count trades")
	}

	ingested, pagesFetched := 0, 0
	for _, out := range outcomes {
		ingested += out.Sync.TradesIngested
		pagesFetched += out.Sync.Pages
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(map[string]interface{}{
			"direction":       *direction,
			"trades_ingested": ingested,
			"pages":           pagesFetched,
			"total_trades":    count,
		}, "", "  ")
		fmt.Println(string(output))
		return
	}

	fmt.Printf("\n=== Sync Summary ===\n")
	fmt.Printf("Direction:        %s\n", *direction)
	fmt.Printf("Pages Fetched:    %d\n", pagesFetched)
	fmt.Printf("Trades Ingested:  %d\n", ingested)
	fmt.Printf("Ledger Size:      %d\n", count)
}
