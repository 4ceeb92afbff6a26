// Package main recalculates the ledger in full or from a date.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"options-ledger/internal/app"
	"options-ledger/internal/config"
	"options-ledger/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	from := flag.String("from", "", "Recalculate trades at or after this date (RFC3339 or YYYY-MM-DD); empty for full")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string (empty for in-memory)")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	cfg.PostgresDSN = *postgresDSN
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	var fromTime *time.Time
	if *from != "" {
		t, err := config.ParseDate(*from)
		if err != nil {
			log.Fatal().Err(err).Msg("parse --from")
		}
		fromTime = &t
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open ledger")
	}
	defer a.Close()

	out, err := a.Service.Recalculate(ctx, fromTime)
	if err != nil {
		log.Fatal().Err(err).Msg("recalculation failed")
	}
	res := out.Recalc

	if *outputJSON {
		output, _ := json.MarshalIndent(map[string]interface{}{
			"mode":        res.Mode,
			"replayed":    res.Replayed,
			"diagnostics": len(res.Diagnostics),
			"duration_ms": res.Duration.Milliseconds(),
		}, "", "  ")
		fmt.Println(string(output))
		return
	}

	fmt.Printf("\n=== Recalculation Summary ===\n")
	fmt.Printf("Mode:         %s\n", res.Mode)
	fmt.Printf("Replayed:     %d\n", res.Replayed)
	fmt.Printf("Diagnostics:  %d\n", len(res.Diagnostics))
	fmt.Printf("Duration:     %v\n", res.Duration)
	for _, d := range res.Diagnostics {
		fmt.Printf("  - %s %s: %s\n", d.TradeID, d.Kind, d.Message)
	}
}
