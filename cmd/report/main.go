// Package main exports ledger reports as CSV and Markdown files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"options-ledger/internal/app"
	"options-ledger/internal/config"
	"options-ledger/internal/logger"
	"options-ledger/internal/reporting"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	outputDir := flag.String("output-dir", "reports", "Output directory for generated files")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string (empty for in-memory)")
	flag.Parse()

	cfg.PostgresDSN = *postgresDSN
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx := context.Background()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	// Reports read calculated fields; finish any pending recalculation first
	if _, err := a.Service.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error recalculating ledger: %v\n", err)
		os.Exit(1)
	}

	report, err := a.Service.Report(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building report: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	files := map[string]string{
		"SUMMARY_BY_SYMBOL.csv": reporting.RenderSummaryCSV(report.Summary),
		"PNL_BY_CURRENCY.csv":   reporting.RenderCurrencyPnlCSV(report.CurrencyPnl),
		"DAILY_SUMMARIES.csv":   reporting.RenderDailyCSV(report.Daily),
		"REPORT.md":             reporting.RenderMarkdown(report),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(*outputDir, name), []byte(content), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", name, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Ledger report generated (%d trades):\n", report.TradeCount)
	for _, name := range []string{"REPORT.md", "SUMMARY_BY_SYMBOL.csv", "PNL_BY_CURRENCY.csv", "DAILY_SUMMARIES.csv"} {
		fmt.Printf("  - %s\n", filepath.Join(*outputDir, name))
	}
}
