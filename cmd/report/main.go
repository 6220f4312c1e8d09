// Package main renders stored analysis reports as markdown or CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"morpho-risk-lab/internal/config"
	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/logger"
	"morpho-risk-lab/internal/reporting"
	pgstore "morpho-risk-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	runID := flag.String("run-id", "", "Render all pool reports of one analysis run")
	marketID := flag.String("market-id", "", "Render the latest report for one market")
	format := flag.String("format", "markdown", "Output format: markdown or csv")
	flag.Parse()

	if (*runID == "") == (*marketID == "") {
		fmt.Fprintln(os.Stderr, "Error: exactly one of --run-id or --market-id is required")
		os.Exit(1)
	}
	if *format != "markdown" && *format != "csv" {
		fmt.Fprintf(os.Stderr, "Error: unknown format %q\n", *format)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging.Level)

	if cfg.Storage.Backend != "postgres" {
		fmt.Fprintln(os.Stderr, "Error: stored reports require the postgres storage backend")
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := pgstore.NewReportStore(pool)
	gen := reporting.NewGenerator(store)

	var report *reporting.Report
	if *runID != "" {
		report, err = gen.Generate(ctx, *runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading run %s: %v\n", *runID, err)
			os.Exit(1)
		}
		if report.PoolCount == 0 {
			fmt.Fprintf(os.Stderr, "No reports found for run %s\n", *runID)
			os.Exit(1)
		}
	} else {
		latest, err := store.GetLatestByMarket(ctx, *marketID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading latest report for %s: %v\n", *marketID, err)
			os.Exit(1)
		}
		report = gen.FromResults(latest.RunID, []*domain.PoolReport{latest}, nil)
	}

	switch *format {
	case "markdown":
		fmt.Print(reporting.RenderMarkdown(report))
	case "csv":
		fmt.Print(reporting.RenderCSV(report))
	}
}
