// Package main provides the batch analysis entry point.
// Executes: fetch → aggregate → positions → snapshot → metrics → stress → score → report
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"morpho-risk-lab/internal/config"
	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/dune"
	"morpho-risk-lab/internal/logger"
	"morpho-risk-lab/internal/observability"
	"morpho-risk-lab/internal/orchestrator"
	"morpho-risk-lab/internal/reporting"
	"morpho-risk-lab/internal/storage"
	chstore "morpho-risk-lab/internal/storage/clickhouse"
	"morpho-risk-lab/internal/storage/memory"
	"morpho-risk-lab/internal/storage/migrations"
	pgstore "morpho-risk-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	outputDir := flag.String("output-dir", "reports", "Output directory for generated files")
	skipFetch := flag.Bool("skip-fetch", false, "Analyze already-stored data without calling the provider")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging.Level)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal %v, cancelling analysis", sig)
		cancel()
	}()

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
			})
			logger.Info("metrics server listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server: %v", err)
			}
		}()
	}

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating stores: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	var unknownEvents int
	if !*skipFetch {
		n, err := fetchData(ctx, cfg, stores)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching data: %v\n", err)
			os.Exit(1)
		}
		unknownEvents = n
	}

	scenarios := make([]domain.StressScenario, 0, len(cfg.Stress.Shocks))
	for _, shock := range cfg.Stress.Shocks {
		scenarios = append(scenarios, domain.ScenarioFromShock(shock))
	}

	orch, err := orchestrator.New(orchestrator.Options{
		EventStore:       stores.events,
		PriceStore:       stores.prices,
		MarketStateStore: stores.marketState,
		ReportStore:      stores.reports,
		Pools:            cfg.Pools,
		Scenarios:        scenarios,
		Weights: domain.ScoreWeights{
			Utilization:   cfg.Scoring.UtilizationWeight,
			HealthFactor:  cfg.Scoring.HealthFactorWeight,
			Concentration: cfg.Scoring.ConcentrationWeight,
			Stress:        cfg.Scoring.StressWeight,
		},
		WarnThreshold:        cfg.Scoring.WarnThreshold,
		SensitivityThreshold: cfg.Scoring.SensitivityThreshold,
		CliffThreshold:       cfg.Stress.CliffThreshold,
		ReconcileTolerance:   cfg.Analysis.ReconcileTolerance,
		TopN:                 cfg.Analysis.TopN,
		Workers:              cfg.Analysis.Workers,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating orchestrator: %v\n", err)
		os.Exit(1)
	}

	result, err := orch.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Analysis error: %v\n", err)
		os.Exit(1)
	}

	report := reporting.NewGenerator(stores.reports).
		FromResults(result.RunID, result.Reports, result.Failures)
	report.UnknownMarketEvents = unknownEvents

	if err := writeReports(report, *outputDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing reports: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Analysis run %s completed:\n", result.RunID)
	fmt.Printf("  Pools analyzed: %d\n", len(result.Reports))
	for _, r := range result.Reports {
		fmt.Printf("    %-24s %.1f (%s)\n", r.PoolName, r.Score.Composite, r.Score.Level)
	}
	if len(result.Failures) > 0 {
		fmt.Printf("  Failed: %d\n", len(result.Failures))
		for _, f := range result.Failures {
			fmt.Printf("    - %s: %s\n", f.PoolName, f.Reason)
		}
	}
	fmt.Printf("  - %s/RISK_REPORT.md\n", *outputDir)
	fmt.Printf("  - %s/stress_results.csv\n", *outputDir)

	if len(result.Reports) == 0 {
		os.Exit(1)
	}
}

// analysisStores holds the stores the pipeline reads and writes.
type analysisStores struct {
	events      storage.RawEventStore
	prices      storage.PriceStore
	marketState storage.MarketStateStore
	reports     storage.ReportStore
}

// createStores builds stores for the configured backend. The returned
// cleanup closes any database connections.
func createStores(ctx context.Context, cfg *config.Config) (*analysisStores, func(), error) {
	switch cfg.Storage.Backend {
	case "memory":
		return &analysisStores{
			events:      memory.NewRawEventStore(),
			prices:      memory.NewPriceStore(),
			marketState: memory.NewMarketStateStore(),
			reports:     memory.NewReportStore(),
		}, func() {}, nil

	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
		}

		stores := &analysisStores{
			events:      pgstore.NewRawEventStore(pool),
			prices:      pgstore.NewPriceStore(pool),
			marketState: pgstore.NewMarketStateStore(pool),
			reports:     pgstore.NewReportStore(pool),
		}
		cleanup := func() { pool.Close() }

		// The event log optionally lives in ClickHouse; everything else
		// stays transactional in Postgres.
		if cfg.Storage.ClickhouseDSN != "" {
			conn, err := chstore.NewConn(ctx, cfg.Storage.ClickhouseDSN)
			if err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
			}
			if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
				conn.Close()
				pool.Close()
				return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
			}
			stores.events = chstore.NewRawEventStore(conn)
			cleanup = func() {
				conn.Close()
				pool.Close()
			}
		}
		return stores, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// fetchData pulls events, prices and market state from the provider into
// the stores. Overlapping fetches are expected: the event stores skip rows
// already ingested, so a refetch only adds what is new. Returns the count
// of event rows skipped for unconfigured markets.
func fetchData(ctx context.Context, cfg *config.Config, stores *analysisStores) (int, error) {
	if cfg.Dune.APIKey == "" {
		return 0, fmt.Errorf("dune.api_key is required unless --skip-fetch is set")
	}

	client := dune.NewClient(cfg.Dune.APIBaseURL, cfg.Dune.APIKey,
		dune.WithTimeout(cfg.Dune.Timeout))

	var cache *dune.FileCache
	if cfg.Dune.CacheDir != "" {
		var err error
		cache, err = dune.NewFileCache(cfg.Dune.CacheDir, cfg.Dune.CacheTTL)
		if err != nil {
			return 0, fmt.Errorf("init query cache: %w", err)
		}
	}

	fetcher := dune.NewFetcher(client, cfg.Dune.QueryIDs, cache)

	marketIDs := make([]string, 0, len(cfg.Pools))
	tokenSet := make(map[string]bool)
	for _, p := range cfg.Pools {
		marketIDs = append(marketIDs, p.MarketID)
		tokenSet[p.CollateralToken] = true
		tokenSet[p.LoanToken] = true
	}
	tokens := make([]string, 0, len(tokenSet))
	for t := range tokenSet {
		tokens = append(tokens, t)
	}

	events, unknownEvents, err := fetcher.FetchEvents(ctx, marketIDs)
	if err != nil {
		return 0, fmt.Errorf("fetch events: %w", err)
	}
	if len(events) > 0 {
		if err := stores.events.InsertBulk(ctx, events); err != nil {
			return 0, fmt.Errorf("store events: %w", err)
		}
	}

	quotes, err := fetcher.FetchPrices(ctx, tokens)
	if err != nil {
		return 0, fmt.Errorf("fetch prices: %w", err)
	}
	for _, q := range quotes {
		if err := stores.prices.Upsert(ctx, q); err != nil {
			return 0, fmt.Errorf("store price for %s: %w", q.Token, err)
		}
	}

	totals, err := fetcher.FetchMarketState(ctx, marketIDs)
	if err != nil {
		return 0, fmt.Errorf("fetch market state: %w", err)
	}
	for _, t := range totals {
		if err := stores.marketState.Upsert(ctx, t); err != nil {
			return 0, fmt.Errorf("store market state for %s: %w", t.MarketID, err)
		}
	}

	return unknownEvents, nil
}

// writeReports renders the markdown and CSV outputs into outputDir.
func writeReports(report *reporting.Report, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	md := reporting.RenderMarkdown(report)
	if err := os.WriteFile(filepath.Join(outputDir, "RISK_REPORT.md"), []byte(md), 0o644); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}

	csv := reporting.RenderCSV(report)
	if err := os.WriteFile(filepath.Join(outputDir, "stress_results.csv"), []byte(csv), 0o644); err != nil {
		return fmt.Errorf("write csv report: %w", err)
	}

	return nil
}
