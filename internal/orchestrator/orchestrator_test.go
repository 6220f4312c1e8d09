package orchestrator

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"morpho-risk-lab/internal/config"
	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/storage/memory"
)

type testStores struct {
	events      *memory.RawEventStore
	prices      *memory.PriceStore
	marketState *memory.MarketStateStore
	reports     *memory.ReportStore
}

func newTestStores() *testStores {
	return &testStores{
		events:      memory.NewRawEventStore(),
		prices:      memory.NewPriceStore(),
		marketState: memory.NewMarketStateStore(),
		reports:     memory.NewReportStore(),
	}
}

func testPool() config.PoolConfig {
	return config.PoolConfig{
		Name:               "wstETH/WETH",
		MarketID:           "0xaaa",
		CollateralToken:    "0xcoll",
		CollateralDecimals: 0,
		LoanToken:          "0xloan",
		LoanDecimals:       0,
		LLTV:               0.8,
	}
}

// seedHealthyPool loads two borrowers, both prices, and matching totals.
func seedHealthyPool(t *testing.T, ctx context.Context, s *testStores) {
	t.Helper()

	events := []*domain.RawEvent{
		{Kind: domain.EventSupplyCollateral, MarketID: "0xaaa", Borrower: "0xb1",
			Assets: 1000000, BlockTime: 100, BlockNumber: 1, LogIndex: 0},
		{Kind: domain.EventBorrow, MarketID: "0xaaa", Borrower: "0xb1",
			Assets: 600000, Shares: 600000, BlockTime: 110, BlockNumber: 2, LogIndex: 0},
		{Kind: domain.EventSupplyCollateral, MarketID: "0xaaa", Borrower: "0xb2",
			Assets: 500000, BlockTime: 120, BlockNumber: 3, LogIndex: 0},
		{Kind: domain.EventBorrow, MarketID: "0xaaa", Borrower: "0xb2",
			Assets: 100000, Shares: 100000, BlockTime: 130, BlockNumber: 4, LogIndex: 0},
	}
	if err := s.events.InsertBulk(ctx, events); err != nil {
		t.Fatalf("seed events: %v", err)
	}

	for _, q := range []*domain.PriceQuote{
		{Token: "0xcoll", PriceUSD: 1, Decimals: 0, ObservedAt: 200},
		{Token: "0xloan", PriceUSD: 1, Decimals: 0, ObservedAt: 200},
	} {
		if err := s.prices.Upsert(ctx, q); err != nil {
			t.Fatalf("seed price: %v", err)
		}
	}

	totals := &domain.MarketTotals{
		MarketID:          "0xaaa",
		TotalSupplyAssets: 1500000,
		TotalBorrowAssets: 700000,
		BlockTime:         200,
	}
	if err := s.marketState.Upsert(ctx, totals); err != nil {
		t.Fatalf("seed totals: %v", err)
	}
}

func newTestOrchestrator(t *testing.T, s *testStores, pools []config.PoolConfig) *Orchestrator {
	t.Helper()
	orch, err := New(Options{
		EventStore:       s.events,
		PriceStore:       s.prices,
		MarketStateStore: s.marketState,
		ReportStore:      s.reports,
		Pools:            pools,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch.WithClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})
}

func TestAnalyzePool_FullPipeline(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedHealthyPool(t, ctx, stores)

	orch := newTestOrchestrator(t, stores, []config.PoolConfig{testPool()})

	report, err := orch.AnalyzePool(ctx, testPool(), "run-1")
	if err != nil {
		t.Fatalf("AnalyzePool: %v", err)
	}

	if len(report.State.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(report.State.Positions))
	}
	if report.OpenPositions != 2 {
		t.Errorf("expected open position count 2, got %d", report.OpenPositions)
	}
	if math.Abs(report.State.Utilization-700000.0/1500000.0) > 1e-9 {
		t.Errorf("unexpected utilization %f", report.State.Utilization)
	}
	if len(report.StressResults) != len(domain.DefaultScenarios) {
		t.Errorf("expected %d stress results, got %d",
			len(domain.DefaultScenarios), len(report.StressResults))
	}
	if report.Score.Composite < 0 || report.Score.Composite > 100 {
		t.Errorf("composite out of range: %f", report.Score.Composite)
	}
	if report.Score.Level == "" {
		t.Error("expected a risk level")
	}

	// Largest debt first.
	if len(report.TopBorrowers) != 2 || report.TopBorrowers[0].Borrower != "0xb1" {
		t.Errorf("unexpected top borrowers: %+v", report.TopBorrowers)
	}

	if report.RunID != "run-1" || report.GeneratedAt == 0 {
		t.Errorf("report identity not set: %+v", report)
	}
}

func TestAnalyzePool_MissingPriceDegrades(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedHealthyPool(t, ctx, stores)

	// Replace the price table with one missing the collateral token.
	stores.prices = memory.NewPriceStore()
	if err := stores.prices.Upsert(ctx, &domain.PriceQuote{Token: "0xloan", PriceUSD: 1}); err != nil {
		t.Fatalf("seed price: %v", err)
	}

	orch := newTestOrchestrator(t, stores, []config.PoolConfig{testPool()})

	report, err := orch.AnalyzePool(ctx, testPool(), "run-1")
	if err != nil {
		t.Fatalf("expected degraded analysis, got error: %v", err)
	}
	if !report.State.Degraded {
		t.Error("expected degraded state")
	}
	if report.SkippedPositions != 2 {
		t.Errorf("expected 2 skipped positions, got %d", report.SkippedPositions)
	}
	if len(report.State.Positions) != 0 {
		t.Errorf("expected no positions, got %d", len(report.State.Positions))
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedHealthyPool(t, ctx, stores)

	// Second pool has no market state snapshot: its analysis must fail
	// without affecting the first.
	broken := config.PoolConfig{
		Name:            "broken/pool",
		MarketID:        "0xbbb",
		CollateralToken: "0xcoll",
		LoanToken:       "0xloan",
		LLTV:            0.9,
	}

	orch := newTestOrchestrator(t, stores, []config.PoolConfig{testPool(), broken})

	result, err := orch.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(result.Reports))
	}
	if result.Reports[0].MarketID != "0xaaa" {
		t.Errorf("unexpected surviving pool %s", result.Reports[0].MarketID)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(result.Failures))
	}
	if result.Failures[0].MarketID != "0xbbb" {
		t.Errorf("unexpected failed market %s", result.Failures[0].MarketID)
	}
	if !strings.Contains(result.Failures[0].Reason, "market state") {
		t.Errorf("unexpected failure reason %q", result.Failures[0].Reason)
	}
}

func TestRun_PersistsReports(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedHealthyPool(t, ctx, stores)

	orch := newTestOrchestrator(t, stores, []config.PoolConfig{testPool()})

	result, err := orch.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RunID == "" {
		t.Fatal("expected a run id")
	}

	persisted, err := stores.reports.GetByRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("GetByRun: %v", err)
	}
	if len(persisted) != 1 {
		t.Fatalf("expected 1 persisted report, got %d", len(persisted))
	}
	if persisted[0].MarketID != "0xaaa" {
		t.Errorf("unexpected persisted market %s", persisted[0].MarketID)
	}
}

func TestRun_DeterministicAcrossWorkerCounts(t *testing.T) {
	ctx := context.Background()

	run := func(workers int) []*domain.PoolReport {
		stores := newTestStores()
		seedHealthyPool(t, ctx, stores)
		orch, err := New(Options{
			EventStore:       stores.events,
			PriceStore:       stores.prices,
			MarketStateStore: stores.marketState,
			Pools:            []config.PoolConfig{testPool()},
			Workers:          workers,
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		result, err := orch.Run(ctx)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return result.Reports
	}

	a, b := run(1), run(8)
	if len(a) != len(b) {
		t.Fatalf("report counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Score.Composite != b[i].Score.Composite {
			t.Errorf("composite differs across worker counts: %f vs %f",
				a[i].Score.Composite, b[i].Score.Composite)
		}
	}
}

func TestNew_InvalidWeightsRejected(t *testing.T) {
	_, err := New(Options{
		Weights: domain.ScoreWeights{Utilization: 0.5, HealthFactor: 0.5, Concentration: 0.5, Stress: 0.5},
	})
	if err == nil {
		t.Fatal("expected weight validation error")
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stores := newTestStores()
	pools := make([]config.PoolConfig, 0, 16)
	for i := 0; i < 16; i++ {
		p := testPool()
		pools = append(pools, p)
	}

	orch, err := New(Options{
		EventStore:       stores.events,
		PriceStore:       stores.prices,
		MarketStateStore: stores.marketState,
		Pools:            pools,
		Workers:          1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := orch.Run(ctx); err == nil {
		t.Error("expected context error")
	}
}
