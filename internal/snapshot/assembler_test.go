package snapshot

import (
	"errors"
	"math"
	"testing"

	"morpho-risk-lab/internal/config"
	"morpho-risk-lab/internal/domain"
)

func testPool() config.PoolConfig {
	return config.PoolConfig{
		Name:               "wstETH/WETH",
		MarketID:           "0xmkt",
		CollateralToken:    "0xcoll",
		CollateralDecimals: 0,
		LoanToken:          "0xloan",
		LoanDecimals:       0,
		LLTV:               0.8,
	}
}

func testPrices() map[string]domain.PriceQuote {
	return map[string]domain.PriceQuote{
		"0xcoll": {Token: "0xcoll", PriceUSD: 1000},
		"0xloan": {Token: "0xloan", PriceUSD: 1},
	}
}

func TestAssemble_UtilizationRecomputed(t *testing.T) {
	positions := []domain.Position{{BorrowAssets: 600000}}
	totals := domain.MarketTotals{
		MarketID:          "0xmkt",
		TotalSupplyAssets: 1000000,
		TotalBorrowAssets: 600000,
	}

	state, err := New(0.02).Assemble(testPool(), totals, positions, testPrices(), 0, 99)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if math.Abs(state.Utilization-0.6) > 1e-12 {
		t.Errorf("expected utilization 0.6, got %f", state.Utilization)
	}
	if state.LLTV != 0.8 {
		t.Errorf("expected lltv 0.8, got %f", state.LLTV)
	}
	if state.CollateralPriceUSD != 1000 || state.LoanPriceUSD != 1 {
		t.Errorf("unexpected prices on snapshot: %f / %f", state.CollateralPriceUSD, state.LoanPriceUSD)
	}
	if state.SnapshotTime != 99 {
		t.Errorf("expected snapshot time 99, got %d", state.SnapshotTime)
	}
}

func TestAssemble_ZeroSupplyZeroUtilization(t *testing.T) {
	totals := domain.MarketTotals{MarketID: "0xmkt"}

	state, err := New(0.02).Assemble(testPool(), totals, nil, testPrices(), 0, 0)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if state.Utilization != 0 {
		t.Errorf("expected 0 utilization with zero supply, got %f", state.Utilization)
	}
}

func TestAssemble_ReconciliationMismatch(t *testing.T) {
	// Upstream says 600000 borrowed but positions only account for 100000.
	positions := []domain.Position{{BorrowAssets: 100000}}
	totals := domain.MarketTotals{
		MarketID:          "0xmkt",
		TotalSupplyAssets: 1000000,
		TotalBorrowAssets: 600000,
	}

	_, err := New(0.02).Assemble(testPool(), totals, positions, testPrices(), 0, 0)

	var integrity *DataIntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected DataIntegrityError, got %v", err)
	}
	if integrity.Upstream != 600000 || integrity.Reconstructed != 100000 {
		t.Errorf("unexpected error payload: %+v", integrity)
	}
}

func TestAssemble_MismatchWithinToleranceAccepted(t *testing.T) {
	// 1% off with a 2% tolerance: interest accrual drift, not corruption.
	positions := []domain.Position{{BorrowAssets: 594000}}
	totals := domain.MarketTotals{
		MarketID:          "0xmkt",
		TotalSupplyAssets: 1000000,
		TotalBorrowAssets: 600000,
	}

	if _, err := New(0.02).Assemble(testPool(), totals, positions, testPrices(), 0, 0); err != nil {
		t.Errorf("expected within-tolerance mismatch to pass, got %v", err)
	}
}

func TestAssemble_DegradedFlag(t *testing.T) {
	totals := domain.MarketTotals{MarketID: "0xmkt"}

	state, err := New(0.02).Assemble(testPool(), totals, nil, testPrices(), 3, 0)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !state.Degraded || state.SkippedPositions != 3 {
		t.Errorf("expected degraded snapshot with 3 skipped positions, got %+v", state)
	}
}

func TestAssemble_DecimalNormalization(t *testing.T) {
	pool := testPool()
	pool.LoanDecimals = 6

	positions := []domain.Position{{BorrowAssets: 600000}}
	totals := domain.MarketTotals{
		MarketID:          "0xmkt",
		TotalSupplyAssets: 1e12, // 1000000 units at 6 decimals
		TotalBorrowAssets: 6e11,
	}

	state, err := New(0.02).Assemble(pool, totals, positions, testPrices(), 0, 0)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if math.Abs(state.TotalSupplyAssets-1000000) > 1e-6 {
		t.Errorf("expected normalized supply 1000000, got %f", state.TotalSupplyAssets)
	}
	if math.Abs(state.Utilization-0.6) > 1e-12 {
		t.Errorf("expected utilization 0.6, got %f", state.Utilization)
	}
}
