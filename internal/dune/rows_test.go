package dune

import (
	"testing"

	"morpho-risk-lab/internal/domain"
)

func TestEventsFromRows(t *testing.T) {
	rows := []Row{
		{
			"event_type":   "Borrow",
			"market_id":    "0xABC",
			"borrower":     "0xB1",
			"assets":       float64(500000),
			"shares":       float64(490000),
			"block_time":   float64(1000),
			"block_number": float64(100),
			"log_index":    float64(3),
		},
		{
			"event_type":    "Liquidate",
			"market_id":     "0xabc",
			"borrower":      "0xb1",
			"repaid_assets": float64(1000),
			"seized_assets": float64(2),
			"block_time":    float64(1100),
			"block_number":  float64(110),
			"log_index":     float64(0),
		},
		{
			"event_type": "AccrueInterest", // unknown, skipped
			"market_id":  "0xabc",
		},
	}

	events, unknown := EventsFromRows(rows, map[string]bool{"0xabc": true})

	if len(events) != 2 {
		t.Fatalf("expected 2 events (unknown kind skipped), got %d", len(events))
	}
	if unknown != 0 {
		t.Errorf("expected no unconfigured-market rows, got %d", unknown)
	}
	if events[0].Kind != domain.EventBorrow {
		t.Errorf("unexpected kind %s", events[0].Kind)
	}
	// Addresses are lowercased.
	if events[0].MarketID != "0xabc" || events[0].Borrower != "0xb1" {
		t.Errorf("expected lowercase addresses, got %s / %s", events[0].MarketID, events[0].Borrower)
	}
	if events[1].RepaidAssets != 1000 || events[1].SeizedAssets != 2 {
		t.Errorf("liquidation amounts not mapped: %+v", events[1])
	}
}

func TestEventsFromRows_StringNumbers(t *testing.T) {
	rows := []Row{{
		"event_type":   "Repay",
		"market_id":    "0xabc",
		"borrower":     "0xb1",
		"assets":       "12345.5",
		"block_time":   "2024-03-01T12:00:00Z",
		"block_number": "100",
		"log_index":    "1",
	}}

	events, _ := EventsFromRows(rows, map[string]bool{"0xabc": true})

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Assets != 12345.5 {
		t.Errorf("string float not parsed: %f", events[0].Assets)
	}
	if events[0].BlockTime != 1709294400 {
		t.Errorf("RFC3339 timestamp not parsed: %d", events[0].BlockTime)
	}
	if events[0].BlockNumber != 100 {
		t.Errorf("string int not parsed: %d", events[0].BlockNumber)
	}
}

func TestEventsFromRows_UnconfiguredMarketCounted(t *testing.T) {
	rows := []Row{
		{"event_type": "Borrow", "market_id": "0xabc", "borrower": "0xb1",
			"assets": float64(100), "block_number": float64(1), "log_index": float64(0)},
		{"event_type": "Borrow", "market_id": "0xZZZ", "borrower": "0xb2",
			"assets": float64(50), "block_number": float64(2), "log_index": float64(0)},
	}

	events, unknown := EventsFromRows(rows, map[string]bool{"0xabc": true})

	if len(events) != 1 {
		t.Fatalf("expected the unconfigured-market row dropped, got %d events", len(events))
	}
	if unknown != 1 {
		t.Errorf("expected 1 unconfigured-market row counted, got %d", unknown)
	}
	if events[0].MarketID != "0xabc" {
		t.Errorf("wrong row kept: %s", events[0].MarketID)
	}
}

func TestPricesFromRows(t *testing.T) {
	rows := []Row{
		{"token": "0xWETH", "price_usd": float64(3000), "decimals": float64(18), "observed_at": float64(1000)},
		{"price_usd": float64(1)}, // no token, skipped
	}

	quotes := PricesFromRows(rows)

	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}
	if quotes[0].Token != "0xweth" {
		t.Errorf("expected lowercase token, got %s", quotes[0].Token)
	}
	if quotes[0].PriceUSD != 3000 || quotes[0].Decimals != 18 {
		t.Errorf("quote not mapped: %+v", quotes[0])
	}
}

func TestTotalsFromRows_LatestWins(t *testing.T) {
	rows := []Row{
		{"market_id": "0xa", "total_supply_assets": float64(900000), "total_borrow_assets": float64(500000), "block_time": float64(1000)},
		{"market_id": "0xa", "total_supply_assets": float64(1000000), "total_borrow_assets": float64(600000), "block_time": float64(2000)},
		{"market_id": "0xb", "total_supply_assets": float64(50), "total_borrow_assets": float64(10), "block_time": float64(500)},
	}

	totals := TotalsFromRows(rows)

	if len(totals) != 2 {
		t.Fatalf("expected totals for 2 markets, got %d", len(totals))
	}
	byMarket := make(map[string]*domain.MarketTotals)
	for _, tt := range totals {
		byMarket[tt.MarketID] = tt
	}
	if byMarket["0xa"].TotalBorrowAssets != 600000 {
		t.Errorf("expected latest snapshot for 0xa, got %f", byMarket["0xa"].TotalBorrowAssets)
	}
}

func TestFormatList_DeterministicKey(t *testing.T) {
	a := formatList([]string{"0xB", "0xA"})
	b := formatList([]string{"0xa", "0xb"})
	if a != b {
		t.Errorf("expected order- and case-insensitive list formatting: %q vs %q", a, b)
	}
	if a != "0xa,0xb" {
		t.Errorf("unexpected format: %q", a)
	}
}
