package dune

import (
	"strconv"
	"strings"
	"time"

	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/logger"
)

// Field helpers. Query results arrive as generic JSON, so numbers may be
// float64 or strings depending on column type; absent fields default to
// zero values.

func stringField(r Row, key string) string {
	if v, ok := r[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func floatField(r Row, key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func intField(r Row, key string) int64 {
	switch v := r[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case string:
		// Timestamps may arrive as RFC3339 strings.
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.Unix()
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// EventsFromRows maps query rows to raw events. Rows with an unknown kind
// are skipped with a warning; the event log must only carry kinds the
// aggregator understands. Rows referencing markets outside knownMarkets are
// skipped and counted, so a stale provider query surfaces in the run
// accounting instead of polluting the event log.
func EventsFromRows(rows []Row, knownMarkets map[string]bool) ([]*domain.RawEvent, int) {
	knownKinds := map[domain.EventKind]bool{
		domain.EventSupply:             true,
		domain.EventBorrow:             true,
		domain.EventRepay:              true,
		domain.EventSupplyCollateral:   true,
		domain.EventWithdrawCollateral: true,
		domain.EventLiquidate:          true,
	}

	events := make([]*domain.RawEvent, 0, len(rows))
	unknownMarkets := 0
	for _, r := range rows {
		kind := domain.EventKind(stringField(r, "event_type"))
		if !knownKinds[kind] {
			logger.Warn("skipping row with unknown event type %q", string(kind))
			continue
		}
		marketID := strings.ToLower(stringField(r, "market_id"))
		if !knownMarkets[marketID] {
			logger.Warn("skipping event row for unconfigured market %s (kind=%s)", marketID, kind)
			unknownMarkets++
			continue
		}
		events = append(events, &domain.RawEvent{
			Kind:         kind,
			MarketID:     marketID,
			Borrower:     strings.ToLower(stringField(r, "borrower")),
			Assets:       floatField(r, "assets"),
			Shares:       floatField(r, "shares"),
			RepaidAssets: floatField(r, "repaid_assets"),
			SeizedAssets: floatField(r, "seized_assets"),
			BlockTime:    intField(r, "block_time"),
			BlockNumber:  intField(r, "block_number"),
			LogIndex:     intField(r, "log_index"),
		})
	}
	return events, unknownMarkets
}

// PricesFromRows maps query rows to price quotes.
func PricesFromRows(rows []Row) []*domain.PriceQuote {
	quotes := make([]*domain.PriceQuote, 0, len(rows))
	for _, r := range rows {
		token := strings.ToLower(stringField(r, "token"))
		if token == "" {
			logger.Warn("skipping price row without token address")
			continue
		}
		quotes = append(quotes, &domain.PriceQuote{
			Token:      token,
			PriceUSD:   floatField(r, "price_usd"),
			Decimals:   int(intField(r, "decimals")),
			ObservedAt: intField(r, "observed_at"),
		})
	}
	return quotes
}

// TotalsFromRows maps query rows to market totals, keeping the latest row
// per market when the query returns several snapshots.
func TotalsFromRows(rows []Row) []*domain.MarketTotals {
	latest := make(map[string]*domain.MarketTotals)
	for _, r := range rows {
		marketID := strings.ToLower(stringField(r, "market_id"))
		if marketID == "" {
			continue
		}
		t := &domain.MarketTotals{
			MarketID:          marketID,
			TotalSupplyAssets: floatField(r, "total_supply_assets"),
			TotalBorrowAssets: floatField(r, "total_borrow_assets"),
			BlockTime:         intField(r, "block_time"),
		}
		if prev, ok := latest[marketID]; ok && prev.BlockTime >= t.BlockTime {
			continue
		}
		latest[marketID] = t
	}

	totals := make([]*domain.MarketTotals, 0, len(latest))
	for _, t := range latest {
		totals = append(totals, t)
	}
	return totals
}
