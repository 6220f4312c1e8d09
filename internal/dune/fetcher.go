package dune

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/logger"
	"morpho-risk-lab/internal/observability"
)

// Query names expected in the configured query ID map.
const (
	QueryEvents      = "events"
	QueryPrices      = "prices"
	QueryMarketState = "market_state"
)

// Fetcher combines the API client, the query ID map, and the file cache
// into the three domain-level fetches the pipeline needs.
type Fetcher struct {
	client   *Client
	queryIDs map[string]int
	cache    *FileCache // optional
}

// NewFetcher creates a Fetcher. cache may be nil to disable caching.
func NewFetcher(client *Client, queryIDs map[string]int, cache *FileCache) *Fetcher {
	return &Fetcher{client: client, queryIDs: queryIDs, cache: cache}
}

// FetchEvents returns the raw event log for the given markets, plus the
// count of rows skipped for referencing markets outside that set.
func (f *Fetcher) FetchEvents(ctx context.Context, marketIDs []string) ([]*domain.RawEvent, int, error) {
	rows, err := f.run(ctx, QueryEvents, marketIDs)
	if err != nil {
		return nil, 0, err
	}

	known := make(map[string]bool, len(marketIDs))
	for _, id := range marketIDs {
		known[strings.ToLower(id)] = true
	}

	events, unknown := EventsFromRows(rows, known)
	if unknown > 0 {
		observability.RecordUnknownMarketEvents(unknown)
	}
	observability.DefaultMetrics.EventsFetched.Add(float64(len(events)))
	logger.Info("fetched %d events for %d markets (%d rows skipped)", len(events), len(marketIDs), unknown)
	return events, unknown, nil
}

// FetchPrices returns the latest token price quotes.
func (f *Fetcher) FetchPrices(ctx context.Context, tokens []string) ([]*domain.PriceQuote, error) {
	rows, err := f.run(ctx, QueryPrices, tokens)
	if err != nil {
		return nil, err
	}
	quotes := PricesFromRows(rows)
	observability.DefaultMetrics.PricesFetched.Add(float64(len(quotes)))
	logger.Info("fetched %d price quotes", len(quotes))
	return quotes, nil
}

// FetchMarketState returns the authoritative pool totals for the given
// markets.
func (f *Fetcher) FetchMarketState(ctx context.Context, marketIDs []string) ([]*domain.MarketTotals, error) {
	rows, err := f.run(ctx, QueryMarketState, marketIDs)
	if err != nil {
		return nil, err
	}
	totals := TotalsFromRows(rows)
	logger.Info("fetched market state for %d markets", len(totals))
	return totals, nil
}

// run resolves the query ID, checks the cache, and executes on a miss.
func (f *Fetcher) run(ctx context.Context, queryName string, values []string) ([]Row, error) {
	queryID, ok := f.queryIDs[queryName]
	if !ok || queryID == 0 {
		return nil, fmt.Errorf("no query id configured for %q", queryName)
	}

	params := map[string]string{"ids": formatList(values)}
	key := cacheKey(queryName, queryID, params)

	if f.cache != nil {
		if rows, hit := f.cache.Get(key); hit {
			observability.DefaultMetrics.QueryCacheHits.Inc()
			logger.Debug("cache hit for %s", queryName)
			return rows, nil
		}
		observability.DefaultMetrics.QueryCacheMisses.Inc()
	}

	start := time.Now()
	rows, err := f.client.RunQuery(ctx, queryID, params)
	observability.DefaultMetrics.ProviderCallLatency.WithLabelValues(queryName).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("run %s query: %w", queryName, err)
	}

	if f.cache != nil {
		f.cache.Set(key, rows)
	}
	return rows, nil
}

// formatList renders values for a SQL IN-clause text parameter, lowercase
// and sorted so equal sets produce equal cache keys.
func formatList(values []string) string {
	lowered := make([]string, 0, len(values))
	for _, v := range values {
		lowered = append(lowered, strings.ToLower(v))
	}
	sort.Strings(lowered)
	return strings.Join(lowered, ",")
}

func cacheKey(queryName string, queryID int, params map[string]string) string {
	return fmt.Sprintf("%s_%d_%s", queryName, queryID, params["ids"])
}
