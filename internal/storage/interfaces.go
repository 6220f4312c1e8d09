package storage

import (
	"context"

	"morpho-risk-lab/internal/domain"
)

// RawEventStore provides access to the append-only market event log.
type RawEventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if
	// (market_id, block_number, log_index) exists.
	Insert(ctx context.Context, e *domain.RawEvent) error

	// InsertBulk adds multiple events, skipping rows whose
	// (market_id, block_number, log_index) key is already stored or
	// repeated within the batch. Re-ingesting an overlapping fetch keeps
	// the stored log complete.
	InsertBulk(ctx context.Context, events []*domain.RawEvent) error

	// GetByMarket retrieves all events for a market, ordered by
	// (block_time, block_number, log_index) ASC.
	GetByMarket(ctx context.Context, marketID string) ([]*domain.RawEvent, error)

	// GetByMarketTimeRange retrieves events for a market within [start, end) block time.
	GetByMarketTimeRange(ctx context.Context, marketID string, start, end int64) ([]*domain.RawEvent, error)
}

// PriceStore provides access to token price quotes.
type PriceStore interface {
	// Upsert stores a quote, replacing any earlier quote for the same token.
	// Latest observation wins.
	Upsert(ctx context.Context, q *domain.PriceQuote) error

	// GetByToken retrieves the latest quote for a token address.
	// Returns ErrNotFound if no quote exists. Lookup is case-insensitive.
	GetByToken(ctx context.Context, token string) (*domain.PriceQuote, error)

	// GetAll retrieves the latest quote per token, ordered by token ASC.
	GetAll(ctx context.Context) ([]*domain.PriceQuote, error)
}

// MarketStateStore provides access to authoritative pool-level totals.
type MarketStateStore interface {
	// Upsert stores market totals; the latest BlockTime per market wins.
	Upsert(ctx context.Context, t *domain.MarketTotals) error

	// GetByMarket retrieves the latest totals for a market.
	// Returns ErrNotFound if no snapshot exists.
	GetByMarket(ctx context.Context, marketID string) (*domain.MarketTotals, error)
}

// ReportStore provides access to persisted analysis reports.
type ReportStore interface {
	// Insert adds a finished report. Returns ErrDuplicateKey if
	// (run_id, market_id) exists.
	Insert(ctx context.Context, r *domain.PoolReport) error

	// GetByRun retrieves all reports of a run, ordered by market_id ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.PoolReport, error)

	// GetLatestByMarket retrieves the most recent report for a market.
	// Returns ErrNotFound if the market was never analyzed.
	GetLatestByMarket(ctx context.Context, marketID string) (*domain.PoolReport, error)
}
