package postgres

import (
	"context"
	"fmt"

	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/storage"
)

// MarketStateStore implements storage.MarketStateStore using PostgreSQL.
// One row per market; the latest BlockTime wins.
type MarketStateStore struct {
	pool *Pool
}

// NewMarketStateStore creates a new MarketStateStore.
func NewMarketStateStore(pool *Pool) *MarketStateStore {
	return &MarketStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MarketStateStore = (*MarketStateStore)(nil)

// Upsert stores market totals, keeping the snapshot with the latest BlockTime.
func (s *MarketStateStore) Upsert(ctx context.Context, t *domain.MarketTotals) error {
	if t == nil || t.MarketID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO market_state (market_id, total_supply_assets, total_borrow_assets, block_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (market_id) DO UPDATE SET
			total_supply_assets = EXCLUDED.total_supply_assets,
			total_borrow_assets = EXCLUDED.total_borrow_assets,
			block_time = EXCLUDED.block_time
		WHERE market_state.block_time <= EXCLUDED.block_time
	`

	_, err := s.pool.Exec(ctx, query,
		t.MarketID,
		t.TotalSupplyAssets,
		t.TotalBorrowAssets,
		t.BlockTime,
	)
	if err != nil {
		return fmt.Errorf("upsert market state: %w", err)
	}
	return nil
}

// GetByMarket retrieves the latest totals for a market. Returns ErrNotFound
// if no snapshot exists.
func (s *MarketStateStore) GetByMarket(ctx context.Context, marketID string) (*domain.MarketTotals, error) {
	query := `
		SELECT market_id, total_supply_assets, total_borrow_assets, block_time
		FROM market_state
		WHERE market_id = $1
	`

	var t domain.MarketTotals
	err := s.pool.QueryRow(ctx, query, marketID).Scan(
		&t.MarketID,
		&t.TotalSupplyAssets,
		&t.TotalBorrowAssets,
		&t.BlockTime,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get market state: %w", err)
	}
	return &t, nil
}
