package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/storage"
)

// RawEventStore implements storage.RawEventStore using PostgreSQL.
type RawEventStore struct {
	pool *Pool
}

// NewRawEventStore creates a new RawEventStore.
func NewRawEventStore(pool *Pool) *RawEventStore {
	return &RawEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RawEventStore = (*RawEventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if (market_id, block_number, log_index) exists.
func (s *RawEventStore) Insert(ctx context.Context, e *domain.RawEvent) error {
	query := `
		INSERT INTO market_events (
			kind, market_id, borrower, assets, shares,
			repaid_assets, seized_assets, block_time, block_number, log_index
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		string(e.Kind),
		e.MarketID,
		e.Borrower,
		e.Assets,
		e.Shares,
		e.RepaidAssets,
		e.SeizedAssets,
		e.BlockTime,
		e.BlockNumber,
		e.LogIndex,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert market event: %w", err)
	}
	return nil
}

// InsertBulk adds multiple events in one transaction, skipping rows already
// stored or repeated within the batch. An overlapping refetch must not lose
// new rows.
func (s *RawEventStore) InsertBulk(ctx context.Context, events []*domain.RawEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO market_events (
			kind, market_id, borrower, assets, shares,
			repaid_assets, seized_assets, block_time, block_number, log_index
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (market_id, block_number, log_index) DO NOTHING
	`

	for _, e := range events {
		_, err := tx.Exec(ctx, query,
			string(e.Kind),
			e.MarketID,
			e.Borrower,
			e.Assets,
			e.Shares,
			e.RepaidAssets,
			e.SeizedAssets,
			e.BlockTime,
			e.BlockNumber,
			e.LogIndex,
		)
		if err != nil {
			return fmt.Errorf("insert market event in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByMarket retrieves all events for a market, ordered by
// (block_time, block_number, log_index) ASC.
func (s *RawEventStore) GetByMarket(ctx context.Context, marketID string) ([]*domain.RawEvent, error) {
	query := `
		SELECT kind, market_id, borrower, assets, shares,
		       repaid_assets, seized_assets, block_time, block_number, log_index
		FROM market_events
		WHERE market_id = $1
		ORDER BY block_time ASC, block_number ASC, log_index ASC
	`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("get market events: %w", err)
	}
	defer rows.Close()

	return scanRawEvents(rows)
}

// GetByMarketTimeRange retrieves events for a market within [start, end) block time.
func (s *RawEventStore) GetByMarketTimeRange(ctx context.Context, marketID string, start, end int64) ([]*domain.RawEvent, error) {
	query := `
		SELECT kind, market_id, borrower, assets, shares,
		       repaid_assets, seized_assets, block_time, block_number, log_index
		FROM market_events
		WHERE market_id = $1 AND block_time >= $2 AND block_time < $3
		ORDER BY block_time ASC, block_number ASC, log_index ASC
	`

	rows, err := s.pool.Query(ctx, query, marketID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get market events by time range: %w", err)
	}
	defer rows.Close()

	return scanRawEvents(rows)
}

// scanRawEvents scans multiple rows into a slice of RawEvent.
func scanRawEvents(rows pgx.Rows) ([]*domain.RawEvent, error) {
	var events []*domain.RawEvent

	for rows.Next() {
		var e domain.RawEvent
		var kind string

		err := rows.Scan(
			&kind,
			&e.MarketID,
			&e.Borrower,
			&e.Assets,
			&e.Shares,
			&e.RepaidAssets,
			&e.SeizedAssets,
			&e.BlockTime,
			&e.BlockNumber,
			&e.LogIndex,
		)
		if err != nil {
			return nil, fmt.Errorf("scan market event row: %w", err)
		}

		e.Kind = domain.EventKind(kind)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market event rows: %w", err)
	}

	return events, nil
}
