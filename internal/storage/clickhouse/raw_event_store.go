package clickhouse

import (
	"context"
	"fmt"

	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/storage"
)

// RawEventStore implements storage.RawEventStore using ClickHouse.
//
// MergeTree does not enforce uniqueness at insert time, so duplicates are
// filtered with explicit existence checks before insert. Bulk loads of the
// event log are the intended workload.
type RawEventStore struct {
	conn *Conn
}

// NewRawEventStore creates a new RawEventStore.
func NewRawEventStore(conn *Conn) *RawEventStore {
	return &RawEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RawEventStore = (*RawEventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if (market_id, block_number, log_index) exists.
func (s *RawEventStore) Insert(ctx context.Context, e *domain.RawEvent) error {
	if e == nil || e.MarketID == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, e.MarketID, e.BlockNumber, e.LogIndex)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	return s.sendBatch(ctx, []*domain.RawEvent{e})
}

// InsertBulk adds multiple events, skipping rows already stored or repeated
// within the batch. An overlapping refetch must not lose new rows.
func (s *RawEventStore) InsertBulk(ctx context.Context, events []*domain.RawEvent) error {
	if len(events) == 0 {
		return nil
	}

	for _, e := range events {
		if e == nil || e.MarketID == "" {
			return storage.ErrInvalidInput
		}
	}

	type key struct {
		marketID    string
		blockNumber int64
		logIndex    int64
	}
	seen := make(map[key]struct{}, len(events))
	fresh := make([]*domain.RawEvent, 0, len(events))
	for _, e := range events {
		k := key{e.MarketID, e.BlockNumber, e.LogIndex}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		exists, err := s.exists(ctx, e.MarketID, e.BlockNumber, e.LogIndex)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			continue
		}
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		return nil
	}

	return s.sendBatch(ctx, fresh)
}

// sendBatch appends the events to a prepared batch and sends it.
func (s *RawEventStore) sendBatch(ctx context.Context, events []*domain.RawEvent) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_events (
			kind, market_id, borrower, assets, shares,
			repaid_assets, seized_assets, block_time, block_number, log_index
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			string(e.Kind), e.MarketID, e.Borrower,
			e.Assets, e.Shares, e.RepaidAssets, e.SeizedAssets,
			e.BlockTime, e.BlockNumber, e.LogIndex,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
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
		WHERE market_id = ?
		ORDER BY block_time ASC, block_number ASC, log_index ASC
	`

	rows, err := s.conn.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("query by market: %w", err)
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
		WHERE market_id = ? AND block_time >= ? AND block_time < ?
		ORDER BY block_time ASC, block_number ASC, log_index ASC
	`

	rows, err := s.conn.Query(ctx, query, marketID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by market/time range: %w", err)
	}
	defer rows.Close()

	return scanRawEvents(rows)
}

// exists checks if an event with the given key exists.
func (s *RawEventStore) exists(ctx context.Context, marketID string, blockNumber, logIndex int64) (bool, error) {
	query := `
		SELECT count(*) FROM market_events
		WHERE market_id = ? AND block_number = ? AND log_index = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, marketID, blockNumber, logIndex).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the minimal row iterator used by scan helpers.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanRawEvents scans multiple rows into a slice of RawEvent.
func scanRawEvents(rows chRows) ([]*domain.RawEvent, error) {
	var events []*domain.RawEvent

	for rows.Next() {
		var e domain.RawEvent
		var kind string

		err := rows.Scan(
			&kind, &e.MarketID, &e.Borrower,
			&e.Assets, &e.Shares, &e.RepaidAssets, &e.SeizedAssets,
			&e.BlockTime, &e.BlockNumber, &e.LogIndex,
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
