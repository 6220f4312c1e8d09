package memory

import (
	"context"
	"sort"
	"sync"

	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/storage"
)

// rawEventKey is the composite key for event deduplication.
type rawEventKey struct {
	MarketID    string
	BlockNumber int64
	LogIndex    int64
}

// RawEventStore is an in-memory implementation of storage.RawEventStore.
type RawEventStore struct {
	mu   sync.RWMutex
	data []*domain.RawEvent
	keys map[rawEventKey]bool
}

// NewRawEventStore creates a new in-memory raw event store.
func NewRawEventStore() *RawEventStore {
	return &RawEventStore{
		data: make([]*domain.RawEvent, 0),
		keys: make(map[rawEventKey]bool),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if (market_id, block_number, log_index) exists.
func (s *RawEventStore) Insert(_ context.Context, e *domain.RawEvent) error {
	if e == nil || e.MarketID == "" {
		return storage.ErrInvalidInput
	}

	key := rawEventKey{
		MarketID:    e.MarketID,
		BlockNumber: e.BlockNumber,
		LogIndex:    e.LogIndex,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[key] {
		return storage.ErrDuplicateKey
	}

	// Store a copy
	copy := *e
	s.data = append(s.data, &copy)
	s.keys[key] = true

	return nil
}

// InsertBulk adds multiple events, skipping rows already stored or repeated
// within the batch. An overlapping refetch must not lose new rows.
func (s *RawEventStore) InsertBulk(_ context.Context, events []*domain.RawEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate before touching state
	for _, e := range events {
		if e == nil || e.MarketID == "" {
			return storage.ErrInvalidInput
		}
	}

	for _, e := range events {
		key := rawEventKey{
			MarketID:    e.MarketID,
			BlockNumber: e.BlockNumber,
			LogIndex:    e.LogIndex,
		}
		if s.keys[key] {
			continue
		}

		copy := *e
		s.data = append(s.data, &copy)
		s.keys[key] = true
	}

	return nil
}

// GetByMarket retrieves all events for a market, ordered by
// (block_time, block_number, log_index) ASC.
func (s *RawEventStore) GetByMarket(_ context.Context, marketID string) ([]*domain.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RawEvent
	for _, e := range s.data {
		if e.MarketID == marketID {
			copy := *e
			result = append(result, &copy)
		}
	}

	sortRawEvents(result)

	return result, nil
}

// GetByMarketTimeRange retrieves events for a market within [start, end) block time.
func (s *RawEventStore) GetByMarketTimeRange(_ context.Context, marketID string, start, end int64) ([]*domain.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RawEvent
	for _, e := range s.data {
		if e.MarketID == marketID && e.BlockTime >= start && e.BlockTime < end {
			copy := *e
			result = append(result, &copy)
		}
	}

	sortRawEvents(result)

	return result, nil
}

// sortRawEvents sorts events by (block_time, block_number, log_index).
func sortRawEvents(events []*domain.RawEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockTime != events[j].BlockTime {
			return events[i].BlockTime < events[j].BlockTime
		}
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})
}

// Verify interface compliance at compile time.
var _ storage.RawEventStore = (*RawEventStore)(nil)
