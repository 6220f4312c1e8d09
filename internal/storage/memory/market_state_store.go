package memory

import (
	"context"
	"sync"

	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/storage"
)

// MarketStateStore is an in-memory implementation of storage.MarketStateStore.
// The latest BlockTime per market wins.
type MarketStateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.MarketTotals
}

// NewMarketStateStore creates a new in-memory market state store.
func NewMarketStateStore() *MarketStateStore {
	return &MarketStateStore{
		data: make(map[string]*domain.MarketTotals),
	}
}

// Upsert stores market totals, keeping the snapshot with the latest BlockTime.
func (s *MarketStateStore) Upsert(_ context.Context, t *domain.MarketTotals) error {
	if t == nil || t.MarketID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[t.MarketID]; ok && existing.BlockTime > t.BlockTime {
		return nil
	}

	copy := *t
	s.data[t.MarketID] = &copy
	return nil
}

// GetByMarket retrieves the latest totals for a market. Returns ErrNotFound
// if no snapshot exists.
func (s *MarketStateStore) GetByMarket(_ context.Context, marketID string) (*domain.MarketTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[marketID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

var _ storage.MarketStateStore = (*MarketStateStore)(nil)
