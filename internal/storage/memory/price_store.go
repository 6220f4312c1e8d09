package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/storage"
)

// PriceStore is an in-memory implementation of storage.PriceStore.
// Quotes are keyed by lowercase token address; the latest observation wins.
type PriceStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceQuote
}

// NewPriceStore creates a new in-memory price store.
func NewPriceStore() *PriceStore {
	return &PriceStore{
		data: make(map[string]*domain.PriceQuote),
	}
}

// Upsert stores a quote, replacing any earlier quote for the same token.
func (s *PriceStore) Upsert(_ context.Context, q *domain.PriceQuote) error {
	if q == nil || q.Token == "" {
		return storage.ErrInvalidInput
	}

	key := strings.ToLower(q.Token)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[key]; ok && existing.ObservedAt > q.ObservedAt {
		// Keep the fresher quote.
		return nil
	}

	copy := *q
	copy.Token = key
	s.data[key] = &copy
	return nil
}

// GetByToken retrieves the latest quote for a token address. Returns
// ErrNotFound if no quote exists.
func (s *PriceStore) GetByToken(_ context.Context, token string) (*domain.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, exists := s.data[strings.ToLower(token)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *q
	return &copy, nil
}

// GetAll retrieves the latest quote per token, ordered by token ASC.
func (s *PriceStore) GetAll(_ context.Context) ([]*domain.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PriceQuote, 0, len(s.data))
	for _, q := range s.data {
		copy := *q
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Token < result[j].Token
	})

	return result, nil
}

var _ storage.PriceStore = (*PriceStore)(nil)
