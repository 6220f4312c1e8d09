package memory

import (
	"context"
	"sort"
	"sync"

	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/storage"
)

// reportKey is the composite key for report deduplication.
type reportKey struct {
	RunID    string
	MarketID string
}

// ReportStore is an in-memory implementation of storage.ReportStore.
type ReportStore struct {
	mu   sync.RWMutex
	data map[reportKey]*domain.PoolReport
}

// NewReportStore creates a new in-memory report store.
func NewReportStore() *ReportStore {
	return &ReportStore{
		data: make(map[reportKey]*domain.PoolReport),
	}
}

// Insert adds a finished report. Returns ErrDuplicateKey if (run_id, market_id) exists.
func (s *ReportStore) Insert(_ context.Context, r *domain.PoolReport) error {
	if r == nil || r.RunID == "" || r.MarketID == "" {
		return storage.ErrInvalidInput
	}

	key := reportKey{RunID: r.RunID, MarketID: r.MarketID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[key] = &copy
	return nil
}

// GetByRun retrieves all reports of a run, ordered by market_id ASC.
func (s *ReportStore) GetByRun(_ context.Context, runID string) ([]*domain.PoolReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PoolReport
	for key, r := range s.data {
		if key.RunID == runID {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].MarketID < result[j].MarketID
	})

	return result, nil
}

// GetLatestByMarket retrieves the most recent report for a market. Returns
// ErrNotFound if the market was never analyzed.
func (s *ReportStore) GetLatestByMarket(_ context.Context, marketID string) (*domain.PoolReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.PoolReport
	for key, r := range s.data {
		if key.MarketID != marketID {
			continue
		}
		if latest == nil || r.GeneratedAt > latest.GeneratedAt {
			latest = r
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound
	}

	copy := *latest
	return &copy, nil
}

var _ storage.ReportStore = (*ReportStore)(nil)
