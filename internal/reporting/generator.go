package reporting

import (
	"context"
	"sort"
	"time"

	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/storage"
)

// Generator produces reports from stored analysis results.
type Generator struct {
	reportStore storage.ReportStore
	now         func() time.Time // injectable clock for deterministic output
}

// NewGenerator creates a report generator backed by a report store.
func NewGenerator(reportStore storage.ReportStore) *Generator {
	return &Generator{
		reportStore: reportStore,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate loads all pool reports of a run and assembles the batch report.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	pools, err := g.reportStore.GetByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return g.build(runID, pools, nil), nil
}

// FromResults assembles a batch report directly from in-memory analysis
// output, without a storage round-trip.
func (g *Generator) FromResults(runID string, pools []*domain.PoolReport, failures []domain.PoolFailure) *Report {
	return g.build(runID, pools, failures)
}

func (g *Generator) build(runID string, pools []*domain.PoolReport, failures []domain.PoolFailure) *Report {
	sorted := make([]*domain.PoolReport, len(pools))
	copy(sorted, pools)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MarketID < sorted[j].MarketID
	})

	return &Report{
		RunID:       runID,
		GeneratedAt: g.now(),
		PoolCount:   len(sorted),
		Pools:       sorted,
		Failures:    failures,
	}
}
