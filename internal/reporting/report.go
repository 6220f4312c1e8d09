package reporting

import (
	"time"

	"morpho-risk-lab/internal/domain"
)

// Report is the batch-level report: one section per analyzed pool plus
// the pools whose analysis aborted.
type Report struct {
	// Metadata
	RunID       string
	GeneratedAt time.Time
	PoolCount   int

	// Pool sections, ordered by market id.
	Pools []*domain.PoolReport

	// Pools that failed with their reason strings.
	Failures []domain.PoolFailure

	// UnknownMarketEvents counts event rows skipped at ingestion for
	// referencing markets outside the configured set.
	UnknownMarketEvents int
}
