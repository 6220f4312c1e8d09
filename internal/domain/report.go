package domain

// PoolReport is the full analysis output for one pool, consumed by the
// reporting layer and persisted by the report store.
type PoolReport struct {
	RunID    string // analysis run identifier
	MarketID string
	PoolName string

	State         PoolState
	Metrics       RiskMetrics
	StressResults []StressResult // in configured scenario order
	CliffPoints   []CliffPoint
	Score         RiskScoreBreakdown
	TopBorrowers  []TopBorrower // debt descending

	// OpenPositions is the position count at snapshot time. The count
	// survives storage; position-level detail does not, it is
	// reproducible from the event log.
	OpenPositions int

	// Accounting of skipped inputs so degraded data is visible, not silent.
	UnknownMarketEvents int
	SkippedPositions    int

	GeneratedAt int64 // Unix timestamp in seconds
}

// PoolFailure records a pool whose analysis aborted. Other pools in the
// same batch still produce full reports.
type PoolFailure struct {
	MarketID string
	PoolName string
	Reason   string
}
