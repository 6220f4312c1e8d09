package domain

// PoolState is an immutable snapshot of one market at a point in time.
// Utilization is always recomputed from the totals stored alongside it,
// never trusted from upstream.
type PoolState struct {
	MarketID string
	PoolName string

	// Pool-level totals in loan token units, plus USD valuations.
	TotalSupplyAssets float64
	TotalBorrowAssets float64
	TotalSupplyUSD    float64
	TotalBorrowUSD    float64
	Utilization       float64 // TotalBorrowAssets / TotalSupplyAssets, 0 when supply is 0

	LLTV               float64
	CollateralPriceUSD float64
	LoanPriceUSD       float64

	// Open positions for this market (borrow assets > 0).
	Positions []Position

	SnapshotTime int64

	// Data-quality accounting. Degraded is set when positions had to be
	// excluded (e.g. missing prices); the analysis still runs.
	Degraded         bool
	SkippedPositions int
}

// TotalDebtUSD returns the sum of position debt values.
func (s *PoolState) TotalDebtUSD() float64 {
	var sum float64
	for i := range s.Positions {
		sum += s.Positions[i].BorrowValueUSD
	}
	return sum
}

// TotalCollateralUSD returns the sum of position collateral values.
func (s *PoolState) TotalCollateralUSD() float64 {
	var sum float64
	for i := range s.Positions {
		sum += s.Positions[i].CollateralValueUSD
	}
	return sum
}
