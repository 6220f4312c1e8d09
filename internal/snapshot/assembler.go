// Package snapshot assembles pool-level totals and the position set into an
// immutable PoolState. Utilization is always recomputed here; the upstream
// figure is never trusted.
package snapshot

import (
	"fmt"
	"math"
	"strings"

	"morpho-risk-lab/internal/config"
	"morpho-risk-lab/internal/domain"
)

// Default reconciliation bounds. absEpsilon guards markets whose upstream
// total borrow is zero, where a relative tolerance degenerates.
const (
	DefaultTolerance = 0.02
	absEpsilon       = 1e-6
)

// DataIntegrityError signals that the upstream total borrow assets disagree
// with the reconstructed position sum beyond tolerance. The caller decides
// what to do (typically re-fetch); the assembler never auto-corrects.
type DataIntegrityError struct {
	MarketID      string
	Upstream      float64
	Reconstructed float64
	Tolerance     float64
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("market %s: upstream total borrow %.6f disagrees with reconstructed %.6f (tolerance %.2f%%)",
		e.MarketID, e.Upstream, e.Reconstructed, e.Tolerance*100)
}

// Assembler builds PoolState snapshots with a configured tolerance.
type Assembler struct {
	tolerance float64
}

// New creates an assembler. A non-positive tolerance falls back to the
// default.
func New(tolerance float64) *Assembler {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Assembler{tolerance: tolerance}
}

// Assemble combines market totals, positions and prices into one PoolState.
//
// Totals arrive in raw loan token units and are decimal-normalized here.
// Returns *DataIntegrityError when the upstream total borrow disagrees with
// the position sum beyond tolerance.
func (a *Assembler) Assemble(pool config.PoolConfig, totals domain.MarketTotals, positions []domain.Position, prices map[string]domain.PriceQuote, buildReport int, snapshotTime int64) (*domain.PoolState, error) {
	loanScale := math.Pow10(pool.LoanDecimals)
	totalSupply := totals.TotalSupplyAssets / loanScale
	totalBorrow := totals.TotalBorrowAssets / loanScale

	var reconstructed float64
	for i := range positions {
		reconstructed += positions[i].BorrowAssets
	}

	// Reconciliation only makes sense when every position made it into the
	// sum; with excluded positions the gap is already accounted for by the
	// Degraded flag.
	if buildReport == 0 {
		if err := a.reconcile(pool.MarketID, totalBorrow, reconstructed); err != nil {
			return nil, err
		}
	}

	utilization := 0.0
	if totalSupply > 0 {
		utilization = totalBorrow / totalSupply
	}

	loanPrice := prices[strings.ToLower(pool.LoanToken)].PriceUSD
	collateralPrice := prices[strings.ToLower(pool.CollateralToken)].PriceUSD

	state := &domain.PoolState{
		MarketID:           pool.MarketID,
		PoolName:           pool.Name,
		TotalSupplyAssets:  totalSupply,
		TotalBorrowAssets:  totalBorrow,
		TotalSupplyUSD:     totalSupply * loanPrice,
		TotalBorrowUSD:     totalBorrow * loanPrice,
		Utilization:        utilization,
		LLTV:               pool.LLTV,
		CollateralPriceUSD: collateralPrice,
		LoanPriceUSD:       loanPrice,
		Positions:          positions,
		SnapshotTime:       snapshotTime,
		Degraded:           buildReport > 0,
		SkippedPositions:   buildReport,
	}
	return state, nil
}

// reconcile checks the upstream figure against the reconstructed sum.
// Tolerance is relative to the upstream total; when upstream is zero only
// an absolute epsilon applies.
func (a *Assembler) reconcile(marketID string, upstream, reconstructed float64) error {
	diff := math.Abs(upstream - reconstructed)
	limit := upstream * a.tolerance
	if upstream == 0 {
		limit = absEpsilon
	}
	if diff > limit {
		return &DataIntegrityError{
			MarketID:      marketID,
			Upstream:      upstream,
			Reconstructed: reconstructed,
			Tolerance:     a.tolerance,
		}
	}
	return nil
}
