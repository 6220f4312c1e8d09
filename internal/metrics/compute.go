// Package metrics computes risk metrics for a pool state. Every function is
// a pure transformation: no I/O, no shared state, safe to call concurrently
// on distinct snapshots.
package metrics

import (
	"math"
	"sort"

	"morpho-risk-lab/internal/domain"
)

// Options configures metric computation.
type Options struct {
	// SensitivityThreshold is the adverse price move below which debt
	// counts as vulnerable (default 0.10 = 10%).
	SensitivityThreshold float64
}

// DefaultSensitivityThreshold is used when Options leaves it unset.
const DefaultSensitivityThreshold = 0.10

// hfBucketBounds defines the health factor distribution bins. The last
// bound is open-ended.
var hfBucketBounds = []struct {
	label string
	low   float64
	high  float64
}{
	{"<1.0", 0, 1.0},
	{"1.0-1.1", 1.0, 1.1},
	{"1.1-1.25", 1.1, 1.25},
	{"1.25-1.5", 1.25, 1.5},
	{">=1.5", 1.5, math.Inf(1)},
}

// Compute calculates all risk metrics for a pool state. Every metric is
// well-defined on an empty position set: 0 utilization pass-through, empty
// distribution, 0 concentration, empty sensitivity.
func Compute(state *domain.PoolState, opts Options) *domain.RiskMetrics {
	threshold := opts.SensitivityThreshold
	if threshold <= 0 {
		threshold = DefaultSensitivityThreshold
	}

	m := &domain.RiskMetrics{
		Utilization: state.Utilization,
	}

	open := openPositions(state.Positions)
	m.NoDebtPositions = len(state.Positions) - len(open)

	m.HFDistribution = healthFactorDistribution(open)
	m.WeightedAvgHF = weightedAvgHealthFactor(open)

	debts := make([]float64, len(open))
	for i, p := range open {
		debts[i] = p.BorrowValueUSD
	}
	m.TopBorrowerShare = topBorrowerShare(debts)
	m.Gini = giniCoefficient(debts)
	m.Herfindahl = herfindahlIndex(debts)

	m.Sensitivity = oracleSensitivity(open, threshold)

	return m
}

// openPositions filters to positions with a defined (finite) health factor.
// Positions with no debt never make it into the distribution or the
// concentration vectors; they are counted separately.
func openPositions(positions []domain.Position) []domain.Position {
	open := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		if p.BorrowValueUSD > 0 && !math.IsInf(p.HealthFactor, 1) {
			open = append(open, p)
		}
	}
	return open
}

// healthFactorDistribution buckets open positions by health factor,
// reporting count and total debt value per bin.
func healthFactorDistribution(open []domain.Position) []domain.HFBucket {
	buckets := make([]domain.HFBucket, len(hfBucketBounds))
	for i, b := range hfBucketBounds {
		buckets[i] = domain.HFBucket{Label: b.label, Low: b.low, High: b.high}
	}

	for _, p := range open {
		for i, b := range hfBucketBounds {
			if p.HealthFactor >= b.low && p.HealthFactor < b.high {
				buckets[i].Count++
				buckets[i].DebtUSD += p.BorrowValueUSD
				break
			}
		}
	}
	return buckets
}

// weightedAvgHealthFactor returns the debt-weighted average health factor,
// +Inf when there is no debt.
func weightedAvgHealthFactor(open []domain.Position) float64 {
	var totalDebt, weighted float64
	for _, p := range open {
		totalDebt += p.BorrowValueUSD
		weighted += p.HealthFactor * p.BorrowValueUSD
	}
	if totalDebt == 0 {
		return math.Inf(1)
	}
	return weighted / totalDebt
}

// topBorrowerShare returns the largest debt as a fraction of total debt,
// 0 when there are no positions.
func topBorrowerShare(debts []float64) float64 {
	var total, top float64
	for _, d := range debts {
		total += d
		if d > top {
			top = d
		}
	}
	if total == 0 {
		return 0
	}
	return top / total
}

// giniCoefficient computes the Gini coefficient over debt values via the
// standard normalized mean-absolute-difference formula. Defined as 0 for
// fewer than 2 positions.
func giniCoefficient(debts []float64) float64 {
	n := len(debts)
	if n < 2 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, debts)
	sort.Float64s(sorted)

	var total float64
	for _, d := range sorted {
		total += d
	}
	if total == 0 {
		return 0
	}

	// For sorted values: G = (2 * sum(i * x_i)) / (n * sum(x)) - (n+1)/n,
	// with 1-based index i. Equivalent to the mean-absolute-difference form.
	var weighted float64
	for i, d := range sorted {
		weighted += float64(i+1) * d
	}
	return 2*weighted/(float64(n)*total) - float64(n+1)/float64(n)
}

// herfindahlIndex returns the sum of squared debt shares. Fractional
// convention: result is in [0,1]; the scorer's thresholds assume this scale.
func herfindahlIndex(debts []float64) float64 {
	var total float64
	for _, d := range debts {
		total += d
	}
	if total == 0 {
		return 0
	}

	var hhi float64
	for _, d := range debts {
		share := d / total
		hhi += share * share
	}
	return hhi
}

// oracleSensitivity reports, per open position, the minimal adverse
// collateral price move that pushes its health factor below 1, and the
// borrow-weighted fraction of debt vulnerable to moves under the threshold.
func oracleSensitivity(open []domain.Position, threshold float64) domain.OracleSensitivity {
	sens := domain.OracleSensitivity{Threshold: threshold}
	if len(open) == 0 {
		return sens
	}

	var totalDebt, vulnerableDebt float64
	for _, p := range open {
		ps := domain.PositionSensitivity{
			Borrower: p.Borrower,
			DebtUSD:  p.BorrowValueUSD,
		}
		switch {
		case p.CollateralValueUSD == 0:
			// No collateral value: no finite price move changes anything,
			// yet the position is already below HF 1 whenever it has debt.
			ps.Never = true
			ps.AlreadyUnsafe = p.HealthFactor < 1
		case p.HealthFactor < 1:
			ps.AlreadyUnsafe = true
		default:
			ps.DropToUnsafe = p.PriceDropToLiquidation()
		}
		sens.Positions = append(sens.Positions, ps)

		totalDebt += p.BorrowValueUSD
		if ps.AlreadyUnsafe || (!ps.Never && ps.DropToUnsafe < threshold) {
			vulnerableDebt += p.BorrowValueUSD
		}
	}

	if totalDebt > 0 {
		sens.VulnerableFraction = vulnerableDebt / totalDebt
	}
	return sens
}
