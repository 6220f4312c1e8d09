// Package stress applies collateral price shock scenarios to a pool state
// and reports liquidation impact. The simulator is stateless: every scenario
// is evaluated independently from the same base snapshot, so results do not
// depend on scenario order and repeated runs are identical.
package stress

import (
	"fmt"

	"morpho-risk-lab/internal/domain"
)

// InvalidScenarioError reports a scenario whose shocked collateral price
// would be zero or negative. Invalid scenarios fail fast before any
// computation; they are never clamped silently.
type InvalidScenarioError struct {
	Name     string
	ShockPct float64
}

func (e *InvalidScenarioError) Error() string {
	return fmt.Sprintf("scenario %q: shock %.2f%% produces a non-positive collateral price",
		e.Name, e.ShockPct*100)
}

// Run evaluates every scenario against the base state, in order. All
// scenarios are validated up front; a single invalid scenario fails the
// whole call with *InvalidScenarioError and nothing is computed.
func Run(state *domain.PoolState, scenarios []domain.StressScenario) ([]domain.StressResult, error) {
	for _, sc := range scenarios {
		if 1+sc.ShockPct <= 0 {
			return nil, &InvalidScenarioError{Name: sc.Name, ShockPct: sc.ShockPct}
		}
	}

	results := make([]domain.StressResult, 0, len(scenarios))
	for _, sc := range scenarios {
		results = append(results, applyShock(state, sc))
	}
	return results, nil
}

// applyShock recomputes every open position's health factor under the
// shocked collateral price (loan price and LLTV unchanged) and aggregates
// the liquidatable set.
func applyShock(state *domain.PoolState, sc domain.StressScenario) domain.StressResult {
	res := domain.StressResult{
		ScenarioName: sc.Name,
		ShockPct:     sc.ShockPct,
	}

	totalDebtUSD := state.TotalBorrowUSD

	for i := range state.Positions {
		p := &state.Positions[i]
		if p.BorrowValueUSD <= 0 {
			continue
		}

		shockedHF := p.HealthFactorAfterShock(sc.ShockPct)
		if shockedHF >= 1.0 {
			continue
		}

		shockedCollateral := p.CollateralValueUSD * (1 + sc.ShockPct)
		badDebt := p.BorrowValueUSD - shockedCollateral
		if badDebt < 0 {
			badDebt = 0
		}

		res.LiquidatablePositions++
		res.CollateralAtRiskUSD += p.CollateralValueUSD // pre-shock valuation
		res.DebtAtRiskUSD += p.BorrowValueUSD
		res.BadDebtUSD += badDebt
	}

	if totalDebtUSD > 0 {
		res.PctPoolAffected = res.DebtAtRiskUSD / totalDebtUSD * 100
	}
	return res
}

// CliffPoints flags sharp jumps of pool impact between consecutive
// scenarios: positions clustered at similar health factors produce
// non-linear liquidation cascades. threshold is the minimum relative
// increase of PctPoolAffected, in percent (e.g. 50 for +50%).
func CliffPoints(results []domain.StressResult, threshold float64) []domain.CliffPoint {
	if len(results) < 2 {
		return nil
	}

	var cliffs []domain.CliffPoint
	for i := 1; i < len(results); i++ {
		prev, curr := results[i-1], results[i]

		var jump float64
		switch {
		case prev.PctPoolAffected > 0:
			jump = (curr.PctPoolAffected - prev.PctPoolAffected) / prev.PctPoolAffected * 100
		case curr.PctPoolAffected > 0:
			// First scenario with any impact counts as an infinite jump.
			jump = threshold + 1
		default:
			continue
		}

		if jump > threshold {
			cliffs = append(cliffs, domain.CliffPoint{
				FromShockPct:     prev.ShockPct,
				ToShockPct:       curr.ShockPct,
				RiskJumpPct:      jump,
				FromPoolAffected: prev.PctPoolAffected,
				ToPoolAffected:   curr.PctPoolAffected,
				NewLiquidations:  curr.LiquidatablePositions - prev.LiquidatablePositions,
			})
		}
	}
	return cliffs
}
