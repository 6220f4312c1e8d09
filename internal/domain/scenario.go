package domain

import "fmt"

// StressScenario is a named collateral price shock. ShockPct is a decimal
// applied multiplicatively to the collateral price only (-0.30 = -30%);
// the loan price is held fixed.
type StressScenario struct {
	Name     string
	ShockPct float64
}

// DefaultScenarios is the standard shock ladder, mildest first.
var DefaultScenarios = []StressScenario{
	{Name: "-5% price shock", ShockPct: -0.05},
	{Name: "-10% price shock", ShockPct: -0.10},
	{Name: "-15% price shock", ShockPct: -0.15},
	{Name: "-20% price shock", ShockPct: -0.20},
	{Name: "-30% price shock", ShockPct: -0.30},
	{Name: "-40% price shock", ShockPct: -0.40},
	{Name: "-50% price shock", ShockPct: -0.50},
}

// ScenarioFromShock builds a scenario with the conventional name for a
// given shock percentage.
func ScenarioFromShock(shockPct float64) StressScenario {
	return StressScenario{
		Name:     fmt.Sprintf("%+.0f%% price shock", shockPct*100),
		ShockPct: shockPct,
	}
}

// StressResult is the outcome of applying one scenario to a pool state.
type StressResult struct {
	ScenarioName          string
	ShockPct              float64
	LiquidatablePositions int
	CollateralAtRiskUSD   float64 // pre-shock valuation, for magnitude context
	DebtAtRiskUSD         float64
	BadDebtUSD            float64 // debt not covered by shocked collateral
	PctPoolAffected       float64 // liquidatable debt / total pool borrow, in percent
}

// CliffPoint flags a sharp jump in pool impact between two consecutive
// scenarios, indicating positions clustered at similar health factors.
type CliffPoint struct {
	FromShockPct     float64
	ToShockPct       float64
	RiskJumpPct      float64 // relative increase of PctPoolAffected
	FromPoolAffected float64
	ToPoolAffected   float64
	NewLiquidations  int
}
