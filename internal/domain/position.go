package domain

import "math"

// Position is one borrower's open position in a market, with token amounts
// decimal-normalized and USD values attached. Positions with zero borrow
// assets are never built; a closed position is dropped, not retained.
type Position struct {
	MarketID           string
	Borrower           string
	BorrowAssets       float64 // loan token units
	BorrowShares       float64 // secondary/debug view
	CollateralAssets   float64 // collateral token units
	BorrowValueUSD     float64
	CollateralValueUSD float64
	LLTV               float64
	HealthFactor       float64 // +Inf when debt is zero
	LastActivity       int64
}

// ComputeHealthFactor returns (collateralUSD * lltv) / borrowUSD,
// or +Inf when there is no debt.
func ComputeHealthFactor(collateralUSD, borrowUSD, lltv float64) float64 {
	if borrowUSD <= 0 {
		return math.Inf(1)
	}
	return collateralUSD * lltv / borrowUSD
}

// Healthy reports whether the position is above the liquidation threshold.
func (p *Position) Healthy() bool {
	return p.HealthFactor > 1.0
}

// LiquidationPrice returns the collateral USD price at which the health
// factor reaches exactly 1.0, or 0 when the position holds no collateral.
func (p *Position) LiquidationPrice() float64 {
	if p.CollateralAssets == 0 {
		return 0
	}
	// HF = 1 when collateral_value = debt_value / LLTV.
	return p.BorrowValueUSD / (p.CollateralAssets * p.LLTV)
}

// HealthFactorAfterShock recomputes the health factor with the collateral
// value moved by shockPct (e.g. -0.10 for a 10% drop). Loan value and LLTV
// are unchanged.
func (p *Position) HealthFactorAfterShock(shockPct float64) float64 {
	shocked := p.CollateralValueUSD * (1 + shockPct)
	return ComputeHealthFactor(shocked, p.BorrowValueUSD, p.LLTV)
}

// PriceDropToLiquidation returns the minimal adverse collateral price move
// (as a positive fraction) that pushes the health factor below 1.
// Returns 0 when the position is already at or below liquidation.
func (p *Position) PriceDropToLiquidation() float64 {
	if math.IsInf(p.HealthFactor, 1) {
		return 0
	}
	if p.HealthFactor <= 1.0 {
		return 0
	}
	// HF scales linearly with collateral price, so drop = 1 - 1/HF.
	return 1.0 - 1.0/p.HealthFactor
}
