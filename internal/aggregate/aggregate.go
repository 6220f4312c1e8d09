// Package aggregate reconstructs net per-borrower balances from the
// append-only market event log. Aggregation is a deterministic fold over a
// sorted copy of the input: re-aggregating the same event set always yields
// the same result, and the input slice is never mutated.
package aggregate

import (
	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/logger"
)

// Result holds aggregated balances plus accounting of skipped input.
type Result struct {
	// Balances keyed by borrower address, for one market.
	Balances map[string]*domain.BorrowerBalance

	// UnknownMarketEvents counts events referencing markets outside the
	// configured set. They are skipped with a warning, never fatal.
	UnknownMarketEvents int
}

// NetBalances folds events into net balances for the given market.
// knownMarkets is the configured market set; events for other markets are
// dropped with a warning and counted in the result.
//
// Accounting rule (asset-based, liquidation-inclusive):
//
//	borrow     = sum(Borrow.assets) - sum(Repay.assets) - sum(Liquidate.repaid)
//	shares     = sum(Borrow.shares) - sum(Repay.shares)          (debug view)
//	collateral = sum(SupplyCollateral.assets) - sum(WithdrawCollateral.assets)
//	           - sum(Liquidate.seized)
//
// All balances clamp to >= 0 after the full fold; a position cannot owe
// negative debt.
func NetBalances(marketID string, events []domain.RawEvent, knownMarkets map[string]bool) *Result {
	sorted := make([]domain.RawEvent, len(events))
	copy(sorted, events)
	SortEvents(sorted)

	res := &Result{Balances: make(map[string]*domain.BorrowerBalance)}

	for i := range sorted {
		ev := &sorted[i]

		if !knownMarkets[ev.MarketID] {
			logger.Warn("skipping event for unconfigured market %s (kind=%s block=%d)",
				ev.MarketID, ev.Kind, ev.BlockNumber)
			res.UnknownMarketEvents++
			continue
		}
		if ev.MarketID != marketID {
			continue
		}

		// Supply events are lender-side; they carry no borrower balance.
		if ev.Kind == domain.EventSupply {
			continue
		}

		bal := res.Balances[ev.Borrower]
		if bal == nil {
			bal = &domain.BorrowerBalance{MarketID: marketID, Borrower: ev.Borrower}
			res.Balances[ev.Borrower] = bal
		}

		switch ev.Kind {
		case domain.EventBorrow:
			bal.BorrowAssets += ev.Assets
			bal.BorrowShares += ev.Shares
		case domain.EventRepay:
			bal.BorrowAssets -= ev.Assets
			bal.BorrowShares -= ev.Shares
		case domain.EventSupplyCollateral:
			bal.CollateralAssets += ev.Assets
		case domain.EventWithdrawCollateral:
			bal.CollateralAssets -= ev.Assets
		case domain.EventLiquidate:
			bal.BorrowAssets -= ev.RepaidAssets
			bal.CollateralAssets -= ev.SeizedAssets
		}

		if ev.BlockTime > bal.LastActivity {
			bal.LastActivity = ev.BlockTime
		}
	}

	// Clamp after the full fold, not per step: intermediate ordering noise
	// must not leak into the final balance.
	for _, bal := range res.Balances {
		if bal.BorrowAssets < 0 {
			bal.BorrowAssets = 0
		}
		if bal.BorrowShares < 0 {
			bal.BorrowShares = 0
		}
		if bal.CollateralAssets < 0 {
			bal.CollateralAssets = 0
		}
	}

	return res
}
