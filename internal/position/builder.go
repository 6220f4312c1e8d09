// Package position joins aggregated borrower balances with the current
// price table to build open positions. Pure and price-table-driven: there
// is no implicit "current price" global anywhere in the pipeline.
package position

import (
	"fmt"
	"math"
	"strings"

	"morpho-risk-lab/internal/config"
	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/logger"
)

// MissingPriceError reports that a required token price was absent. The
// affected positions are excluded and the pool continues degraded; this is
// a data-quality condition, not a crash.
type MissingPriceError struct {
	MarketID string
	Token    string
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("missing price for token %s (market %s)", e.Token, e.MarketID)
}

// BuildReport accounts for balances that did not become positions.
type BuildReport struct {
	Excluded      int
	MissingTokens []string
}

// Build converts net balances into open positions for one pool.
//
// A balance becomes a Position only when its net borrow assets are positive;
// closed positions are dropped, never emitted with zero debt. When the
// collateral or loan price is missing the whole pool's positions are
// excluded and the omission is reported through the returned error and
// BuildReport. Output carries no ordering guarantee.
func Build(pool config.PoolConfig, balances map[string]*domain.BorrowerBalance, prices map[string]domain.PriceQuote) ([]domain.Position, BuildReport, error) {
	report := BuildReport{}

	collateralQuote, okC := lookup(prices, pool.CollateralToken)
	loanQuote, okL := lookup(prices, pool.LoanToken)
	if !okC || !okL {
		missing := pool.CollateralToken
		if okC {
			missing = pool.LoanToken
		}
		for _, token := range []string{pool.CollateralToken, pool.LoanToken} {
			if _, ok := lookup(prices, token); !ok {
				report.MissingTokens = append(report.MissingTokens, strings.ToLower(token))
			}
		}
		report.Excluded = countOpen(balances)
		logger.Warn("pool %s: excluding %d positions, price missing for %v",
			pool.Name, report.Excluded, report.MissingTokens)
		return nil, report, &MissingPriceError{MarketID: pool.MarketID, Token: missing}
	}

	collateralScale := math.Pow10(pool.CollateralDecimals)
	loanScale := math.Pow10(pool.LoanDecimals)

	positions := make([]domain.Position, 0, len(balances))
	for _, bal := range balances {
		if bal.BorrowAssets <= 0 {
			continue
		}

		borrowAssets := bal.BorrowAssets / loanScale
		collateralAssets := bal.CollateralAssets / collateralScale
		borrowUSD := borrowAssets * loanQuote.PriceUSD
		collateralUSD := collateralAssets * collateralQuote.PriceUSD

		positions = append(positions, domain.Position{
			MarketID:           bal.MarketID,
			Borrower:           bal.Borrower,
			BorrowAssets:       borrowAssets,
			BorrowShares:       bal.BorrowShares / loanScale,
			CollateralAssets:   collateralAssets,
			BorrowValueUSD:     borrowUSD,
			CollateralValueUSD: collateralUSD,
			LLTV:               pool.LLTV,
			HealthFactor:       domain.ComputeHealthFactor(collateralUSD, borrowUSD, pool.LLTV),
			LastActivity:       bal.LastActivity,
		})
	}

	return positions, report, nil
}

// lookup resolves a price quote case-insensitively; the price table keys
// and pool config addresses may differ in hex casing.
func lookup(prices map[string]domain.PriceQuote, token string) (domain.PriceQuote, bool) {
	q, ok := prices[strings.ToLower(token)]
	return q, ok
}

func countOpen(balances map[string]*domain.BorrowerBalance) int {
	n := 0
	for _, bal := range balances {
		if bal.BorrowAssets > 0 {
			n++
		}
	}
	return n
}
