package reporting

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// RenderCSV renders all stress results of the batch as a CSV string, one
// row per (pool, scenario). Fields containing separators are quoted per
// RFC 4180.
func RenderCSV(r *Report) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write([]string{
		"market_id", "pool_name", "scenario", "shock_pct", "liquidatable_positions",
		"collateral_at_risk_usd", "debt_at_risk_usd", "bad_debt_usd", "pct_pool_affected",
	})

	for _, pool := range r.Pools {
		for _, s := range pool.StressResults {
			_ = w.Write([]string{
				pool.MarketID,
				pool.PoolName,
				s.ScenarioName,
				fmt.Sprintf("%.4f", s.ShockPct),
				strconv.Itoa(s.LiquidatablePositions),
				fmt.Sprintf("%.6f", s.CollateralAtRiskUSD),
				fmt.Sprintf("%.6f", s.DebtAtRiskUSD),
				fmt.Sprintf("%.6f", s.BadDebtUSD),
				fmt.Sprintf("%.6f", s.PctPoolAffected),
			})
		}
	}

	w.Flush()
	return sb.String()
}
