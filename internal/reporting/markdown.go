package reporting

import (
	"fmt"
	"math"
	"strings"
	"time"

	"morpho-risk-lab/internal/domain"
)

// RenderMarkdown renders the batch report as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Pool Risk Report\n\n")
	sb.WriteString(fmt.Sprintf("Run: %s\n\n", r.RunID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Pools analyzed: %d | Failed: %d\n\n", r.PoolCount, len(r.Failures)))
	if r.UnknownMarketEvents > 0 {
		sb.WriteString(fmt.Sprintf("Skipped %d event rows for unconfigured markets during ingestion.\n\n",
			r.UnknownMarketEvents))
	}

	for _, pool := range r.Pools {
		writePoolSection(&sb, pool)
	}

	// Failed Pools
	if len(r.Failures) > 0 {
		sb.WriteString("## Failed Pools\n\n")
		sb.WriteString("| Pool | Market | Reason |\n")
		sb.WriteString("|------|--------|--------|\n")
		for _, f := range r.Failures {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n", f.PoolName, f.MarketID, f.Reason))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func writePoolSection(sb *strings.Builder, p *domain.PoolReport) {
	sb.WriteString(fmt.Sprintf("## %s (`%s`)\n\n", p.PoolName, p.MarketID))
	sb.WriteString(fmt.Sprintf("**Risk Score: %.1f / 100 — %s**\n\n", p.Score.Composite, p.Score.Level))

	if p.State.Degraded {
		sb.WriteString(fmt.Sprintf("> Degraded analysis: %d positions excluded for missing prices.\n\n",
			p.SkippedPositions))
	}

	// Summary
	sb.WriteString("### Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Supply (USD) | %.2f |\n", p.State.TotalSupplyUSD))
	sb.WriteString(fmt.Sprintf("| Total Borrow (USD) | %.2f |\n", p.State.TotalBorrowUSD))
	sb.WriteString(fmt.Sprintf("| Utilization | %.2f%% |\n", p.State.Utilization*100))
	sb.WriteString(fmt.Sprintf("| LLTV | %.2f |\n", p.State.LLTV))
	sb.WriteString(fmt.Sprintf("| Open Positions | %d |\n", p.OpenPositions))
	sb.WriteString(fmt.Sprintf("| Weighted Avg Health Factor | %s |\n", formatHF(p.Metrics.WeightedAvgHF)))
	sb.WriteString(fmt.Sprintf("| Top Borrower Share | %.2f%% |\n", p.Metrics.TopBorrowerShare*100))
	sb.WriteString(fmt.Sprintf("| Gini | %.4f |\n", p.Metrics.Gini))
	sb.WriteString(fmt.Sprintf("| Herfindahl | %.4f |\n", p.Metrics.Herfindahl))
	sb.WriteString(fmt.Sprintf("| Vulnerable Debt (<%.0f%% move) | %.2f%% |\n",
		p.Metrics.Sensitivity.Threshold*100, p.Metrics.Sensitivity.VulnerableFraction*100))
	sb.WriteString("\n")

	// Health Factor Distribution
	sb.WriteString("### Health Factor Distribution\n\n")
	sb.WriteString("| Bucket | Positions | Debt (USD) |\n")
	sb.WriteString("|--------|-----------|------------|\n")
	for _, b := range p.Metrics.HFDistribution {
		sb.WriteString(fmt.Sprintf("| %s | %d | %.2f |\n", b.Label, b.Count, b.DebtUSD))
	}
	sb.WriteString("\n")

	// Stress Test Results
	sb.WriteString("### Stress Test Results\n\n")
	if len(p.StressResults) > 0 {
		sb.WriteString("| Scenario | Shock | Liquidatable | Debt at Risk (USD) | Bad Debt (USD) | Pool Affected |\n")
		sb.WriteString("|----------|-------|--------------|--------------------|----------------|---------------|\n")
		for _, s := range p.StressResults {
			sb.WriteString(fmt.Sprintf("| %s | %.0f%% | %d | %.2f | %.2f | %.2f%% |\n",
				s.ScenarioName, s.ShockPct*100, s.LiquidatablePositions,
				s.DebtAtRiskUSD, s.BadDebtUSD, s.PctPoolAffected))
		}
	} else {
		sb.WriteString("No stress results available.\n")
	}
	sb.WriteString("\n")

	// Cliff Points
	if len(p.CliffPoints) > 0 {
		sb.WriteString("### Cliff Points\n\n")
		sb.WriteString("| From | To | Risk Jump | New Liquidations |\n")
		sb.WriteString("|------|----|-----------|------------------|\n")
		for _, c := range p.CliffPoints {
			sb.WriteString(fmt.Sprintf("| %.0f%% | %.0f%% | +%.1f%% | %d |\n",
				c.FromShockPct*100, c.ToShockPct*100, c.RiskJumpPct, c.NewLiquidations))
		}
		sb.WriteString("\n")
	}

	// Score Breakdown
	sb.WriteString("### Score Breakdown\n\n")
	sb.WriteString("| Component | Score | Weight |\n")
	sb.WriteString("|-----------|-------|--------|\n")
	sb.WriteString(fmt.Sprintf("| Utilization | %.1f | %.2f |\n", p.Score.UtilizationScore, p.Score.Weights.Utilization))
	sb.WriteString(fmt.Sprintf("| Health Factor | %.1f | %.2f |\n", p.Score.HealthFactorScore, p.Score.Weights.HealthFactor))
	sb.WriteString(fmt.Sprintf("| Concentration | %.1f | %.2f |\n", p.Score.ConcentrationScore, p.Score.Weights.Concentration))
	sb.WriteString(fmt.Sprintf("| Stress | %.1f | %.2f |\n", p.Score.StressScore, p.Score.Weights.Stress))
	sb.WriteString("\n")

	// Top Borrowers
	sb.WriteString("### Top Borrowers\n\n")
	if len(p.TopBorrowers) > 0 {
		sb.WriteString("| Borrower | Debt (USD) | Health Factor | At Risk |\n")
		sb.WriteString("|----------|------------|---------------|--------|\n")
		for _, b := range p.TopBorrowers {
			atRisk := ""
			if b.AtRisk {
				atRisk = "YES"
			}
			sb.WriteString(fmt.Sprintf("| %s | %.2f | %s | %s |\n",
				b.Borrower, b.DebtUSD, formatHF(b.HealthFactor), atRisk))
		}
	} else {
		sb.WriteString("No open positions.\n")
	}
	sb.WriteString("\n")

	if p.UnknownMarketEvents > 0 {
		sb.WriteString(fmt.Sprintf("Skipped %d events for unconfigured markets.\n\n", p.UnknownMarketEvents))
	}
}

// formatHF renders a health factor, "inf" for positions with no debt.
func formatHF(hf float64) string {
	if math.IsInf(hf, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.3f", hf)
}
