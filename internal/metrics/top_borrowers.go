package metrics

import (
	"sort"

	"morpho-risk-lab/internal/domain"
)

// TopBorrowers ranks the n largest positions by debt value descending and
// flags those below the warning health factor threshold. Ties are broken by
// borrower address ascending for deterministic output.
func TopBorrowers(state *domain.PoolState, n int, warnThreshold float64) []domain.TopBorrower {
	if n <= 0 {
		return nil
	}

	sorted := make([]domain.Position, len(state.Positions))
	copy(sorted, state.Positions)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].BorrowValueUSD != sorted[j].BorrowValueUSD {
			return sorted[i].BorrowValueUSD > sorted[j].BorrowValueUSD
		}
		return sorted[i].Borrower < sorted[j].Borrower
	})

	if n > len(sorted) {
		n = len(sorted)
	}

	top := make([]domain.TopBorrower, 0, n)
	for _, p := range sorted[:n] {
		top = append(top, domain.TopBorrower{
			Borrower:     p.Borrower,
			DebtUSD:      p.BorrowValueUSD,
			HealthFactor: p.HealthFactor,
			AtRisk:       p.HealthFactor < warnThreshold,
		})
	}
	return top
}
