// Package scoring maps risk metrics and stress results to a composite
// 0-100 risk score (higher = riskier) via a fixed weighted policy.
package scoring

import (
	"fmt"
	"math"

	"morpho-risk-lab/internal/domain"
)

// weightTolerance is the floating slack allowed when checking that the
// four weights sum to exactly 1.
const weightTolerance = 1e-6

// InvalidWeightConfigError reports a weight set that does not sum to 1.
// Raised at construction, before any computation.
type InvalidWeightConfigError struct {
	Weights domain.ScoreWeights
	Sum     float64
}

func (e *InvalidWeightConfigError) Error() string {
	return fmt.Sprintf("score weights must sum to 1.0, got %f", e.Sum)
}

// Scorer computes composite risk scores with validated weights.
type Scorer struct {
	weights domain.ScoreWeights
}

// New creates a Scorer, validating that the weights sum to 1 within
// floating tolerance.
func New(weights domain.ScoreWeights) (*Scorer, error) {
	sum := weights.Sum()
	if math.Abs(sum-1.0) > weightTolerance {
		return nil, &InvalidWeightConfigError{Weights: weights, Sum: sum}
	}
	return &Scorer{weights: weights}, nil
}

// Score combines metrics, stress results and cliff points into the
// composite breakdown. The composite is rounded to one decimal for
// reporting determinism.
func (s *Scorer) Score(m *domain.RiskMetrics, stress []domain.StressResult, cliffs []domain.CliffPoint) domain.RiskScoreBreakdown {
	b := domain.RiskScoreBreakdown{
		UtilizationScore:   scoreUtilization(m.Utilization),
		HealthFactorScore:  scoreHealthFactor(m),
		ConcentrationScore: scoreConcentration(m),
		StressScore:        scoreStress(stress, cliffs),
		Weights:            s.weights,
	}

	composite := b.UtilizationScore*s.weights.Utilization +
		b.HealthFactorScore*s.weights.HealthFactor +
		b.ConcentrationScore*s.weights.Concentration +
		b.StressScore*s.weights.Stress

	b.Composite = math.Round(composite*10) / 10
	b.Level = Level(b.Composite)
	return b
}

// Level maps a composite score to its qualitative label.
func Level(score float64) domain.RiskLevel {
	switch {
	case score >= 80:
		return domain.RiskCritical
	case score >= 65:
		return domain.RiskHigh
	case score >= 45:
		return domain.RiskModerate
	case score >= 25:
		return domain.RiskLow
	default:
		return domain.RiskMinimal
	}
}

// clamp bounds a score to [0,100]. Every normalization saturates here
// instead of overflowing.
func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// scoreUtilization is piecewise linear with knees at 70% and 90%:
// below 70% utilization scales 0-50, 70-90% scales 50-90, above 90%
// scales 90-100.
func scoreUtilization(u float64) float64 {
	switch {
	case u > 0.90:
		return clamp(90 + (u-0.90)*100)
	case u > 0.70:
		return clamp(50 + (u-0.70)*200)
	default:
		return clamp(u * 71.4)
	}
}

// scoreHealthFactor combines the debt-weighted average health factor with
// the share of debt sitting below HF 1.1, 60/40.
func scoreHealthFactor(m *domain.RiskMetrics) float64 {
	whf := m.WeightedAvgHF

	var hfScore float64
	switch {
	case math.IsInf(whf, 1):
		hfScore = 0
	case whf < 1.1:
		hfScore = 100
	case whf < 1.3:
		hfScore = 80
	case whf < 1.5:
		hfScore = 60
	case whf < 2.0:
		hfScore = 40
	default:
		hfScore = clamp(40 - (whf-2.0)*10)
	}

	bufferPct := debtBelowHF(m, 1.1)
	var bufferScore float64
	switch {
	case bufferPct > 30:
		bufferScore = 100
	case bufferPct > 20:
		bufferScore = 80
	case bufferPct > 10:
		bufferScore = 60
	case bufferPct > 5:
		bufferScore = 40
	default:
		bufferScore = clamp(bufferPct * 8)
	}

	return clamp(hfScore*0.6 + bufferScore*0.4)
}

// debtBelowHF returns the percentage of distributed debt in buckets whose
// upper bound does not exceed the threshold.
func debtBelowHF(m *domain.RiskMetrics, threshold float64) float64 {
	var total, below float64
	for _, b := range m.HFDistribution {
		total += b.DebtUSD
		if b.High <= threshold {
			below += b.DebtUSD
		}
	}
	if total == 0 {
		return 0
	}
	return below / total * 100
}

// scoreConcentration combines the top-borrower share with the fractional
// Herfindahl index, 70/30. The Herfindahl bands are the classical HHI
// thresholds (2500/1500 on the x10000 scale) restated fractionally.
func scoreConcentration(m *domain.RiskMetrics) float64 {
	topPct := m.TopBorrowerShare * 100

	var topScore float64
	switch {
	case topPct > 80:
		topScore = 100
	case topPct > 60:
		topScore = clamp(70 + (topPct-60)*1.5)
	case topPct > 40:
		topScore = clamp(40 + (topPct-40)*1.5)
	default:
		topScore = clamp(topPct)
	}

	hhi := m.Herfindahl
	var hhiScore float64
	switch {
	case hhi > 0.25:
		hhiScore = clamp(70 + (hhi-0.25)*400/3)
	case hhi > 0.15:
		hhiScore = clamp(40 + (hhi-0.15)*300)
	default:
		hhiScore = clamp(hhi * 100 / 0.375)
	}

	return clamp(topScore*0.7 + hhiScore*0.3)
}

// scoreStress rates the pool impact of the -10% scenario and adds a
// penalty per detected cliff point, capped at 100. Without stress data a
// conservative middle score applies.
func scoreStress(results []domain.StressResult, cliffs []domain.CliffPoint) float64 {
	if len(results) == 0 {
		return 50
	}

	pct10 := 0.0
	found := false
	for _, r := range results {
		if math.Abs(r.ShockPct-(-0.10)) < 1e-9 {
			pct10 = r.PctPoolAffected
			found = true
			break
		}
	}
	if !found {
		// Fall back to the mildest scenario available.
		pct10 = results[0].PctPoolAffected
	}

	var sensitivity float64
	switch {
	case pct10 > 30:
		sensitivity = 90
	case pct10 > 15:
		sensitivity = 70
	case pct10 > 5:
		sensitivity = 50
	default:
		sensitivity = clamp(pct10 * 10)
	}

	penalty := float64(len(cliffs)) * 10
	if penalty > 30 {
		penalty = 30
	}

	return clamp(sensitivity + penalty)
}
