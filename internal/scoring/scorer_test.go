package scoring

import (
	"errors"
	"math"
	"testing"

	"morpho-risk-lab/internal/domain"
)

func TestNew_RejectsBadWeights(t *testing.T) {
	_, err := New(domain.ScoreWeights{
		Utilization:   0.25,
		HealthFactor:  0.25,
		Concentration: 0.25,
		Stress:        0.30, // sum 1.05
	})

	var invalid *InvalidWeightConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidWeightConfigError, got %v", err)
	}
	if math.Abs(invalid.Sum-1.05) > 1e-9 {
		t.Errorf("unexpected sum in error: %f", invalid.Sum)
	}
}

func TestNew_AcceptsDefaultWeights(t *testing.T) {
	if _, err := New(domain.DefaultWeights); err != nil {
		t.Errorf("expected default weights to validate, got %v", err)
	}
}

func TestNew_FloatingTolerance(t *testing.T) {
	w := domain.DefaultWeights
	w.Stress += 1e-8
	if _, err := New(w); err != nil {
		t.Errorf("expected tiny drift within tolerance, got %v", err)
	}
}

func TestScoreUtilization_MonotonicAndClamped(t *testing.T) {
	inputs := []float64{0, 0.3, 0.7, 0.8, 0.9, 0.95, 1.0, 2.0}
	prev := -1.0
	for _, u := range inputs {
		s := scoreUtilization(u)
		if s < 0 || s > 100 {
			t.Errorf("utilization score out of bounds for %f: %f", u, s)
		}
		if s < prev {
			t.Errorf("utilization score not monotonic at %f: %f < %f", u, s, prev)
		}
		prev = s
	}
	if s := scoreUtilization(2.0); s != 100 {
		t.Errorf("expected saturation at 100, got %f", s)
	}
}

func TestScoreHealthFactor_SafePoolScoresZero(t *testing.T) {
	m := &domain.RiskMetrics{WeightedAvgHF: math.Inf(1)}
	if s := scoreHealthFactor(m); s != 0 {
		t.Errorf("expected 0 for no-debt pool, got %f", s)
	}
}

func TestScoreHealthFactor_CriticalPool(t *testing.T) {
	m := &domain.RiskMetrics{
		WeightedAvgHF: 1.02,
		HFDistribution: []domain.HFBucket{
			{Label: "<1.0", High: 1.0, DebtUSD: 500},
			{Label: "1.0-1.1", Low: 1.0, High: 1.1, DebtUSD: 500},
		},
	}
	// hfScore 100, buffer 100% below 1.1 → bufferScore 100.
	if s := scoreHealthFactor(m); s != 100 {
		t.Errorf("expected 100 for critical pool, got %f", s)
	}
}

func TestScoreConcentration_MonotonicInTopShare(t *testing.T) {
	prev := -1.0
	for _, share := range []float64{0, 0.2, 0.45, 0.65, 0.85, 1.0} {
		m := &domain.RiskMetrics{TopBorrowerShare: share, Herfindahl: share * share}
		s := scoreConcentration(m)
		if s < 0 || s > 100 {
			t.Errorf("concentration score out of bounds: %f", s)
		}
		if s < prev {
			t.Errorf("concentration score not monotonic at share %f", share)
		}
		prev = s
	}
}

func TestScoreStress_UsesMinusTenScenario(t *testing.T) {
	results := []domain.StressResult{
		{ShockPct: -0.05, PctPoolAffected: 0},
		{ShockPct: -0.10, PctPoolAffected: 40},
	}
	if s := scoreStress(results, nil); s != 90 {
		t.Errorf("expected 90 for >30%% impact at -10%%, got %f", s)
	}
}

func TestScoreStress_CliffPenaltyCapped(t *testing.T) {
	results := []domain.StressResult{{ShockPct: -0.10, PctPoolAffected: 40}}
	cliffs := make([]domain.CliffPoint, 5) // 50 penalty uncapped, 30 capped

	s := scoreStress(results, cliffs)
	if s != 100 {
		t.Errorf("expected 90+30 clamped to 100, got %f", s)
	}
}

func TestScoreStress_NoResultsConservativeDefault(t *testing.T) {
	if s := scoreStress(nil, nil); s != 50 {
		t.Errorf("expected conservative 50 without stress data, got %f", s)
	}
}

func TestScore_CompositeWeightedAndRounded(t *testing.T) {
	scorer, err := New(domain.DefaultWeights)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m := &domain.RiskMetrics{
		Utilization:      0.6,
		WeightedAvgHF:    1.4,
		TopBorrowerShare: 0.9,
		Herfindahl:       0.82,
		HFDistribution: []domain.HFBucket{
			{Label: ">=1.5", Low: 1.5, High: math.Inf(1), DebtUSD: 1000},
		},
	}
	stress := []domain.StressResult{{ShockPct: -0.10, PctPoolAffected: 8}}

	b := scorer.Score(m, stress, nil)

	if b.Composite < 0 || b.Composite > 100 {
		t.Errorf("composite out of bounds: %f", b.Composite)
	}
	// One-decimal rounding.
	if math.Abs(b.Composite*10-math.Round(b.Composite*10)) > 1e-9 {
		t.Errorf("expected composite rounded to one decimal, got %f", b.Composite)
	}

	want := b.UtilizationScore*0.15 + b.HealthFactorScore*0.30 +
		b.ConcentrationScore*0.25 + b.StressScore*0.30
	if math.Abs(b.Composite-math.Round(want*10)/10) > 1e-9 {
		t.Errorf("composite %f does not match weighted sum %f", b.Composite, want)
	}
	if b.Weights != domain.DefaultWeights {
		t.Errorf("expected weights echoed in breakdown")
	}
}

func TestLevel(t *testing.T) {
	cases := []struct {
		score float64
		want  domain.RiskLevel
	}{
		{10, domain.RiskMinimal},
		{25, domain.RiskLow},
		{45, domain.RiskModerate},
		{65, domain.RiskHigh},
		{80, domain.RiskCritical},
		{100, domain.RiskCritical},
	}
	for _, c := range cases {
		if got := Level(c.score); got != c.want {
			t.Errorf("Level(%f) = %s, want %s", c.score, got, c.want)
		}
	}
}
