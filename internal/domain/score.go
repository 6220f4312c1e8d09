package domain

// RiskLevel is the qualitative label for a composite score.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "MINIMAL"
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// ScoreWeights are the composite weights. They must sum to 1; validation
// happens at scorer construction, before any computation.
type ScoreWeights struct {
	Utilization   float64
	HealthFactor  float64
	Concentration float64
	Stress        float64
}

// DefaultWeights matches the standard scoring policy.
var DefaultWeights = ScoreWeights{
	Utilization:   0.15,
	HealthFactor:  0.30,
	Concentration: 0.25,
	Stress:        0.30,
}

// Sum returns the total of the four weights.
func (w ScoreWeights) Sum() float64 {
	return w.Utilization + w.HealthFactor + w.Concentration + w.Stress
}

// RiskScoreBreakdown holds the four component scores (each 0-100, higher is
// riskier), the weights applied, and the weighted composite rounded to one
// decimal.
type RiskScoreBreakdown struct {
	UtilizationScore   float64
	HealthFactorScore  float64
	ConcentrationScore float64
	StressScore        float64
	Weights            ScoreWeights
	Composite          float64
	Level              RiskLevel
}
