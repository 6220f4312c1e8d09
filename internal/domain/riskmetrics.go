package domain

// HFBucket is one bin of the health-factor distribution.
type HFBucket struct {
	Label    string
	Low      float64 // inclusive lower bound
	High     float64 // exclusive upper bound, +Inf for the last bin
	Count    int
	DebtUSD  float64
}

// PositionSensitivity describes how far one position is from liquidation
// under an adverse collateral price move.
type PositionSensitivity struct {
	Borrower      string
	DebtUSD       float64
	DropToUnsafe  float64 // minimal adverse move as a positive fraction
	AlreadyUnsafe bool    // health factor already < 1
	Never         bool    // zero collateral value, no finite move applies
}

// OracleSensitivity aggregates per-position price sensitivity.
type OracleSensitivity struct {
	Positions []PositionSensitivity
	// Fraction of borrow-weighted debt vulnerable to moves smaller than
	// the configured threshold (positions already unsafe included).
	Threshold          float64
	VulnerableFraction float64
}

// RiskMetrics is the Risk Metrics Engine output for one pool state.
// All fields are well-defined on an empty position set.
type RiskMetrics struct {
	Utilization float64

	// Health factor distribution over open positions. Positions with an
	// undefined (infinite) health factor never enter the distribution;
	// they are counted in NoDebtPositions.
	HFDistribution  []HFBucket
	NoDebtPositions int
	WeightedAvgHF   float64 // debt-weighted, +Inf when there is no debt

	// Concentration.
	TopBorrowerShare float64 // largest debt / total debt, 0 with no positions
	Gini             float64 // [0,1], 0 when fewer than 2 positions
	// Herfindahl uses the fractional convention: sum of squared debt
	// shares, in [0,1]. All callers (scorer included) assume this scale.
	Herfindahl float64

	Sensitivity OracleSensitivity
}

// TopBorrower is one entry of the ranked top-borrower list attached to
// a pool report.
type TopBorrower struct {
	Borrower     string
	DebtUSD      float64
	HealthFactor float64
	AtRisk       bool // health factor below the warning threshold
}
