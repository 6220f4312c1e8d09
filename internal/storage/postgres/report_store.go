package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/storage"
)

// ReportStore implements storage.ReportStore using PostgreSQL.
//
// Scalar metrics live in float8 columns (Postgres handles Infinity natively,
// JSON does not); the finite-valued collections (stress results, cliff
// points, top borrowers) are JSONB. Position-level detail is not persisted,
// only the open-position count: positions are reproducible from the event log.
type ReportStore struct {
	pool *Pool
}

// NewReportStore creates a new ReportStore.
func NewReportStore(pool *Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReportStore = (*ReportStore)(nil)

// hfBucketRow is the JSONB shape of one distribution bucket. High is nil
// for the unbounded top bucket (JSON cannot carry +Inf).
type hfBucketRow struct {
	Label   string   `json:"label"`
	Low     float64  `json:"low"`
	High    *float64 `json:"high"`
	Count   int      `json:"count"`
	DebtUSD float64  `json:"debt_usd"`
}

func bucketsToRows(buckets []domain.HFBucket) []hfBucketRow {
	rows := make([]hfBucketRow, 0, len(buckets))
	for _, b := range buckets {
		row := hfBucketRow{Label: b.Label, Low: b.Low, Count: b.Count, DebtUSD: b.DebtUSD}
		if !math.IsInf(b.High, 1) {
			high := b.High
			row.High = &high
		}
		rows = append(rows, row)
	}
	return rows
}

func rowsToBuckets(rows []hfBucketRow) []domain.HFBucket {
	buckets := make([]domain.HFBucket, 0, len(rows))
	for _, r := range rows {
		b := domain.HFBucket{Label: r.Label, Low: r.Low, Count: r.Count, DebtUSD: r.DebtUSD, High: math.Inf(1)}
		if r.High != nil {
			b.High = *r.High
		}
		buckets = append(buckets, b)
	}
	return buckets
}

// Insert adds a finished report. Returns ErrDuplicateKey if (run_id, market_id) exists.
func (s *ReportStore) Insert(ctx context.Context, r *domain.PoolReport) error {
	if r == nil || r.RunID == "" || r.MarketID == "" {
		return storage.ErrInvalidInput
	}

	distribution, err := json.Marshal(bucketsToRows(r.Metrics.HFDistribution))
	if err != nil {
		return fmt.Errorf("marshal hf distribution: %w", err)
	}
	stressResults, err := json.Marshal(r.StressResults)
	if err != nil {
		return fmt.Errorf("marshal stress results: %w", err)
	}
	cliffPoints, err := json.Marshal(r.CliffPoints)
	if err != nil {
		return fmt.Errorf("marshal cliff points: %w", err)
	}
	topBorrowers, err := json.Marshal(r.TopBorrowers)
	if err != nil {
		return fmt.Errorf("marshal top borrowers: %w", err)
	}

	query := `
		INSERT INTO pool_reports (
			run_id, market_id, pool_name,
			total_supply_usd, total_borrow_usd, utilization, lltv,
			weighted_avg_hf, no_debt_positions, top_borrower_share, gini, herfindahl,
			sensitivity_threshold, vulnerable_fraction,
			hf_distribution, stress_results, cliff_points, top_borrowers,
			utilization_score, health_factor_score, concentration_score, stress_score,
			composite_score, risk_level,
			open_positions, unknown_market_events, skipped_positions, degraded, generated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29
		)
	`

	_, err = s.pool.Exec(ctx, query,
		r.RunID,
		r.MarketID,
		r.PoolName,
		r.State.TotalSupplyUSD,
		r.State.TotalBorrowUSD,
		r.Metrics.Utilization,
		r.State.LLTV,
		r.Metrics.WeightedAvgHF,
		r.Metrics.NoDebtPositions,
		r.Metrics.TopBorrowerShare,
		r.Metrics.Gini,
		r.Metrics.Herfindahl,
		r.Metrics.Sensitivity.Threshold,
		r.Metrics.Sensitivity.VulnerableFraction,
		distribution,
		stressResults,
		cliffPoints,
		topBorrowers,
		r.Score.UtilizationScore,
		r.Score.HealthFactorScore,
		r.Score.ConcentrationScore,
		r.Score.StressScore,
		r.Score.Composite,
		string(r.Score.Level),
		r.OpenPositions,
		r.UnknownMarketEvents,
		r.SkippedPositions,
		r.State.Degraded,
		r.GeneratedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pool report: %w", err)
	}
	return nil
}

const reportColumns = `
	run_id, market_id, pool_name,
	total_supply_usd, total_borrow_usd, utilization, lltv,
	weighted_avg_hf, no_debt_positions, top_borrower_share, gini, herfindahl,
	sensitivity_threshold, vulnerable_fraction,
	hf_distribution, stress_results, cliff_points, top_borrowers,
	utilization_score, health_factor_score, concentration_score, stress_score,
	composite_score, risk_level,
	open_positions, unknown_market_events, skipped_positions, degraded, generated_at
`

// GetByRun retrieves all reports of a run, ordered by market_id ASC.
func (s *ReportStore) GetByRun(ctx context.Context, runID string) ([]*domain.PoolReport, error) {
	query := `SELECT ` + reportColumns + `
		FROM pool_reports
		WHERE run_id = $1
		ORDER BY market_id ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get reports by run: %w", err)
	}
	defer rows.Close()

	var reports []*domain.PoolReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report rows: %w", err)
	}

	return reports, nil
}

// GetLatestByMarket retrieves the most recent report for a market. Returns
// ErrNotFound if the market was never analyzed.
func (s *ReportStore) GetLatestByMarket(ctx context.Context, marketID string) (*domain.PoolReport, error) {
	query := `SELECT ` + reportColumns + `
		FROM pool_reports
		WHERE market_id = $1
		ORDER BY generated_at DESC
		LIMIT 1
	`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("get latest report: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get latest report: %w", err)
		}
		return nil, storage.ErrNotFound
	}

	return scanReport(rows)
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*domain.PoolReport, error) {
	var (
		r             domain.PoolReport
		level         string
		distribution  []byte
		stressResults []byte
		cliffPoints   []byte
		topBorrowers  []byte
	)

	err := row.Scan(
		&r.RunID,
		&r.MarketID,
		&r.PoolName,
		&r.State.TotalSupplyUSD,
		&r.State.TotalBorrowUSD,
		&r.Metrics.Utilization,
		&r.State.LLTV,
		&r.Metrics.WeightedAvgHF,
		&r.Metrics.NoDebtPositions,
		&r.Metrics.TopBorrowerShare,
		&r.Metrics.Gini,
		&r.Metrics.Herfindahl,
		&r.Metrics.Sensitivity.Threshold,
		&r.Metrics.Sensitivity.VulnerableFraction,
		&distribution,
		&stressResults,
		&cliffPoints,
		&topBorrowers,
		&r.Score.UtilizationScore,
		&r.Score.HealthFactorScore,
		&r.Score.ConcentrationScore,
		&r.Score.StressScore,
		&r.Score.Composite,
		&level,
		&r.OpenPositions,
		&r.UnknownMarketEvents,
		&r.SkippedPositions,
		&r.State.Degraded,
		&r.GeneratedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan pool report row: %w", err)
	}

	r.Score.Level = domain.RiskLevel(level)
	r.State.MarketID = r.MarketID
	r.State.PoolName = r.PoolName
	r.State.Utilization = r.Metrics.Utilization

	var bucketRows []hfBucketRow
	if err := json.Unmarshal(distribution, &bucketRows); err != nil {
		return nil, fmt.Errorf("unmarshal hf distribution: %w", err)
	}
	r.Metrics.HFDistribution = rowsToBuckets(bucketRows)

	if err := json.Unmarshal(stressResults, &r.StressResults); err != nil {
		return nil, fmt.Errorf("unmarshal stress results: %w", err)
	}
	if err := json.Unmarshal(cliffPoints, &r.CliffPoints); err != nil {
		return nil, fmt.Errorf("unmarshal cliff points: %w", err)
	}
	if err := json.Unmarshal(topBorrowers, &r.TopBorrowers); err != nil {
		return nil, fmt.Errorf("unmarshal top borrowers: %w", err)
	}

	return &r, nil
}
