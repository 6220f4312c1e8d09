// Package orchestrator coordinates the per-pool analysis pipeline:
// aggregate → positions → snapshot → metrics + stress → score → report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"morpho-risk-lab/internal/aggregate"
	"morpho-risk-lab/internal/config"
	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/logger"
	"morpho-risk-lab/internal/metrics"
	"morpho-risk-lab/internal/observability"
	"morpho-risk-lab/internal/position"
	"morpho-risk-lab/internal/scoring"
	"morpho-risk-lab/internal/snapshot"
	"morpho-risk-lab/internal/storage"
	"morpho-risk-lab/internal/stress"
)

// Orchestrator runs the analysis pipeline over all configured pools.
type Orchestrator struct {
	// Stores
	eventStore       storage.RawEventStore
	priceStore       storage.PriceStore
	marketStateStore storage.MarketStateStore
	reportStore      storage.ReportStore // optional, nil disables persistence

	// Configs
	pools        []config.PoolConfig
	knownMarkets map[string]bool
	scenarios    []domain.StressScenario

	scorer    *scoring.Scorer
	assembler *snapshot.Assembler

	warnThreshold        float64
	sensitivityThreshold float64
	cliffThreshold       float64
	topN                 int
	workers              int

	now func() time.Time // injectable clock for deterministic output
}

// Options for creating an Orchestrator.
type Options struct {
	// Required stores
	EventStore       storage.RawEventStore
	PriceStore       storage.PriceStore
	MarketStateStore storage.MarketStateStore

	// Optional; reports are persisted when set.
	ReportStore storage.ReportStore

	Pools     []config.PoolConfig
	Scenarios []domain.StressScenario // defaults to domain.DefaultScenarios
	Weights   domain.ScoreWeights     // defaults to domain.DefaultWeights

	WarnThreshold        float64 // default 1.1
	SensitivityThreshold float64 // default metrics.DefaultSensitivityThreshold
	CliffThreshold       float64 // default 50 (percent relative jump)
	ReconcileTolerance   float64 // default snapshot.DefaultTolerance
	TopN                 int     // default 10
	Workers              int     // default 4
}

// New creates an Orchestrator, validating the score weights up front.
func New(opts Options) (*Orchestrator, error) {
	weights := opts.Weights
	if weights == (domain.ScoreWeights{}) {
		weights = domain.DefaultWeights
	}
	scorer, err := scoring.New(weights)
	if err != nil {
		return nil, err
	}

	scenarios := opts.Scenarios
	if len(scenarios) == 0 {
		scenarios = domain.DefaultScenarios
	}

	warn := opts.WarnThreshold
	if warn <= 0 {
		warn = 1.1
	}
	cliff := opts.CliffThreshold
	if cliff <= 0 {
		cliff = 50
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = 10
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	known := make(map[string]bool, len(opts.Pools))
	for _, p := range opts.Pools {
		known[p.MarketID] = true
	}

	return &Orchestrator{
		eventStore:           opts.EventStore,
		priceStore:           opts.PriceStore,
		marketStateStore:     opts.MarketStateStore,
		reportStore:          opts.ReportStore,
		pools:                opts.Pools,
		knownMarkets:         known,
		scenarios:            scenarios,
		scorer:               scorer,
		assembler:            snapshot.New(opts.ReconcileTolerance),
		warnThreshold:        warn,
		sensitivityThreshold: opts.SensitivityThreshold,
		cliffThreshold:       cliff,
		topN:                 topN,
		workers:              workers,
		now:                  func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock sets a custom clock function for deterministic output.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// RunResult contains the outcome of one batch analysis.
type RunResult struct {
	RunID    string
	Reports  []*domain.PoolReport // ordered by market id
	Failures []domain.PoolFailure // pools whose analysis aborted
}

// Run analyzes all configured pools concurrently with a bounded worker
// pool. A failed pool is recorded with its reason; remaining pools still
// produce full reports. Reports are persisted when a report store is set.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{RunID: uuid.NewString()}
	logger.Info("starting analysis run %s: %d pools, %d workers",
		result.RunID, len(o.pools), o.workers)

	jobs := make(chan config.PoolConfig)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pool := range jobs {
				report, err := o.AnalyzePool(ctx, pool, result.RunID)

				mu.Lock()
				if err != nil {
					result.Failures = append(result.Failures, domain.PoolFailure{
						MarketID: pool.MarketID,
						PoolName: pool.Name,
						Reason:   err.Error(),
					})
					observability.RecordPoolAnalyzed("failed")
					logger.Error("pool %s analysis failed: %v", pool.Name, err)
				} else {
					result.Reports = append(result.Reports, report)
					observability.RecordPoolAnalyzed("ok")
				}
				mu.Unlock()
			}
		}()
	}

	for _, pool := range o.pools {
		if ctx.Err() != nil {
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		}
		select {
		case jobs <- pool:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	sort.Slice(result.Reports, func(i, j int) bool {
		return result.Reports[i].MarketID < result.Reports[j].MarketID
	})
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].MarketID < result.Failures[j].MarketID
	})

	if o.reportStore != nil {
		for _, r := range result.Reports {
			if err := o.reportStore.Insert(ctx, r); err != nil {
				logger.Error("persist report for %s: %v", r.PoolName, err)
			}
		}
	}

	if len(result.Reports) > 0 {
		observability.DefaultMetrics.LastSuccessfulRun.Set(float64(o.now().Unix()))
	}
	logger.Info("run %s finished: %d reports, %d failures",
		result.RunID, len(result.Reports), len(result.Failures))
	return result, nil
}

// AnalyzePool runs the full pipeline for one pool and returns its report.
// Pure with respect to the stores: nothing is written here.
func (o *Orchestrator) AnalyzePool(ctx context.Context, pool config.PoolConfig, runID string) (*domain.PoolReport, error) {
	// Phase 1: load and aggregate the event log.
	phase := time.Now()
	stored, err := o.eventStore.GetByMarket(ctx, pool.MarketID)
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", pool.MarketID, err)
	}
	events := make([]domain.RawEvent, len(stored))
	for i, e := range stored {
		events[i] = *e
	}

	agg := aggregate.NetBalances(pool.MarketID, events, o.knownMarkets)
	observability.RecordUnknownMarketEvents(agg.UnknownMarketEvents)
	o.observePhase("aggregate", phase)

	// Phase 2: positions from balances and the price table.
	phase = time.Now()
	prices, err := o.loadPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}

	positions, buildReport, err := position.Build(pool, agg.Balances, prices)
	if err != nil {
		var missing *position.MissingPriceError
		if !errors.As(err, &missing) {
			return nil, fmt.Errorf("build positions for %s: %w", pool.MarketID, err)
		}
		// Missing prices degrade the pool, they do not abort it.
	}
	observability.RecordSkippedPositions(buildReport.Excluded)
	o.observePhase("positions", phase)

	// Phase 3: snapshot with reconciliation.
	phase = time.Now()
	totals, err := o.marketStateStore.GetByMarket(ctx, pool.MarketID)
	if err != nil {
		return nil, fmt.Errorf("load market state for %s: %w", pool.MarketID, err)
	}

	state, err := o.assembler.Assemble(pool, *totals, positions, prices, buildReport.Excluded, o.now().Unix())
	if err != nil {
		return nil, err
	}
	observability.DefaultMetrics.OpenPositions.WithLabelValues(pool.Name).Set(float64(len(state.Positions)))
	o.observePhase("snapshot", phase)

	// Phase 4: metrics, stress, score.
	phase = time.Now()
	m := metrics.Compute(state, metrics.Options{SensitivityThreshold: o.sensitivityThreshold})
	top := metrics.TopBorrowers(state, o.topN, o.warnThreshold)

	stressResults, err := stress.Run(state, o.scenarios)
	if err != nil {
		return nil, fmt.Errorf("stress %s: %w", pool.MarketID, err)
	}
	cliffs := stress.CliffPoints(stressResults, o.cliffThreshold)

	score := o.scorer.Score(m, stressResults, cliffs)
	observability.SetPoolRiskScore(pool.Name, score.Composite)
	o.observePhase("scoring", phase)

	logger.Info("pool %s: %d positions, composite %.1f (%s)",
		pool.Name, len(state.Positions), score.Composite, score.Level)

	return &domain.PoolReport{
		RunID:               runID,
		MarketID:            pool.MarketID,
		PoolName:            pool.Name,
		State:               *state,
		Metrics:             *m,
		StressResults:       stressResults,
		CliffPoints:         cliffs,
		Score:               score,
		TopBorrowers:        top,
		OpenPositions:       len(state.Positions),
		UnknownMarketEvents: agg.UnknownMarketEvents,
		SkippedPositions:    buildReport.Excluded,
		GeneratedAt:         o.now().Unix(),
	}, nil
}

// loadPrices builds the price lookup table keyed by lowercase token.
func (o *Orchestrator) loadPrices(ctx context.Context) (map[string]domain.PriceQuote, error) {
	quotes, err := o.priceStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]domain.PriceQuote, len(quotes))
	for _, q := range quotes {
		prices[q.Token] = *q
	}
	return prices, nil
}

func (o *Orchestrator) observePhase(phase string, start time.Time) {
	observability.DefaultMetrics.PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}
