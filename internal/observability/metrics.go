// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analyzer.
type Metrics struct {
	// Data fetch metrics
	EventsFetched       prometheus.Counter
	PricesFetched       prometheus.Counter
	QueryCacheHits      prometheus.Counter
	QueryCacheMisses    prometheus.Counter
	ProviderCallLatency *prometheus.HistogramVec

	// Analysis metrics
	PoolsAnalyzed       *prometheus.CounterVec
	UnknownMarketEvents prometheus.Counter
	SkippedPositions    prometheus.Counter
	PhaseDuration       *prometheus.HistogramVec
	PoolRiskScore       *prometheus.GaugeVec
	OpenPositions       *prometheus.GaugeVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "morpho_risk_lab"
	}

	return &Metrics{
		// Data fetch metrics
		EventsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "events_total",
			Help:      "Total number of market events fetched",
		}),
		PricesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "prices_total",
			Help:      "Total number of price quotes fetched",
		}),
		QueryCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "cache_hits_total",
			Help:      "Total number of query cache hits",
		}),
		QueryCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "cache_misses_total",
			Help:      "Total number of query cache misses",
		}),
		ProviderCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "provider_call_latency_seconds",
			Help:      "Data provider call latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"query"}),

		// Analysis metrics
		PoolsAnalyzed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "pools_total",
			Help:      "Total number of pool analyses by status",
		}, []string{"status"}),
		UnknownMarketEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "unknown_market_events_total",
			Help:      "Total number of events skipped for unconfigured markets",
		}),
		SkippedPositions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "skipped_positions_total",
			Help:      "Total number of positions excluded from analysis",
		}),
		PhaseDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "phase_duration_seconds",
			Help:      "Analysis phase duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		PoolRiskScore: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "pool_risk_score",
			Help:      "Latest composite risk score per pool",
		}, []string{"pool"}),
		OpenPositions: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "open_positions",
			Help:      "Open positions in the latest snapshot per pool",
		}, []string{"pool"}),

		// Health metrics
		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of the last successful analysis run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPoolAnalyzed increments the pools analyzed counter for a status.
func RecordPoolAnalyzed(status string) {
	DefaultMetrics.PoolsAnalyzed.WithLabelValues(status).Inc()
}

// RecordUnknownMarketEvents adds skipped unknown-market events.
func RecordUnknownMarketEvents(n int) {
	DefaultMetrics.UnknownMarketEvents.Add(float64(n))
}

// RecordSkippedPositions adds excluded positions.
func RecordSkippedPositions(n int) {
	DefaultMetrics.SkippedPositions.Add(float64(n))
}

// SetPoolRiskScore records the latest composite score for a pool.
func SetPoolRiskScore(pool string, score float64) {
	DefaultMetrics.PoolRiskScore.WithLabelValues(pool).Set(score)
}
