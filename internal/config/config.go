// Package config loads and validates the analyzer configuration: pool
// definitions, stress scenarios, scoring weights, storage and logging.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Dune      DuneConfig      `mapstructure:"dune"`
	Pools     []PoolConfig    `mapstructure:"pools"`
	Stress    StressConfig    `mapstructure:"stress"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DuneConfig holds data-provider API configuration
type DuneConfig struct {
	APIBaseURL string        `mapstructure:"api_base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// Saved query IDs on the provider, keyed by query name
	// (events, prices, market_state).
	QueryIDs map[string]int `mapstructure:"query_ids"`
	CacheDir string         `mapstructure:"cache_dir"`
	CacheTTL time.Duration  `mapstructure:"cache_ttl"`
}

// PoolConfig holds static per-market parameters. Validated once at load
// time; the pipeline never re-checks these.
type PoolConfig struct {
	Name               string  `mapstructure:"name"`
	MarketID           string  `mapstructure:"market_id"`
	CollateralToken    string  `mapstructure:"collateral_token"`
	CollateralDecimals int     `mapstructure:"collateral_decimals"`
	LoanToken          string  `mapstructure:"loan_token"`
	LoanDecimals       int     `mapstructure:"loan_decimals"`
	LLTV               float64 `mapstructure:"lltv"`
}

// StressConfig holds the ordered shock ladder and cliff threshold.
type StressConfig struct {
	// Shocks are decimals, e.g. -0.10 for a 10% collateral price drop.
	Shocks         []float64 `mapstructure:"shocks"`
	CliffThreshold float64   `mapstructure:"cliff_threshold"`
}

// ScoringConfig holds composite score weights and thresholds.
type ScoringConfig struct {
	UtilizationWeight   float64 `mapstructure:"utilization_weight"`
	HealthFactorWeight  float64 `mapstructure:"health_factor_weight"`
	ConcentrationWeight float64 `mapstructure:"concentration_weight"`
	StressWeight        float64 `mapstructure:"stress_weight"`
	// WarnThreshold flags top borrowers as at-risk below this health factor.
	WarnThreshold float64 `mapstructure:"warn_threshold"`
	// SensitivityThreshold for the oracle-sensitivity vulnerable fraction.
	SensitivityThreshold float64 `mapstructure:"sensitivity_threshold"`
}

// StorageConfig selects the backing stores.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"` // memory | postgres
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
}

// AnalysisConfig holds batch-run parameters.
type AnalysisConfig struct {
	Workers int `mapstructure:"workers"` // concurrent pool analyses
	TopN    int `mapstructure:"top_n"`   // ranked borrowers per report
	// ReconcileTolerance is the relative mismatch allowed between upstream
	// total borrow assets and the reconstructed position sum.
	ReconcileTolerance float64 `mapstructure:"reconcile_tolerance"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("MORPHO_RISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("dune.api_base_url", "https://api.dune.com/api/v1")
	v.SetDefault("dune.timeout", "30s")
	v.SetDefault("dune.cache_dir", "./data/raw")
	v.SetDefault("dune.cache_ttl", "60m")

	v.SetDefault("stress.shocks", []float64{-0.05, -0.10, -0.15, -0.20, -0.30, -0.40, -0.50})
	v.SetDefault("stress.cliff_threshold", 50.0)

	v.SetDefault("scoring.utilization_weight", 0.15)
	v.SetDefault("scoring.health_factor_weight", 0.30)
	v.SetDefault("scoring.concentration_weight", 0.25)
	v.SetDefault("scoring.stress_weight", 0.30)
	v.SetDefault("scoring.warn_threshold", 1.1)
	v.SetDefault("scoring.sensitivity_threshold", 0.10)

	v.SetDefault("storage.backend", "memory")

	v.SetDefault("analysis.workers", 4)
	v.SetDefault("analysis.top_n", 10)
	v.SetDefault("analysis.reconcile_tolerance", 0.02)

	v.SetDefault("logging.level", "info")
}

// Validate checks that all configuration values are valid.
// Weight-sum validation is deliberately strict: a bad weight configuration
// must fail before any computation starts.
func (c *Config) Validate() error {
	if len(c.Pools) == 0 {
		return fmt.Errorf("at least one pool must be configured")
	}
	seen := make(map[string]bool, len(c.Pools))
	for i, p := range c.Pools {
		if p.Name == "" {
			return fmt.Errorf("pools[%d].name is required", i)
		}
		if p.MarketID == "" {
			return fmt.Errorf("pool %q: market_id is required", p.Name)
		}
		if seen[p.MarketID] {
			return fmt.Errorf("pool %q: duplicate market_id %s", p.Name, p.MarketID)
		}
		seen[p.MarketID] = true
		if p.CollateralToken == "" || p.LoanToken == "" {
			return fmt.Errorf("pool %q: collateral_token and loan_token are required", p.Name)
		}
		if p.CollateralDecimals < 0 || p.CollateralDecimals > 36 ||
			p.LoanDecimals < 0 || p.LoanDecimals > 36 {
			return fmt.Errorf("pool %q: token decimals must be in [0,36]", p.Name)
		}
		if p.LLTV <= 0 || p.LLTV >= 1 {
			return fmt.Errorf("pool %q: lltv must be in (0,1)", p.Name)
		}
	}

	if len(c.Stress.Shocks) == 0 {
		return fmt.Errorf("stress.shocks must contain at least one scenario")
	}
	for _, s := range c.Stress.Shocks {
		if s <= -1.0 {
			return fmt.Errorf("stress shock %.2f would produce a non-positive collateral price", s)
		}
	}

	sum := c.Scoring.UtilizationWeight + c.Scoring.HealthFactorWeight +
		c.Scoring.ConcentrationWeight + c.Scoring.StressWeight
	if sum < 1.0-1e-6 || sum > 1.0+1e-6 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %f", sum)
	}

	if c.Scoring.WarnThreshold <= 1.0 {
		return fmt.Errorf("scoring.warn_threshold must be above 1.0")
	}
	if c.Scoring.SensitivityThreshold <= 0 || c.Scoring.SensitivityThreshold >= 1 {
		return fmt.Errorf("scoring.sensitivity_threshold must be in (0,1)")
	}

	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of: memory, postgres")
	}

	if c.Analysis.Workers < 1 {
		return fmt.Errorf("analysis.workers must be at least 1")
	}
	if c.Analysis.TopN < 1 {
		return fmt.Errorf("analysis.top_n must be at least 1")
	}
	if c.Analysis.ReconcileTolerance < 0 || c.Analysis.ReconcileTolerance > 0.5 {
		return fmt.Errorf("analysis.reconcile_tolerance must be in [0,0.5]")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}

// KnownMarkets returns the configured market id set, for event filtering.
func (c *Config) KnownMarkets() map[string]bool {
	markets := make(map[string]bool, len(c.Pools))
	for _, p := range c.Pools {
		markets[p.MarketID] = true
	}
	return markets
}
