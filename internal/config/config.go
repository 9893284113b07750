package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	WarehousePath string // SQLite warehouse extract (read-only input)
	ResultsPath   string // SQLite results store (runs, quality, dictionary)
	ExportDir     string // directory for CSV artifacts
	LogLevel      string
	Port          int
	DevMode       bool
	RunSchedule   string // cron expression for scheduled runs; empty disables

	// Panel generation
	LookbackMonths      int // trailing months per account in the panel
	ChurnLagDays        int // account counts as churned once closed this long
	ExtractLookbackDays int // how far back positions/transactions are read

	// Trailing feature windows, in days
	TrailingWindowsDays []int

	Risk RiskConfig
}

// RiskConfig holds risk indicator thresholds and composite weights.
// The weights are heuristic constants of the scoring design, kept
// configurable so retuning does not require a code change.
type RiskConfig struct {
	LowActivityThreshold float64 // transactions/day below which activity counts as low
	VolatilityWeight     float64
	LowActivityWeight    float64
	DecliningValueWeight float64
	VolatilityWindowDays int // window feeding the volatility score
	ActivityWindowDays   int // window feeding the activity indicator
	TrendWindowDays      int // window feeding the declining-value indicator
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		WarehousePath:       getEnv("WAREHOUSE_PATH", "./data/warehouse.db"),
		ResultsPath:         getEnv("RESULTS_PATH", "./data/results.db"),
		ExportDir:           getEnv("EXPORT_DIR", "./data/exports"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Port:                getEnvAsInt("PORT", 8090),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		RunSchedule:         getEnv("RUN_SCHEDULE", ""),
		LookbackMonths:      getEnvAsInt("PANEL_LOOKBACK_MONTHS", 12),
		ChurnLagDays:        getEnvAsInt("CHURN_LAG_DAYS", 90),
		ExtractLookbackDays: getEnvAsInt("EXTRACT_LOOKBACK_DAYS", 730),
		TrailingWindowsDays: getEnvAsIntList("TRAILING_WINDOWS_DAYS", []int{30, 90, 180, 365}),
		Risk: RiskConfig{
			LowActivityThreshold: getEnvAsFloat("RISK_LOW_ACTIVITY_THRESHOLD", 0.1),
			VolatilityWeight:     getEnvAsFloat("RISK_VOLATILITY_WEIGHT", 0.3),
			LowActivityWeight:    getEnvAsFloat("RISK_LOW_ACTIVITY_WEIGHT", 0.4),
			DecliningValueWeight: getEnvAsFloat("RISK_DECLINING_VALUE_WEIGHT", 0.3),
			VolatilityWindowDays: getEnvAsInt("RISK_VOLATILITY_WINDOW_DAYS", 365),
			ActivityWindowDays:   getEnvAsInt("RISK_ACTIVITY_WINDOW_DAYS", 90),
			TrendWindowDays:      getEnvAsInt("RISK_TREND_WINDOW_DAYS", 180),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and consistent
func (c *Config) Validate() error {
	if c.WarehousePath == "" {
		return fmt.Errorf("WAREHOUSE_PATH is required")
	}
	if c.ResultsPath == "" {
		return fmt.Errorf("RESULTS_PATH is required")
	}
	if c.LookbackMonths < 1 {
		return fmt.Errorf("PANEL_LOOKBACK_MONTHS must be at least 1, got %d", c.LookbackMonths)
	}
	if c.ChurnLagDays < 0 {
		return fmt.Errorf("CHURN_LAG_DAYS must not be negative, got %d", c.ChurnLagDays)
	}
	if len(c.TrailingWindowsDays) == 0 {
		return fmt.Errorf("TRAILING_WINDOWS_DAYS must name at least one window")
	}
	for _, w := range c.TrailingWindowsDays {
		if w < 1 {
			return fmt.Errorf("trailing window lengths must be positive, got %d", w)
		}
	}
	for _, rw := range []int{c.Risk.VolatilityWindowDays, c.Risk.ActivityWindowDays, c.Risk.TrendWindowDays} {
		if !containsInt(c.TrailingWindowsDays, rw) {
			return fmt.Errorf("risk window %dd is not among TRAILING_WINDOWS_DAYS %v", rw, c.TrailingWindowsDays)
		}
	}
	weightSum := c.Risk.VolatilityWeight + c.Risk.LowActivityWeight + c.Risk.DecliningValueWeight
	if math.Abs(weightSum-1.0) > 1e-9 {
		return fmt.Errorf("risk weights must sum to 1.0, got %g", weightSum)
	}
	return nil
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsIntList(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []int
	for _, part := range strings.Split(value, ",") {
		intVal, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		out = append(out, intVal)
	}
	return out
}
