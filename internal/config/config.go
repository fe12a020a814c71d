// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Default risk estimation parameters.
const (
	DefaultEstimator       = "ewma"
	DefaultEWMADecay       = 0.95
	DefaultShrinkageTarget = "constant_correlation"
	DefaultMinShrinkage    = 0.0
	DefaultMaxShrinkage    = 1.0
	DefaultMinSpecificObs  = 20
	DefaultShrinkStrength  = 60.0
	DefaultShortVolWindow  = 21
	DefaultLongVolWindow   = 252
	DefaultRegimeMaxScale  = 3.0
)

// Config holds application configuration.
type Config struct {
	DataDir  string // Base directory for databases, always absolute
	Port     int
	LogLevel string
	DevMode  bool
	Risk     RiskConfig
}

// RiskConfig holds the risk estimation parameters exposed through the
// environment.
type RiskConfig struct {
	// Estimator selects the factor covariance estimator: "ewma",
	// "ledoit_wolf", or "newey_west".
	Estimator string
	EWMADecay float64
	// ShrinkageTarget applies to the Ledoit-Wolf estimator.
	ShrinkageTarget string
	MinShrinkage    float64
	MaxShrinkage    float64
	// NeweyWestLags is the HAC lag count; negative means automatic.
	NeweyWestLags int
	// MinSpecificObservations and ShrinkageStrength tune specific risk.
	MinSpecificObservations int
	ShrinkageStrength       float64
	// ShortWindow, LongWindow, and RegimeMaxScale tune the volatility
	// regime detector.
	ShortWindow    int
	LongWindow     int
	RegimeMaxScale float64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("RISK_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Risk: RiskConfig{
			Estimator:               getEnv("RISK_ESTIMATOR", DefaultEstimator),
			EWMADecay:               getEnvAsFloat("RISK_EWMA_DECAY", DefaultEWMADecay),
			ShrinkageTarget:         getEnv("RISK_SHRINKAGE_TARGET", DefaultShrinkageTarget),
			MinShrinkage:            getEnvAsFloat("RISK_MIN_SHRINKAGE", DefaultMinShrinkage),
			MaxShrinkage:            getEnvAsFloat("RISK_MAX_SHRINKAGE", DefaultMaxShrinkage),
			NeweyWestLags:           getEnvAsInt("RISK_NEWEY_WEST_LAGS", -1),
			MinSpecificObservations: getEnvAsInt("RISK_MIN_SPECIFIC_OBS", DefaultMinSpecificObs),
			ShrinkageStrength:       getEnvAsFloat("RISK_SHRINKAGE_STRENGTH", DefaultShrinkStrength),
			ShortWindow:             getEnvAsInt("RISK_SHORT_VOL_WINDOW", DefaultShortVolWindow),
			LongWindow:              getEnvAsInt("RISK_LONG_VOL_WINDOW", DefaultLongVolWindow),
			RegimeMaxScale:          getEnvAsFloat("RISK_REGIME_MAX_SCALE", DefaultRegimeMaxScale),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present.
func (c *Config) Validate() error {
	switch c.Risk.Estimator {
	case "ewma", "ledoit_wolf", "newey_west":
	default:
		return fmt.Errorf("unknown RISK_ESTIMATOR %q", c.Risk.Estimator)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	return nil
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
