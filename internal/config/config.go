package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries process-level settings loaded from the environment.
// Run-specific backtest parameters travel separately (see the backtest
// and orchestrator packages); this is only the ambient wiring.
type Config struct {
	Environment string
	LogLevel    string
	LogFormat   string
	LogDir      string

	Data struct {
		PolygonAPIKey      string
		PolygonBaseURL     string
		RateLimitPerMinute int
		BatchSize          int
		MaxRetries         int
		RetryBaseDelay     time.Duration
		CSVDataRoot        string
	}

	Results struct {
		Dir    string
		DBPath string
	}

	Monitoring struct {
		PrometheusPort int
		Enabled        bool
	}
}

// Load reads configuration from the environment with sensible defaults.
func Load() *Config {
	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		LogDir:      getEnv("LOG_DIR", "logs"),
	}

	cfg.Data.PolygonAPIKey = getEnv("POLYGON_API_KEY", "")
	cfg.Data.PolygonBaseURL = getEnv("POLYGON_BASE_URL", "https://api.polygon.io")
	cfg.Data.RateLimitPerMinute = getEnvInt("POLYGON_RATE_LIMIT", 5)
	cfg.Data.BatchSize = getEnvInt("DATA_FETCH_BATCH_SIZE", 3)
	cfg.Data.MaxRetries = getEnvInt("DATA_FETCH_MAX_RETRIES", 3)
	cfg.Data.RetryBaseDelay = getEnvDuration("DATA_FETCH_RETRY_DELAY", 2*time.Second)
	cfg.Data.CSVDataRoot = getEnv("CSV_DATA_ROOT", "data")

	cfg.Results.Dir = getEnv("RESULTS_DIR", "results")
	cfg.Results.DBPath = getEnv("RESULTS_DB", "results/experiments.db")

	cfg.Monitoring.PrometheusPort = getEnvInt("PROMETHEUS_PORT", 8080)
	cfg.Monitoring.Enabled = getEnvBool("PROMETHEUS_ENABLED", false)

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
