package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Every environment variable is read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis (optional ranking cache)
	Redis RedisConfig

	// Market data providers
	AlphaVantage ProviderConfig
	TwelveData   ProviderConfig
	Provider     string // active provider: "alphavantage" or "twelvedata"

	// Ingestion
	Ingest IngestConfig

	// Ranking
	Ranking RankingConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL string

	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	CacheTTL time.Duration
}

// ProviderConfig holds one market-data vendor's settings.
type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	MinInterval time.Duration // minimum spacing between calls to this vendor
}

// IngestConfig holds ingestion orchestrator settings.
type IngestConfig struct {
	Concurrency        int           // worker pool size for RefreshAll
	DailyLookbackDays  int           // lookback for scheduled refreshes
	ManualLookbackDays int           // lookback for manual/admin refreshes
	FetchTimeout       time.Duration // per-instrument provider call budget
}

// RankingConfig holds ranking engine settings.
type RankingConfig struct {
	Universe     []string
	DefaultLimit int

	// Composite weights (must sum to ~1.0)
	ActivityWeight    float64
	VolatilityWeight  float64
	PerformanceWeight float64
	MarketCapWeight   float64
	PriceWeight       float64
}

// SchedulerConfig holds periodic task cadences.
type SchedulerConfig struct {
	DailyIngestSpec   string // cron expression, e.g. "0 2 * * *"
	IndicatorSpec     string // cron expression, e.g. "0 18 * * *"
	IntradayInterval  time.Duration
	IntradayIdleCheck time.Duration // re-check cadence outside the trading window
	ErrorBackoff      time.Duration
}

// Load reads configuration from environment variables.
// Only this function calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			CacheTTL: getEnvAsDuration("REDIS_CACHE_TTL", "1m"),
		},

		AlphaVantage: ProviderConfig{
			APIKey:  getEnv("ALPHAVANTAGE_API_KEY", ""),
			BaseURL: getEnv("ALPHAVANTAGE_BASE_URL", "https://www.alphavantage.co/query"),
			// Free tier allows 5 calls/min.
			MinInterval: getEnvAsDuration("ALPHAVANTAGE_MIN_INTERVAL", "12s"),
		},

		TwelveData: ProviderConfig{
			APIKey:      getEnv("TWELVEDATA_API_KEY", "demo"),
			BaseURL:     getEnv("TWELVEDATA_BASE_URL", "https://api.twelvedata.com"),
			MinInterval: getEnvAsDuration("TWELVEDATA_MIN_INTERVAL", "2s"),
		},

		Provider: getEnv("DATA_PROVIDER", "alphavantage"),

		Ingest: IngestConfig{
			Concurrency:        getEnvAsInt("INGEST_CONCURRENCY", 5),
			DailyLookbackDays:  getEnvAsInt("INGEST_DAILY_LOOKBACK_DAYS", 7),
			ManualLookbackDays: getEnvAsInt("INGEST_MANUAL_LOOKBACK_DAYS", 30),
			FetchTimeout:       getEnvAsDuration("INGEST_FETCH_TIMEOUT", "2m"),
		},

		Ranking: RankingConfig{
			Universe: getEnvAsList("RANKING_UNIVERSE",
				"AAPL,MSFT,NVDA,META,NFLX,PYPL,INTC,CSCO,ADBE,QCOM"),
			DefaultLimit:      getEnvAsInt("RANKING_DEFAULT_LIMIT", 10),
			ActivityWeight:    getEnvAsFloat("RANKING_WEIGHT_ACTIVITY", 0.30),
			VolatilityWeight:  getEnvAsFloat("RANKING_WEIGHT_VOLATILITY", 0.25),
			PerformanceWeight: getEnvAsFloat("RANKING_WEIGHT_PERFORMANCE", 0.20),
			MarketCapWeight:   getEnvAsFloat("RANKING_WEIGHT_MARKET_CAP", 0.15),
			PriceWeight:       getEnvAsFloat("RANKING_WEIGHT_PRICE", 0.10),
		},

		Scheduler: SchedulerConfig{
			DailyIngestSpec:   getEnv("SCHEDULER_DAILY_INGEST_SPEC", "0 2 * * *"),
			IndicatorSpec:     getEnv("SCHEDULER_INDICATOR_SPEC", "0 18 * * *"),
			IntradayInterval:  getEnvAsDuration("SCHEDULER_INTRADAY_INTERVAL", "5m"),
			IntradayIdleCheck: getEnvAsDuration("SCHEDULER_INTRADAY_IDLE_CHECK", "1h"),
			ErrorBackoff:      getEnvAsDuration("SCHEDULER_ERROR_BACKOFF", "1h"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks required values and cross-field constraints.
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Provider != "alphavantage" && c.Provider != "twelvedata" {
		return fmt.Errorf("DATA_PROVIDER must be one of: alphavantage, twelvedata")
	}

	if c.Ingest.Concurrency < 1 {
		return fmt.Errorf("INGEST_CONCURRENCY must be at least 1")
	}

	sum := c.Ranking.ActivityWeight + c.Ranking.VolatilityWeight +
		c.Ranking.PerformanceWeight + c.Ranking.MarketCapWeight + c.Ranking.PriceWeight
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("ranking weights must sum to 1.0, got %.3f", sum)
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func getEnvAsList(key, defaultValue string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
