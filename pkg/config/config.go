package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Matching      MatchingConfig
	Pricing       PricingConfig
	Extraction    ExtractionConfig
	Ingest        IngestConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
}

type MatchingConfig struct {
	FuzzyThreshold float64
	ExactThreshold float64
	CandidateLimit int
}

type PricingConfig struct {
	PriceWindowDays        int
	TrendWindowDays        int
	VolatilityWindowDays   int
	MinDealSavings         float64
	RecommendationTTLHours int
	CatalogScanLimit       int
}

type ExtractionConfig struct {
	MaxScanRows         int
	MaxScanCols         int
	SheetTimeoutSeconds int
}

type IngestConfig struct {
	Workers    int
	MaxFileMB  int
	ArchiveDir string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "hargalist-dev"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("POSTGRES_MAX_CONNS", 10),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
		Matching: MatchingConfig{
			FuzzyThreshold: getEnvAsFloat("MATCH_FUZZY_THRESHOLD", 0.80),
			ExactThreshold: getEnvAsFloat("MATCH_EXACT_THRESHOLD", 0.95),
			CandidateLimit: getEnvAsInt("MATCH_CANDIDATE_LIMIT", 100),
		},
		Pricing: PricingConfig{
			PriceWindowDays:        getEnvAsInt("PRICE_WINDOW_DAYS", 30),
			TrendWindowDays:        getEnvAsInt("TREND_WINDOW_DAYS", 30),
			VolatilityWindowDays:   getEnvAsInt("VOLATILITY_WINDOW_DAYS", 90),
			MinDealSavings:         getEnvAsFloat("MIN_DEAL_SAVINGS", 5),
			RecommendationTTLHours: getEnvAsInt("RECOMMENDATION_TTL_HOURS", 168),
			CatalogScanLimit:       getEnvAsInt("CATALOG_SCAN_LIMIT", 500),
		},
		Extraction: ExtractionConfig{
			MaxScanRows:         getEnvAsInt("EXTRACT_MAX_ROWS", 50),
			MaxScanCols:         getEnvAsInt("EXTRACT_MAX_COLS", 20),
			SheetTimeoutSeconds: getEnvAsInt("EXTRACT_SHEET_TIMEOUT_SECONDS", 30),
		},
		Ingest: IngestConfig{
			Workers:    getEnvAsInt("INGEST_WORKERS", 0),
			MaxFileMB:  getEnvAsInt("INGEST_MAX_FILE_MB", 100),
			ArchiveDir: getEnv("INGEST_ARCHIVE_DIR", "./archive"),
		},
	}

	if cfg.Matching.FuzzyThreshold <= 0 || cfg.Matching.FuzzyThreshold > 1 {
		return nil, fmt.Errorf("MATCH_FUZZY_THRESHOLD must be in (0, 1], got %v", cfg.Matching.FuzzyThreshold)
	}
	if cfg.Matching.ExactThreshold < cfg.Matching.FuzzyThreshold || cfg.Matching.ExactThreshold > 1 {
		return nil, fmt.Errorf("MATCH_EXACT_THRESHOLD must be in [fuzzy, 1], got %v", cfg.Matching.ExactThreshold)
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
