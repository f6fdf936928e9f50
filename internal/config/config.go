package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config captures application level settings loaded from the environment.
type Config struct {
	HTTPPort    string
	DatabaseURL string
	Price       PriceConfig
}

// PriceConfig drives the price cache: upstream endpoints, disk cache
// location, freshness window and fetch deadlines.
type PriceConfig struct {
	PriceURL               string
	IdentifierURL          string
	CachePath              string
	CacheTTL               time.Duration
	PriceFetchTimeout      time.Duration
	IdentifierFetchTimeout time.Duration
	ProgressInterval       int
	JobInterval            time.Duration
}

// Load parses environment variables into Config and falls back to sensible defaults
// so the server can boot without additional flags.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		HTTPPort:    getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Price: PriceConfig{
			PriceURL:               getEnv("PRICE_URL", "https://mtgjson.com/api/v5/AllPrices.json"),
			IdentifierURL:          getEnv("IDENTIFIER_URL", "https://mtgjson.com/api/v5/AllIdentifiers.json"),
			CachePath:              getEnv("CACHE_PATH", "data/price-cache.json"),
			CacheTTL:               getDuration("CACHE_TTL", 24*time.Hour),
			PriceFetchTimeout:      getDuration("PRICE_FETCH_TIMEOUT", 120*time.Second),
			IdentifierFetchTimeout: getDuration("IDENTIFIER_FETCH_TIMEOUT", 300*time.Second),
			ProgressInterval:       getInt("PROGRESS_INTERVAL", 50000),
			JobInterval:            getDuration("PRICE_JOB_INTERVAL", time.Hour),
		},
	}

	if _, err := url.ParseRequestURI(cfg.Price.PriceURL); err != nil {
		return nil, errors.New("PRICE_URL must be a valid URL")
	}
	if _, err := url.ParseRequestURI(cfg.Price.IdentifierURL); err != nil {
		return nil, errors.New("IDENTIFIER_URL must be a valid URL")
	}
	if cfg.Price.CachePath == "" {
		return nil, errors.New("CACHE_PATH must not be empty")
	}
	if cfg.Price.CacheTTL <= 0 {
		return nil, errors.New("CACHE_TTL must be positive")
	}
	if cfg.Price.ProgressInterval <= 0 {
		return nil, errors.New("PROGRESS_INTERVAL must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
