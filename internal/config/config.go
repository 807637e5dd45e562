// Package config loads runtime settings from the environment. Secrets fail
// closed: a missing auth secret is a startup error, never a silent
// pass-through. Per-service fallback API keys are optional; when absent the
// matching forwarder simply requires a stored or probed key.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds every runtime setting for the serpdesk server.
type Config struct {
	ListenAddr  string
	MetricsPort int
	LogLevel    string

	// DatabaseDriver selects the storage backend: "postgres" or "sqlite".
	DatabaseDriver string
	DatabaseDSN    string

	// AuthSecret signs and verifies caller bearer tokens. Required.
	AuthSecret    string
	TokenValidity time.Duration

	// Fallback API keys for the wrapped services. Optional.
	ScrapeProxyKey string
	IndexCheckKey  string
	IndexerKey     string

	// Base URLs of the wrapped services, overridable for testing.
	ScrapeProxyBaseURL string
	IndexCheckBaseURL  string
	IndexerBaseURL     string

	// DownstreamTimeout bounds every forwarded call.
	DownstreamTimeout time.Duration

	// PollInterval drives the index-task status checks.
	PollInterval time.Duration

	// PageFetchInterval and PageFetchJitter pace per-page scrape fetches.
	PageFetchInterval time.Duration
	PageFetchJitter   float64

	// FingerprintProfile selects the TLS profile for direct page fetches.
	FingerprintProfile string
}

// ErrMissingAuthSecret is returned by Load when AUTH_SECRET is unset.
var ErrMissingAuthSecret = errors.New("config: AUTH_SECRET is not set")

// Load reads configuration from environment variables, applying defaults for
// everything except the auth secret.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		MetricsPort: getEnvInt("METRICS_PORT", 9090),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "serpdesk.db"),

		AuthSecret:    os.Getenv("AUTH_SECRET"),
		TokenValidity: getEnvDuration("TOKEN_VALIDITY", 24*time.Hour),

		ScrapeProxyKey: os.Getenv("SCRAPEPROXY_KEY"),
		IndexCheckKey:  os.Getenv("INDEXCHECK_KEY"),
		IndexerKey:     os.Getenv("INDEXER_KEY"),

		ScrapeProxyBaseURL: getEnv("SCRAPEPROXY_BASE_URL", "https://api.scraperapi.com"),
		IndexCheckBaseURL:  getEnv("INDEXCHECK_BASE_URL", "https://api.ralfyindex.com"),
		IndexerBaseURL:     getEnv("INDEXER_BASE_URL", "https://api.speedyindex.com"),

		DownstreamTimeout: getEnvDuration("DOWNSTREAM_TIMEOUT", 60*time.Second),
		PollInterval:      getEnvDuration("POLL_INTERVAL", 10*time.Second),

		PageFetchInterval: getEnvDuration("PAGE_FETCH_INTERVAL", time.Second),
		PageFetchJitter:   getEnvFloat("PAGE_FETCH_JITTER", 0),

		FingerprintProfile: getEnv("FINGERPRINT_PROFILE", "chrome"),
	}

	if cfg.AuthSecret == "" {
		return nil, ErrMissingAuthSecret
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
