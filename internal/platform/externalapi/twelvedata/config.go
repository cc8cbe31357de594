// Package twelvedata provides the forex provider backed by the Twelve Data REST API.
package twelvedata

import (
	"os"
	"strconv"
	"time"
)

const defaultBaseURL = "https://api.twelvedata.com"

// Config holds configuration for the Twelve Data API client.
type Config struct {
	APIKey            string        // API key for authentication
	BaseURL           string        // Base URL for the API (e.g., "https://api.twelvedata.com")
	Timeout           time.Duration // HTTP request timeout
	RequestsPerMinute int           // plan quota shared by history reads and poll feeds
}

// LoadConfig loads Twelve Data configuration from environment variables.
func LoadConfig() Config {
	cfg := Config{
		APIKey:            os.Getenv("TWELVE_DATA_API_KEY"),
		BaseURL:           os.Getenv("TWELVE_DATA_BASE_URL"),
		Timeout:           30 * time.Second,
		RequestsPerMinute: 8,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("TWELVE_DATA_REST_URL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if d, err := time.ParseDuration(os.Getenv("PROVIDER_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}
	if n, err := strconv.Atoi(os.Getenv("RATE_LIMIT_TWELVE_DATA_PER_MINUTE")); err == nil {
		cfg.RequestsPerMinute = n
	}
	return cfg
}
