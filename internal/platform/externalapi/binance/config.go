// Package binance provides the crypto provider and kline push channel backed by Binance spot.
package binance

import (
	"os"
	"time"
)

// Config holds Binance endpoints. Fallback URLs are used after a geo-restriction response.
type Config struct {
	RESTBaseURL     string
	RESTFallbackURL string
	WSBaseURL       string
	WSFallbackURL   string
	Timeout         time.Duration // REST request timeout
	PingInterval    time.Duration // websocket keepalive ping period
	PongTimeout     time.Duration // extra read slack granted after each ping
}

// LoadConfig loads Binance configuration from environment variables.
func LoadConfig() Config {
	cfg := Config{
		RESTBaseURL:     getenv("BINANCE_REST_URL", "https://api.binance.com"),
		RESTFallbackURL: getenv("BINANCE_REST_URL_FALLBACK", "https://api.binance.us"),
		WSBaseURL:       getenv("BINANCE_WS_URL", "wss://stream.binance.com:9443"),
		WSFallbackURL:   getenv("BINANCE_WS_URL_FALLBACK", "wss://stream.binance.us:9443"),
		Timeout:         30 * time.Second,
		PingInterval:    20 * time.Second,
		PongTimeout:     10 * time.Second,
	}
	if d, err := time.ParseDuration(os.Getenv("PROVIDER_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
