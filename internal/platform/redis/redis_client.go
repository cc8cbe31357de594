package redis

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoadOptions builds client options from REDIS_URL, or REDIS_HOST/REDIS_PORT/REDIS_PASSWORD.
// It returns nil when Redis is not configured.
func LoadOptions() (*redis.Options, error) {
	if u := os.Getenv("REDIS_URL"); u != "" {
		opt, err := redis.ParseURL(u)
		if err != nil {
			return nil, err
		}
		applyTimeouts(opt)
		return opt, nil
	}
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return nil, nil
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	opt := &redis.Options{
		Addr:     host + ":" + port,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}
	applyTimeouts(opt)
	return opt, nil
}

func applyTimeouts(opt *redis.Options) {
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
}

// NewRedisClient connects and pings. A nil client with nil error means Redis is not configured.
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
	opt, err := LoadOptions()
	if err != nil || opt == nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)

	// 接続確認
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Redis connection failed", "address", opt.Addr, "error", err)
		_ = rdb.Close()
		return nil, err
	}

	slog.Info("Redis connection successful", "address", opt.Addr)
	return rdb, nil
}
