// Package di provides dependency injection factories for creating application components.
package di

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"market_backend/internal/feature/marketdata/adapters"
	"market_backend/internal/feature/marketdata/domain/entity"
	"market_backend/internal/feature/marketdata/stream"
	"market_backend/internal/feature/marketdata/usecase"
	"market_backend/internal/platform/cache"
	"market_backend/internal/platform/externalapi/binance"
	"market_backend/internal/platform/externalapi/twelvedata"
	infrahttp "market_backend/internal/platform/http"
	"market_backend/internal/shared/ratelimiter"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// StreamConfig tunes live distribution and the symbol listing cache.
type StreamConfig struct {
	Poll            stream.PollConfig
	Push            stream.PushConfig
	SymbolsCacheTTL time.Duration
}

// LoadStreamConfig reads STREAM_POLL_INTERVAL, STREAM_POLL_EMIT_ON_VOLUME and SYMBOLS_CACHE_TTL.
func LoadStreamConfig() StreamConfig {
	cfg := StreamConfig{
		Poll:            stream.DefaultPollConfig(),
		Push:            stream.DefaultPushConfig(),
		SymbolsCacheTTL: time.Hour,
	}
	if d, err := time.ParseDuration(os.Getenv("STREAM_POLL_INTERVAL")); err == nil && d > 0 {
		cfg.Poll.Interval = d
	}
	if b, err := strconv.ParseBool(os.Getenv("STREAM_POLL_EMIT_ON_VOLUME")); err == nil {
		cfg.Poll.EmitOnVolumeChange = b
	}
	if d, err := time.ParseDuration(os.Getenv("SYMBOLS_CACHE_TTL")); err == nil && d > 0 {
		cfg.SymbolsCacheTTL = d
	}
	return cfg
}

// Providers groups the venue clients. ByClass holds the cache-decorated view used by the
// history service; the raw clients feed the live streams.
type Providers struct {
	Binance    *binance.Provider
	TwelveData *twelvedata.Provider
	ByClass    map[entity.AssetClass]usecase.Provider
}

// NewProviders builds both venue clients. rdb may be nil, in which case listings are not cached.
func NewProviders(rdb *redis.Client, symbolsTTL time.Duration) Providers {
	bcfg := binance.LoadConfig()
	bn := binance.NewProvider(bcfg, infrahttp.NewHTTPClient(bcfg.Timeout))

	tcfg := twelvedata.LoadConfig()
	limiter := ratelimiter.NewRateLimiter("twelvedata", tcfg.RequestsPerMinute, time.Minute)
	td := twelvedata.NewProvider(tcfg, infrahttp.NewHTTPClient(tcfg.Timeout), limiter)

	// フォールバック先は上場銘柄が異なるため、切り替え時に暗号資産の一覧キャッシュを破棄する
	crypto := cache.NewCachingProvider(rdb, symbolsTTL, bn, "symbols:crypto")
	bn.OnFailover(invalidateListing(crypto))

	return Providers{
		Binance:    bn,
		TwelveData: td,
		ByClass: map[entity.AssetClass]usecase.Provider{
			entity.AssetClassCrypto: crypto,
			entity.AssetClassForex:  cache.NewCachingProvider(rdb, symbolsTTL, td, "symbols:forex"),
		},
	}
}

// listingInvalidator is the part of the symbol cache a failover hook needs.
type listingInvalidator interface {
	Invalidate(ctx context.Context) error
}

func invalidateListing(c listingInvalidator) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Invalidate(ctx); err != nil {
			slog.Warn("failed to invalidate symbol listing cache", "error", err)
			return
		}
		slog.Info("symbol listing cache invalidated after endpoint failover")
	}
}

// NewSupervisor wires the push strategy for crypto and the poll strategy for forex.
func NewSupervisor(p Providers, cfg StreamConfig) *stream.Supervisor {
	feeds := map[entity.AssetClass]stream.Feed{
		entity.AssetClassCrypto: stream.NewPushFeed(binance.NewStreamDialer(p.Binance), cfg.Push),
		entity.AssetClassForex:  stream.NewPollFeed(p.TwelveData, cfg.Poll),
	}
	return stream.NewSupervisor(stream.NewRegistry(), feeds, entity.ClassifySymbol)
}

// NewHistoryUsecase creates the cache-first historical read service over db.
func NewHistoryUsecase(db *gorm.DB, p Providers) *usecase.HistoryUsecase {
	return usecase.NewHistoryUsecase(adapters.NewCandleCache(db), p.ByClass)
}
