// Package usecase implements the historical read path of the market data feature.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"market_backend/internal/feature/marketdata/domain"
	"market_backend/internal/feature/marketdata/domain/entity"
)

const (
	// DefaultLimit is used when the caller does not ask for a row count.
	DefaultLimit = 500
	// MaxLimit caps a single historical read.
	MaxLimit = 5000
)

// CandleCache is the durable candle store consulted before any provider.
type CandleCache interface {
	FindLatest(ctx context.Context, symbol string, interval entity.Interval, limit int) ([]entity.Candle, error)
	FindRange(ctx context.Context, q entity.HistoryQuery) ([]entity.Candle, error)
	UpsertBatch(ctx context.Context, symbol string, interval entity.Interval, provider string, candles []entity.Candle) error
}

// Provider fetches candles and symbol listings from one venue.
type Provider interface {
	Name() string
	FetchHistorical(ctx context.Context, q entity.HistoryQuery) ([]entity.Candle, error)
	AvailableSymbols(ctx context.Context) ([]string, error)
}

// HistoryUsecase serves historical candles cache-first and falls back to the venue
// selected by the symbol's asset class.
type HistoryUsecase struct {
	cache     CandleCache
	providers map[entity.AssetClass]Provider
	classify  func(string) entity.AssetClass
	now       func() time.Time
}

// NewHistoryUsecase wires the cache with one provider per asset class.
func NewHistoryUsecase(cache CandleCache, providers map[entity.AssetClass]Provider) *HistoryUsecase {
	return &HistoryUsecase{
		cache:     cache,
		providers: providers,
		classify:  entity.ClassifySymbol,
		now:       time.Now,
	}
}

// GetHistorical returns at most q.Limit candles in ascending time order.
// Provider failures are reported as domain.ErrUpstreamUnavailable.
func (u *HistoryUsecase) GetHistorical(ctx context.Context, q entity.HistoryQuery) ([]entity.Candle, error) {
	if !q.Interval.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidInterval, q.Interval)
	}
	if q.Start != nil && q.End != nil && *q.Start > *q.End {
		return nil, domain.ErrInvalidTimeRange
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}

	p, ok := u.providers[u.classify(q.Symbol)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAssetClass, u.classify(q.Symbol))
	}

	cached, err := u.readCache(ctx, q)
	if err != nil {
		slog.Warn("candle cache read failed, falling back to provider", "symbol", q.Symbol, "interval", q.Interval, "error", err)
	} else if u.cacheValid(q, cached) {
		return cached, nil
	}

	fetched, err := p.FetchHistorical(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrUpstreamUnavailable, p.Name(), err)
	}
	if len(fetched) > q.Limit {
		if q.Latest() {
			fetched = fetched[len(fetched)-q.Limit:]
		} else {
			fetched = fetched[:q.Limit]
		}
	}

	if len(fetched) > 0 {
		if err := u.cache.UpsertBatch(ctx, q.Symbol, q.Interval, p.Name(), fetched); err != nil {
			slog.Error("failed to write candles to cache", "symbol", q.Symbol, "interval", q.Interval, "provider", p.Name(), "count", len(fetched), "error", err)
		}
	}
	return fetched, nil
}

func (u *HistoryUsecase) readCache(ctx context.Context, q entity.HistoryQuery) ([]entity.Candle, error) {
	if q.Latest() {
		return u.cache.FindLatest(ctx, q.Symbol, q.Interval, q.Limit)
	}
	return u.cache.FindRange(ctx, q)
}

// cacheValid requires a full page, and for latest-window reads a newest row no older
// than two bucket lengths.
func (u *HistoryUsecase) cacheValid(q entity.HistoryQuery, cached []entity.Candle) bool {
	if len(cached) == 0 || len(cached) < q.Limit {
		return false
	}
	if !q.Latest() {
		return true
	}
	newest := cached[len(cached)-1].Time
	maxAge := int64(2 * q.Interval.Duration() / time.Second)
	return u.now().Unix()-newest <= maxAge
}

// AvailableSymbols lists tradable symbols for an asset class.
func (u *HistoryUsecase) AvailableSymbols(ctx context.Context, class entity.AssetClass) ([]string, error) {
	p, ok := u.providers[class]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAssetClass, class)
	}
	symbols, err := p.AvailableSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrUpstreamUnavailable, p.Name(), err)
	}
	return symbols, nil
}
