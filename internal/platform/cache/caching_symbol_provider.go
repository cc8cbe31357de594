// Package cache provides Redis-backed decorators for market data providers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"market_backend/internal/feature/marketdata/domain/entity"
	"market_backend/internal/feature/marketdata/usecase"
)

// CachingProvider decorates a Provider with Redis caching of symbol listings.
// Candle reads pass through untouched; the durable candle cache sits behind the usecase.
type CachingProvider struct {
	inner     usecase.Provider
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

var _ usecase.Provider = (*CachingProvider)(nil)

// NewCachingProvider decorates inner with Redis caching.
// If ttl is 0, it defaults to 1 hour. If namespace is empty, it uses "symbols".
func NewCachingProvider(rdb *redis.Client, ttl time.Duration, inner usecase.Provider, namespace string) *CachingProvider {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if namespace == "" {
		namespace = "symbols"
	}
	return &CachingProvider{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

func (c *CachingProvider) Name() string { return c.inner.Name() }

func (c *CachingProvider) FetchHistorical(ctx context.Context, q entity.HistoryQuery) ([]entity.Candle, error) {
	return c.inner.FetchHistorical(ctx, q)
}

// AvailableSymbols checks Redis first, then the venue, and stores the venue answer.
func (c *CachingProvider) AvailableSymbols(ctx context.Context) ([]string, error) {
	// Bypass cache if Redis is not configured
	if c.rdb == nil {
		return c.inner.AvailableSymbols(ctx)
	}

	key := c.cacheKey()

	// 1) Check cache
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []string
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) Fallback to the venue
	out, err := c.inner.AvailableSymbols(ctx)
	if err != nil {
		return nil, err
	}

	// 3) Store in cache (best effort)
	if b, err := json.Marshal(out); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			slog.Warn("failed to cache symbol listing", "key", key, "error", err)
		}
	}
	return out, nil
}

// Invalidate drops every listing stored under this decorator's namespace.
func (c *CachingProvider) Invalidate(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.deleteByPattern(ctx, c.namespace+":*")
}

func (c *CachingProvider) cacheKey() string {
	return fmt.Sprintf("%s:%s", c.namespace, safe(c.inner.Name()))
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingProvider) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
