package stream

import (
	"context"
	"log/slog"
	"time"

	"market_backend/internal/feature/marketdata/domain/entity"
)

// LatestFetcher returns recent candles for a series in ascending order.
type LatestFetcher interface {
	FetchHistorical(ctx context.Context, q entity.HistoryQuery) ([]entity.Candle, error)
}

// PollConfig tunes a PollFeed.
type PollConfig struct {
	Interval      time.Duration
	Limit         int
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	BackoffJitter float64
	// EmitOnVolumeChange re-emits a forming candle when only its volume moved.
	EmitOnVolumeChange bool
}

// DefaultPollConfig polls every 30s for the latest two candles and backs off up to 120s.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:           30 * time.Second,
		Limit:              2,
		BackoffMin:         time.Second,
		BackoffMax:         120 * time.Second,
		BackoffJitter:      0.3,
		EmitOnVolumeChange: true,
	}
}

// PollFeed synthesizes live updates by polling a request/response venue.
type PollFeed struct {
	fetcher LatestFetcher
	cfg     PollConfig
}

var _ Feed = (*PollFeed)(nil)

// NewPollFeed returns a poll strategy over fetcher.
func NewPollFeed(fetcher LatestFetcher, cfg PollConfig) *PollFeed {
	if cfg.Limit < 2 {
		cfg.Limit = 2
	}
	return &PollFeed{fetcher: fetcher, cfg: cfg}
}

func (f *PollFeed) Run(ctx context.Context, key entity.SubscriptionKey, sink Sink) {
	bo := NewBackoff(f.cfg.BackoffMin, f.cfg.BackoffMax, f.cfg.BackoffJitter)
	q := entity.HistoryQuery{Symbol: key.Symbol, Interval: key.Interval, Limit: f.cfg.Limit}
	var last *entity.Candle

	sink.SetState(FeedConnecting)
	for {
		candles, err := f.fetcher.FetchHistorical(ctx, q)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			sink.SetState(FeedReconnecting)
			delay := bo.Next()
			slog.Warn("poll feed request failed", "key", key.String(), "error", err, "delay", delay, "attempt", bo.Attempts())
			if sleepCtx(ctx, delay) != nil {
				return
			}
			continue
		}

		bo.Reset()
		sink.SetState(FeedStreaming)
		var updates []entity.PriceUpdate
		updates, last = f.diff(key, last, candles)
		for _, u := range updates {
			sink.Emit(u)
		}

		if sleepCtx(ctx, f.cfg.Interval) != nil {
			return
		}
	}
}

// diff compares a freshly polled batch with the last candle seen and returns the updates
// to emit in order, plus the new last-seen candle.
func (f *PollFeed) diff(key entity.SubscriptionKey, last *entity.Candle, candles []entity.Candle) ([]entity.PriceUpdate, *entity.Candle) {
	if len(candles) == 0 {
		return nil, last
	}
	latest := candles[len(candles)-1]

	switch {
	case last == nil:
		return []entity.PriceUpdate{{Key: key, Candle: latest}}, &latest

	case latest.Time > last.Time:
		final := *last
		if len(candles) >= 2 && candles[len(candles)-2].Time == last.Time {
			final = candles[len(candles)-2]
		}
		return []entity.PriceUpdate{
			{Key: key, Candle: final, Closed: true},
			{Key: key, Candle: latest},
		}, &latest

	case latest.Time == last.Time && f.changed(*last, latest):
		return []entity.PriceUpdate{{Key: key, Candle: latest}}, &latest
	}

	// Unchanged, or the venue returned an older bucket than already emitted.
	return nil, last
}

func (f *PollFeed) changed(prev, cur entity.Candle) bool {
	if f.cfg.EmitOnVolumeChange {
		return prev != cur
	}
	return !prev.SameOHLC(cur)
}
