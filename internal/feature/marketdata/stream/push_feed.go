package stream

import (
	"context"
	"log/slog"
	"time"

	"market_backend/internal/feature/marketdata/domain/entity"
)

// StreamConn is one open upstream push channel.
type StreamConn interface {
	// Next blocks until the next candle arrives. closed reports whether the candle is final.
	Next() (candle entity.Candle, closed bool, err error)
	Close() error
}

// StreamDialer opens a venue push channel for a key.
type StreamDialer interface {
	Dial(ctx context.Context, key entity.SubscriptionKey) (StreamConn, error)
}

// PushConfig tunes reconnect behavior of a PushFeed.
type PushConfig struct {
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	BackoffJitter float64
}

// DefaultPushConfig reconnects after 1s, doubling to 30s with up to 30% jitter.
func DefaultPushConfig() PushConfig {
	return PushConfig{BackoffMin: time.Second, BackoffMax: 30 * time.Second, BackoffJitter: 0.3}
}

// PushFeed streams from a venue push channel and reconnects with backoff on any failure.
type PushFeed struct {
	dialer StreamDialer
	cfg    PushConfig
}

var _ Feed = (*PushFeed)(nil)

// NewPushFeed returns a push strategy over dialer.
func NewPushFeed(dialer StreamDialer, cfg PushConfig) *PushFeed {
	return &PushFeed{dialer: dialer, cfg: cfg}
}

func (f *PushFeed) Run(ctx context.Context, key entity.SubscriptionKey, sink Sink) {
	bo := NewBackoff(f.cfg.BackoffMin, f.cfg.BackoffMax, f.cfg.BackoffJitter)
	sink.SetState(FeedConnecting)

	for {
		conn, err := f.dialer.Dial(ctx, key)
		if err == nil {
			bo.Reset()
			sink.SetState(FeedStreaming)
			slog.Info("push feed connected", "key", key.String())
			err = consume(ctx, conn, key, sink)
		}
		if ctx.Err() != nil {
			return
		}

		sink.SetState(FeedReconnecting)
		delay := bo.Next()
		slog.Warn("push feed interrupted, reconnecting", "key", key.String(), "error", err, "delay", delay, "attempt", bo.Attempts())
		if sleepCtx(ctx, delay) != nil {
			return
		}
	}
}

// consume reads from conn until it fails or ctx is cancelled. Cancellation closes conn,
// which unblocks the pending read.
func consume(ctx context.Context, conn StreamConn, key entity.SubscriptionKey, sink Sink) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		if stop() {
			_ = conn.Close()
		}
	}()

	for {
		c, closed, err := conn.Next()
		if err != nil {
			return err
		}
		sink.Emit(entity.PriceUpdate{Key: key, Candle: c, Closed: closed})
	}
}
