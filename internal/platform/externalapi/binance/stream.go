package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"

	"market_backend/internal/feature/marketdata/domain/entity"
	"market_backend/internal/feature/marketdata/stream"
)

// StreamDialer opens single-stream kline websockets on the provider's active endpoint.
type StreamDialer struct {
	provider *Provider
	dialer   *websocket.Dialer
}

var _ stream.StreamDialer = (*StreamDialer)(nil)

// NewStreamDialer shares endpoint state with p, so a REST failover also moves streams.
func NewStreamDialer(p *Provider) *StreamDialer {
	return &StreamDialer{
		provider: p,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// StreamURL returns the kline stream URL for key on the active endpoint.
func (d *StreamDialer) StreamURL(key entity.SubscriptionKey) (string, error) {
	iv, ok := intervals[key.Interval]
	if !ok {
		return "", fmt.Errorf("binance: unsupported interval %q", key.Interval)
	}
	return fmt.Sprintf("%s/ws/%s@kline_%s", d.provider.wsURL(), strings.ToLower(key.Symbol), iv), nil
}

func (d *StreamDialer) Dial(ctx context.Context, key entity.SubscriptionKey) (stream.StreamConn, error) {
	u, err := d.StreamURL(key)
	if err != nil {
		return nil, err
	}
	ws, resp, err := d.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			if geoRestricted(resp.StatusCode) {
				d.provider.failover("websocket", resp.StatusCode)
			}
			return nil, fmt.Errorf("binance ws dial %s: http %d: %w", u, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("binance ws dial %s: %w", u, err)
	}
	return newKlineConn(ws, d.provider.cfg.PingInterval, d.provider.cfg.PongTimeout), nil
}

// klineConn reads kline events from one websocket and keeps it alive with pings.
type klineConn struct {
	ws          *websocket.Conn
	readTimeout time.Duration

	once sync.Once
	done chan struct{}
}

func newKlineConn(ws *websocket.Conn, pingInterval, pongTimeout time.Duration) *klineConn {
	c := &klineConn{ws: ws, readTimeout: pingInterval + pongTimeout, done: make(chan struct{})}
	if c.readTimeout > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		})
	}
	if pingInterval > 0 {
		go c.pingLoop(pingInterval, pongTimeout)
	}
	return c
}

func (c *klineConn) pingLoop(interval, timeout time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			// WriteControl is safe to call concurrently with reads.
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout)); err != nil {
				return
			}
		}
	}
}

// Next returns the next kline. Non-kline, undecodable and invalid frames are skipped;
// only read errors end the stream.
func (c *klineConn) Next() (entity.Candle, bool, error) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return entity.Candle{}, false, err
		}
		if c.readTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		}

		var ev gobinance.WsKlineEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("skipping undecodable binance frame", "error", err)
			continue
		}
		if ev.Event != "kline" {
			continue
		}
		candle, err := klineToCandle(ev.Kline)
		if err != nil {
			slog.Warn("skipping invalid binance kline", "symbol", ev.Symbol, "error", err)
			continue
		}
		return candle, ev.Kline.IsFinal, nil
	}
}

func klineToCandle(k gobinance.WsKline) (entity.Candle, error) {
	fields := [5]string{k.Open, k.High, k.Low, k.Close, k.Volume}
	names := [5]string{"open", "high", "low", "close", "volume"}
	var f [5]float64
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return entity.Candle{}, fmt.Errorf("parse %s %q: %w", names[i], s, err)
		}
		f[i] = v
	}
	c := entity.Candle{Time: k.StartTime / 1000, Open: f[0], High: f[1], Low: f[2], Close: f[3], Volume: f[4]}
	if err := c.Validate(); err != nil {
		return entity.Candle{}, err
	}
	return c, nil
}

// Close stops the keepalive and closes the socket. Safe to call more than once.
func (c *klineConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
