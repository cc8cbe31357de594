package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync/atomic"

	gobinance "github.com/adshao/go-binance/v2"

	"market_backend/internal/feature/marketdata/domain/entity"
	"market_backend/internal/feature/marketdata/usecase"
)

// MaxKlines is the largest page /api/v3/klines returns.
const MaxKlines = 1000

var intervals = map[entity.Interval]string{
	entity.Interval1m:  "1m",
	entity.Interval5m:  "5m",
	entity.Interval15m: "15m",
	entity.Interval30m: "30m",
	entity.Interval1H:  "1h",
	entity.Interval4H:  "4h",
	entity.Interval1D:  "1d",
	entity.Interval1W:  "1w",
	entity.Interval1M:  "1M",
}

var quoteAssets = map[string]bool{"USDT": true, "BUSD": true, "BTC": true}

// Endpoint selects which Binance deployment the provider talks to.
type Endpoint int32

const (
	EndpointPrimary Endpoint = iota
	EndpointFallback
)

func (e Endpoint) String() string {
	if e == EndpointFallback {
		return "fallback"
	}
	return "primary"
}

// Provider fetches spot klines and listings. Once a geo-restriction response is seen it
// switches to the fallback endpoints for the rest of its lifetime.
type Provider struct {
	cfg        Config
	client     *http.Client
	endpoint   atomic.Int32
	onFailover atomic.Pointer[func()]
}

var _ usecase.Provider = (*Provider)(nil)

// NewProvider returns a Binance provider starting on the primary endpoint.
func NewProvider(cfg Config, client *http.Client) *Provider {
	return &Provider{cfg: cfg, client: client}
}

func (p *Provider) Name() string { return "binance" }

// OnFailover registers fn to run once, on the goroutine that performs the switch to the
// fallback endpoint. fn must not block for long; the triggering request waits on it.
func (p *Provider) OnFailover(fn func()) {
	p.onFailover.Store(&fn)
}

// Endpoint reports the active endpoint.
func (p *Provider) Endpoint() Endpoint {
	return Endpoint(p.endpoint.Load())
}

func (p *Provider) restURL() string {
	if p.Endpoint() == EndpointFallback {
		return p.cfg.RESTFallbackURL
	}
	return p.cfg.RESTBaseURL
}

func (p *Provider) wsURL() string {
	if p.Endpoint() == EndpointFallback {
		return p.cfg.WSFallbackURL
	}
	return p.cfg.WSBaseURL
}

// failover moves to the fallback endpoint. It reports whether this call made the switch.
func (p *Provider) failover(source string, status int) bool {
	if p.cfg.RESTFallbackURL == "" && p.cfg.WSFallbackURL == "" {
		return false
	}
	if !p.endpoint.CompareAndSwap(int32(EndpointPrimary), int32(EndpointFallback)) {
		return false
	}
	slog.Warn("binance geo-restricted, switching to fallback endpoint",
		"source", source, "status", status, "rest", p.cfg.RESTFallbackURL, "ws", p.cfg.WSFallbackURL)
	if fn := p.onFailover.Load(); fn != nil && *fn != nil {
		(*fn)()
	}
	return true
}

func geoRestricted(status int) bool {
	return status == http.StatusUnavailableForLegalReasons || status == http.StatusForbidden
}

// apiError is the error body Binance returns with 4xx/5xx responses.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// get performs a GET against the active endpoint and decodes the JSON body into out.
// A geo-restriction response trips failover and the call is retried once on the fallback.
func (p *Provider) get(ctx context.Context, path string, q url.Values, out any) error {
	status, body, err := p.do(ctx, p.restURL(), path, q)
	if err != nil {
		return err
	}
	if geoRestricted(status) && p.failover("rest", status) {
		status, body, err = p.do(ctx, p.restURL(), path, q)
		if err != nil {
			return err
		}
	}
	if status >= 400 {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Msg != "" {
			return fmt.Errorf("binance http %d: code=%d msg=%s", status, ae.Code, ae.Msg)
		}
		return fmt.Errorf("binance http %d", status)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("binance decode %s: %w", path, err)
	}
	return nil
}

func (p *Provider) do(ctx context.Context, base, path string, q url.Values) (int, []byte, error) {
	u := base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	res, err := p.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, err
	}
	return res.StatusCode, body, nil
}

// FetchHistorical returns spot klines in ascending order. Times are converted between
// seconds and Binance milliseconds.
func (p *Provider) FetchHistorical(ctx context.Context, q entity.HistoryQuery) ([]entity.Candle, error) {
	iv, ok := intervals[q.Interval]
	if !ok {
		return nil, fmt.Errorf("binance: unsupported interval %q", q.Interval)
	}
	limit := q.Limit
	if limit <= 0 || limit > MaxKlines {
		limit = MaxKlines
	}

	v := url.Values{}
	v.Set("symbol", q.Symbol)
	v.Set("interval", iv)
	v.Set("limit", strconv.Itoa(limit))
	if q.Start != nil {
		v.Set("startTime", strconv.FormatInt(*q.Start*1000, 10))
	}
	if q.End != nil {
		v.Set("endTime", strconv.FormatInt(*q.End*1000, 10))
	}

	var rows [][]any
	if err := p.get(ctx, "/api/v3/klines", v, &rows); err != nil {
		return nil, err
	}

	candles := make([]entity.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := rowToCandle(row)
		if err != nil {
			return nil, fmt.Errorf("binance kline %d: %w", i, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// rowToCandle converts [openTime, open, high, low, close, volume, ...].
func rowToCandle(row []any) (entity.Candle, error) {
	if len(row) < 6 {
		return entity.Candle{}, fmt.Errorf("short row: %d fields", len(row))
	}
	ms, err := toInt64(row[0])
	if err != nil {
		return entity.Candle{}, fmt.Errorf("parse open time: %w", err)
	}
	var f [5]float64
	names := [5]string{"open", "high", "low", "close", "volume"}
	for i := range f {
		if f[i], err = toFloat(row[i+1]); err != nil {
			return entity.Candle{}, fmt.Errorf("parse %s: %w", names[i], err)
		}
	}
	c := entity.Candle{Time: ms / 1000, Open: f[0], High: f[1], Low: f[2], Close: f[3], Volume: f[4]}
	if err := c.Validate(); err != nil {
		return entity.Candle{}, err
	}
	return c, nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseFloat(t, 64)
	case float64:
		return t, nil
	case json.Number:
		return t.Float64()
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	case json.Number:
		return t.Int64()
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}

// AvailableSymbols lists trading spot symbols quoted in USDT, BUSD or BTC, sorted.
func (p *Provider) AvailableSymbols(ctx context.Context) ([]string, error) {
	var info gobinance.ExchangeInfo
	if err := p.get(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" && quoteAssets[s.QuoteAsset] {
			out = append(out, s.Symbol)
		}
	}
	slices.Sort(out)
	return out, nil
}
