package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"market_backend/internal/feature/marketdata/domain/entity"
	"market_backend/internal/feature/marketdata/usecase"
	"market_backend/internal/platform/externalapi/twelvedata/dto"
	"market_backend/internal/shared/ratelimiter"
)

// MaxOutputSize is the largest page time_series returns.
const MaxOutputSize = 5000

const (
	layoutDate     = "2006-01-02"
	layoutDateTime = "2006-01-02 15:04:05"
)

var intervals = map[entity.Interval]string{
	entity.Interval1m:  "1min",
	entity.Interval5m:  "5min",
	entity.Interval15m: "15min",
	entity.Interval30m: "30min",
	entity.Interval1H:  "1h",
	entity.Interval4H:  "4h",
	entity.Interval1D:  "1day",
	entity.Interval1W:  "1week",
	entity.Interval1M:  "1month",
}

// ForexPairs are the major and cross pairs offered for streaming.
var ForexPairs = []string{
	"EUR/USD", "GBP/USD", "USD/JPY", "USD/CHF", "AUD/USD",
	"NZD/USD", "USD/CAD", "EUR/GBP", "EUR/JPY", "GBP/JPY",
	"AUD/JPY", "EUR/AUD", "GBP/AUD", "EUR/CAD", "GBP/CAD",
	"AUD/NZD", "EUR/NZD", "CHF/JPY", "CAD/JPY", "NZD/JPY",
	"EUR/CHF", "GBP/CHF", "AUD/CAD", "NZD/CAD", "GBP/NZD",
}

// Provider は Twelve Data の time_series エンドポイントから為替ローソク足を取得します。
type Provider struct {
	cfg     Config
	client  *http.Client
	limiter ratelimiter.Limiter
}

// ProviderがProviderインターフェースを実装していることをコンパイル時に検証します。
var _ usecase.Provider = (*Provider)(nil)

// NewProvider returns a Twelve Data provider. limiter may be nil.
func NewProvider(cfg Config, client *http.Client, limiter ratelimiter.Limiter) *Provider {
	return &Provider{cfg: cfg, client: client, limiter: limiter}
}

func (p *Provider) Name() string { return "twelvedata" }

// FetchHistorical はtime_seriesを昇順で取得し、ドメインのCandleに変換して返します。
func (p *Provider) FetchHistorical(ctx context.Context, q entity.HistoryQuery) ([]entity.Candle, error) {
	iv, ok := intervals[q.Interval]
	if !ok {
		return nil, fmt.Errorf("twelvedata: unsupported interval %q", q.Interval)
	}
	size := q.Limit
	if size <= 0 || size > MaxOutputSize {
		size = MaxOutputSize
	}

	v := url.Values{}
	v.Set("symbol", q.Symbol)
	v.Set("interval", iv)
	v.Set("outputsize", strconv.Itoa(size))
	v.Set("apikey", p.cfg.APIKey)
	v.Set("order", "asc")
	v.Set("format", "JSON")
	v.Set("timezone", "UTC")
	layout := layoutDateTime
	if q.Interval.Daily() {
		layout = layoutDate
	}
	if q.Start != nil {
		v.Set("start_date", time.Unix(*q.Start, 0).UTC().Format(layout))
	}
	if q.End != nil {
		v.Set("end_date", time.Unix(*q.End, 0).UTC().Format(layout))
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := fmt.Sprintf("%s/time_series?%s", p.cfg.BaseURL, v.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("twelvedata http %d", res.StatusCode)
	}

	var body dto.TimeSeriesResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Status == "error" {
		return nil, fmt.Errorf("twelvedata: %s", body.Message)
	}

	candles := make([]entity.Candle, 0, len(body.Values))
	for _, item := range body.Values {
		c, err := toCandle(item)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	// ascending regardless of how the venue honored order=asc
	slices.SortFunc(candles, func(a, b entity.Candle) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	return candles, nil
}

func toCandle(v dto.TimeSeriesItem) (entity.Candle, error) {
	tm, err := time.Parse(layoutDateTime, v.Datetime)
	if err != nil {
		tm, err = time.Parse(layoutDate, v.Datetime)
		if err != nil {
			return entity.Candle{}, fmt.Errorf("parse time %q: %w", v.Datetime, err)
		}
	}
	o, err := strconv.ParseFloat(v.Open, 64)
	if err != nil {
		return entity.Candle{}, fmt.Errorf("parse open %q: %w", v.Open, err)
	}
	h, err := strconv.ParseFloat(v.High, 64)
	if err != nil {
		return entity.Candle{}, fmt.Errorf("parse high %q: %w", v.High, err)
	}
	l, err := strconv.ParseFloat(v.Low, 64)
	if err != nil {
		return entity.Candle{}, fmt.Errorf("parse low %q: %w", v.Low, err)
	}
	c, err := strconv.ParseFloat(v.Close, 64)
	if err != nil {
		return entity.Candle{}, fmt.Errorf("parse close %q: %w", v.Close, err)
	}
	var vol float64
	if v.Volume != "" {
		if vol, err = strconv.ParseFloat(v.Volume, 64); err != nil {
			return entity.Candle{}, fmt.Errorf("parse volume %q: %w", v.Volume, err)
		}
	}
	candle := entity.Candle{Time: tm.Unix(), Open: o, High: h, Low: l, Close: c, Volume: vol}
	if err := candle.Validate(); err != nil {
		return entity.Candle{}, err
	}
	return candle, nil
}

// AvailableSymbols returns the fixed forex pair list.
func (p *Provider) AvailableSymbols(ctx context.Context) ([]string, error) {
	return slices.Clone(ForexPairs), nil
}
