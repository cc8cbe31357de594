package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_backend/internal/feature/marketdata/domain/entity"
)

const klinesBody = `[
	[1700000000000, "37000.10", "37100.00", "36950.00", "37050.50", "12.345", 1700000059999, "0", 10, "0", "0", "0"],
	[1700000060000, "37050.50", "37060.00", "37000.00", "37010.00", "3.5", 1700000119999, "0", 4, "0", "0", "0"]
]`

func ptr(v int64) *int64 { return &v }

func TestProvider_FetchHistorical(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "1m", q.Get("interval"))
		assert.Equal(t, "1000", q.Get("limit"), "limit clamped to the page maximum")
		assert.Equal(t, "1700000000000", q.Get("startTime"))
		assert.Equal(t, "1700000060000", q.Get("endTime"))
		_, _ = w.Write([]byte(klinesBody))
	}))
	defer server.Close()
	p := NewProvider(Config{RESTBaseURL: server.URL}, server.Client())

	got, err := p.FetchHistorical(context.Background(), entity.HistoryQuery{
		Symbol: "BTCUSDT", Interval: entity.Interval1m, Start: ptr(1_700_000_000), End: ptr(1_700_000_060), Limit: 5000,
	})

	require.NoError(t, err)
	assert.Equal(t, []entity.Candle{
		{Time: 1_700_000_000, Open: 37000.10, High: 37100.00, Low: 36950.00, Close: 37050.50, Volume: 12.345},
		{Time: 1_700_000_060, Open: 37050.50, High: 37060.00, Low: 37000.00, Close: 37010.00, Volume: 3.5},
	}, got)
}

func TestProvider_IntervalMapping(t *testing.T) {
	t.Parallel()

	want := map[entity.Interval]string{
		entity.Interval1H: "1h", entity.Interval4H: "4h", entity.Interval1D: "1d",
		entity.Interval1W: "1w", entity.Interval1M: "1M",
	}
	for _, iv := range entity.Intervals() {
		_, ok := intervals[iv]
		assert.True(t, ok, "interval %s is mapped", iv)
	}
	for iv, label := range want {
		assert.Equal(t, label, intervals[iv])
	}
}

func TestProvider_StickyFailoverOnGeoRestriction(t *testing.T) {
	t.Parallel()

	var primaryHits, fallbackHits atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		w.WriteHeader(http.StatusUnavailableForLegalReasons)
		_, _ = w.Write([]byte(`{"code":0,"msg":"Service unavailable from a restricted location"}`))
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackHits.Add(1)
		_, _ = w.Write([]byte(klinesBody))
	}))
	defer fallback.Close()

	p := NewProvider(Config{RESTBaseURL: primary.URL, RESTFallbackURL: fallback.URL, WSBaseURL: "wss://primary", WSFallbackURL: "wss://fallback"}, http.DefaultClient)
	var switched atomic.Int32
	p.OnFailover(func() { switched.Add(1) })
	q := entity.HistoryQuery{Symbol: "BTCUSDT", Interval: entity.Interval1H, Limit: 2}

	got, err := p.FetchHistorical(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, EndpointFallback, p.Endpoint())
	assert.Equal(t, "wss://fallback", p.wsURL())

	_, err = p.FetchHistorical(context.Background(), q)
	require.NoError(t, err)
	assert.EqualValues(t, 1, primaryHits.Load(), "primary is never retried")
	assert.EqualValues(t, 2, fallbackHits.Load())
	assert.EqualValues(t, 1, switched.Load(), "failover hook runs once")
}

func TestProvider_FailoverStateIsPerInstance(t *testing.T) {
	t.Parallel()

	a := NewProvider(Config{RESTFallbackURL: "https://fallback"}, http.DefaultClient)
	b := NewProvider(Config{RESTFallbackURL: "https://fallback"}, http.DefaultClient)
	var aHooks, bHooks int
	a.OnFailover(func() { aHooks++ })
	b.OnFailover(func() { bHooks++ })

	assert.True(t, a.failover("test", 451))
	assert.False(t, a.failover("test", 451), "already switched")
	assert.Equal(t, 1, aHooks)
	assert.Zero(t, bHooks)
	assert.Equal(t, EndpointFallback, a.Endpoint())
	assert.Equal(t, EndpointPrimary, b.Endpoint())

	none := NewProvider(Config{}, http.DefaultClient)
	assert.False(t, none.failover("test", 451), "no fallback configured")
}

func TestProvider_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error body", http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`, "binance http 400: code=-1121 msg=Invalid symbol."},
		{"plain server error", http.StatusBadGateway, `oops`, "binance http 502"},
		{"geo restricted without fallback", http.StatusUnavailableForLegalReasons, `{}`, "binance http 451"},
		{"bad price", http.StatusOK, `[[1700000000000,"x","1","1","1","1"]]`, "parse open"},
		{"short row", http.StatusOK, `[[1700000000000,"1"]]`, "short row"},
		{"NaN price", http.StatusOK, `[[1700000000000,"NaN","1","1","1","1"]]`, "invalid candle open"},
		{"negative volume", http.StatusOK, `[[1700000000000,"1","1","1","1","-3"]]`, "invalid candle volume"},
		{"not json", http.StatusOK, `<html>`, "binance decode"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()
			p := NewProvider(Config{RESTBaseURL: server.URL}, server.Client())

			_, err := p.FetchHistorical(context.Background(), entity.HistoryQuery{Symbol: "BTCUSDT", Interval: entity.Interval1m, Limit: 1})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// 非有限値・負値を含む行はエラーとして扱い、ローソク足を返さない
func TestRowToCandle_RejectsNonFiniteAndNegative(t *testing.T) {
	t.Parallel()

	_, err := rowToCandle([]any{60000.0, "NaN", "-5", "1", "+Inf", "-3"})
	assert.ErrorContains(t, err, "invalid candle open")

	c, err := rowToCandle([]any{60000.0, "1", "2", "0.5", "1.5", "0"})
	require.NoError(t, err)
	assert.Equal(t, entity.Candle{Time: 60, Open: 1, High: 2, Low: 0.5, Close: 1.5}, c)
}

func TestProvider_AvailableSymbols(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		_, _ = w.Write([]byte(`{"timezone":"UTC","symbols":[
			{"symbol":"ETHUSDT","status":"TRADING","baseAsset":"ETH","quoteAsset":"USDT"},
			{"symbol":"BTCEUR","status":"TRADING","baseAsset":"BTC","quoteAsset":"EUR"},
			{"symbol":"ETHBTC","status":"TRADING","baseAsset":"ETH","quoteAsset":"BTC"},
			{"symbol":"LUNAUSDT","status":"BREAK","baseAsset":"LUNA","quoteAsset":"USDT"},
			{"symbol":"ADABUSD","status":"TRADING","baseAsset":"ADA","quoteAsset":"BUSD"}
		]}`))
	}))
	defer server.Close()
	p := NewProvider(Config{RESTBaseURL: server.URL}, server.Client())

	got, err := p.AvailableSymbols(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"ADABUSD", "ETHBTC", "ETHUSDT"}, got)
}

func TestProvider_ContextCancelled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()
	p := NewProvider(Config{RESTBaseURL: server.URL}, server.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.FetchHistorical(ctx, entity.HistoryQuery{Symbol: "BTCUSDT", Interval: entity.Interval1m, Limit: 1})

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("BINANCE_REST_URL", "")
	t.Setenv("BINANCE_REST_URL_FALLBACK", "")
	t.Setenv("BINANCE_WS_URL", "wss://custom:9443")
	t.Setenv("PROVIDER_TIMEOUT", "")

	cfg := LoadConfig()

	assert.Equal(t, "https://api.binance.com", cfg.RESTBaseURL)
	assert.Equal(t, "https://api.binance.us", cfg.RESTFallbackURL)
	assert.Equal(t, "wss://custom:9443", cfg.WSBaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 20*time.Second, cfg.PingInterval)
}
