package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterval_Duration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		interval Interval
		want     time.Duration
		daily    bool
	}{
		{Interval1m, time.Minute, false},
		{Interval4H, 4 * time.Hour, false},
		{Interval1D, 24 * time.Hour, true},
		{Interval1M, 30 * 24 * time.Hour, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.interval), func(t *testing.T) {
			t.Parallel()
			assert.True(t, tt.interval.Valid())
			assert.Equal(t, tt.want, tt.interval.Duration())
			assert.Equal(t, tt.daily, tt.interval.Daily())
		})
	}
}

func TestInterval_Unknown(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "1h", "1min", "2H"} {
		assert.False(t, Interval(s).Valid(), s)
		assert.Zero(t, Interval(s).Duration(), s)
	}
	assert.Len(t, Intervals(), 9)
}

func TestClassifySymbol(t *testing.T) {
	t.Parallel()

	assert.Equal(t, AssetClassForex, ClassifySymbol("EUR/USD"))
	assert.Equal(t, AssetClassCrypto, ClassifySymbol("BTCUSDT"))
	assert.Equal(t, "BTCUSDT@1H", NewSubscriptionKey("BTCUSDT", Interval1H).String())
	assert.NotEqual(t, NewSubscriptionKey("btcusdt", Interval1H), NewSubscriptionKey("BTCUSDT", Interval1H))
}

func TestCandle_SameOHLC(t *testing.T) {
	t.Parallel()

	a := Candle{Time: 60, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}
	b := a
	b.Volume = 11
	assert.True(t, a.SameOHLC(b))
	assert.NotEqual(t, a, b)
	b.Close = 1.6
	assert.False(t, a.SameOHLC(b))
}
