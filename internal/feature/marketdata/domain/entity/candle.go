// Package entity defines the domain types shared by the market data feature.
package entity

import (
	"fmt"
	"math"
)

// Candle is one OHLCV bucket. Time is the bucket's open time in whole Unix seconds.
type Candle struct {
	Time   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// SameOHLC reports whether c and o carry identical open time and prices, ignoring volume.
func (c Candle) SameOHLC(o Candle) bool {
	return c.Time == o.Time && c.Open == o.Open && c.High == o.High && c.Low == o.Low && c.Close == o.Close
}

// Validate rejects prices or volume that are negative, NaN or infinite.
func (c Candle) Validate() error {
	fields := [5]float64{c.Open, c.High, c.Low, c.Close, c.Volume}
	names := [5]string{"open", "high", "low", "close", "volume"}
	for i, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("invalid candle %s: %v", names[i], v)
		}
	}
	return nil
}

// PriceUpdate is a normalized upstream update for one subscription key.
type PriceUpdate struct {
	Key    SubscriptionKey
	Candle Candle
	Closed bool
}

// HistoryQuery selects a candle range. Nil bounds are open; Start and End are Unix seconds.
type HistoryQuery struct {
	Symbol   string
	Interval Interval
	Start    *int64
	End      *int64
	Limit    int
}

// Latest reports whether q asks for the newest window rather than a bounded range.
func (q HistoryQuery) Latest() bool {
	return q.Start == nil && q.End == nil
}
