package entity

import "time"

// Interval is the application-level candle timeframe label.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1H  Interval = "1H"
	Interval4H  Interval = "4H"
	Interval1D  Interval = "1D"
	Interval1W  Interval = "1W"
	Interval1M  Interval = "1M"
)

var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1H:  time.Hour,
	Interval4H:  4 * time.Hour,
	Interval1D:  24 * time.Hour,
	Interval1W:  7 * 24 * time.Hour,
	Interval1M:  30 * 24 * time.Hour, // calendar months are approximated as 30 days
}

// Intervals returns the supported labels in ascending duration order.
func Intervals() []Interval {
	return []Interval{
		Interval1m, Interval5m, Interval15m, Interval30m,
		Interval1H, Interval4H, Interval1D, Interval1W, Interval1M,
	}
}

// Valid reports whether i is part of the supported vocabulary.
func (i Interval) Valid() bool {
	_, ok := intervalDurations[i]
	return ok
}

// Duration returns the bucket length, or 0 for an unknown label.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// Daily reports whether buckets are one day or longer.
func (i Interval) Daily() bool {
	return i.Duration() >= 24*time.Hour
}
