package domain

import "time"

// Candle is one OHLCV bucket.
type Candle struct {
	Time   int64   `json:"time"` // bucket start, Unix seconds
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"` // sum(amount * price)
}

// Stats24h summarizes a pair over the trailing 24 hours.
type Stats24h struct {
	CurrentPrice     float64 `json:"currentPrice"`
	High24h          float64 `json:"high24h"`
	Low24h           float64 `json:"low24h"`
	Volume24h        float64 `json:"volume24h"`
	Change24h        float64 `json:"change24h"`
	ChangePercent24h float64 `json:"changePercent24h"`
}

// NewStats24h derives the change fields from the first and current price.
// The percentage is zero when the first price is not positive.
func NewStats24h(current, high, low, volume, first float64) Stats24h {
	change := current - first
	var pct float64
	if first > 0 {
		pct = change / first * 100
	}
	return Stats24h{
		CurrentPrice:     current,
		High24h:          high,
		Low24h:           low,
		Volume24h:        volume,
		Change24h:        change,
		ChangePercent24h: pct,
	}
}

// Interval is an OHLCV bucket width.
type Interval string

// Supported OHLCV intervals.
const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval1h:  time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  24 * time.Hour,
}

// ParseInterval maps s to an Interval. Unknown values fall back to 1m.
func ParseInterval(s string) Interval {
	if _, ok := intervalDurations[Interval(s)]; ok {
		return Interval(s)
	}
	return Interval1m
}

// Duration returns the bucket width.
func (i Interval) Duration() time.Duration {
	if d, ok := intervalDurations[i]; ok {
		return d
	}
	return time.Minute
}

// BucketStart truncates t to the start of its bucket in Unix seconds.
func (i Interval) BucketStart(t time.Time) int64 {
	width := int64(i.Duration() / time.Second)
	ts := t.Unix()
	return ts - ts%width
}
