package util

import (
	"fmt"
	"time"
)

var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// IntervalDuration returns the bar length of a kline interval such as "5m".
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervals[interval]
	if !ok {
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
	return d, nil
}

// IsValidInterval reports whether interval is one of the supported bar sizes.
func IsValidInterval(interval string) bool {
	_, ok := intervals[interval]
	return ok
}

// YahooRange picks the smallest chart range that covers bars candles of the
// given interval. Yahoo only accepts a fixed set of range tokens.
func YahooRange(interval string, bars int) (string, error) {
	d, err := IntervalDuration(interval)
	if err != nil {
		return "", err
	}
	need := d * time.Duration(bars)
	// equity sessions are shorter than a calendar day, pad for closed hours
	need *= 3

	ranges := []struct {
		token string
		span  time.Duration
	}{
		{"1d", 24 * time.Hour},
		{"5d", 5 * 24 * time.Hour},
		{"1mo", 31 * 24 * time.Hour},
		{"3mo", 92 * 24 * time.Hour},
		{"6mo", 183 * 24 * time.Hour},
		{"1y", 366 * 24 * time.Hour},
		{"2y", 731 * 24 * time.Hour},
		{"5y", 1827 * 24 * time.Hour},
	}
	for _, r := range ranges {
		if need <= r.span {
			return r.token, nil
		}
	}
	return "max", nil
}

// YahooInterval maps a kline interval onto Yahoo's vocabulary.
func YahooInterval(interval string) (string, error) {
	switch interval {
	case "1m", "5m", "15m", "30m", "1d":
		return interval, nil
	case "1h":
		return "60m", nil
	case "1w":
		return "1wk", nil
	}
	return "", fmt.Errorf("interval %q not available on yahoo", interval)
}
