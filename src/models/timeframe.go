package models

import (
	"fmt"
	"time"
)

// Timeframe is a candle interval code understood by the feed.
type Timeframe string

const (
	M1  Timeframe = "1m"
	M5  Timeframe = "5m"
	M15 Timeframe = "15m"
	M30 Timeframe = "30m"
	H1  Timeframe = "1h"
	D1  Timeframe = "1d"
	W1  Timeframe = "1w"
	MO1 Timeframe = "1mo"
)

var timeframeDurations = map[Timeframe]time.Duration{
	M1:  time.Minute,
	M5:  5 * time.Minute,
	M15: 15 * time.Minute,
	M30: 30 * time.Minute,
	H1:  time.Hour,
	D1:  24 * time.Hour,
	W1:  7 * 24 * time.Hour,
	MO1: 30 * 24 * time.Hour,
}

// -----------------------------------------------------------------------------

// ParseTimeframe validates an interval label.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unsupported interval %q", s)
	}
	return tf, nil
}

// -----------------------------------------------------------------------------

func (t Timeframe) Duration() time.Duration {
	return timeframeDurations[t]
}

func (t Timeframe) String() string {
	return string(t)
}
