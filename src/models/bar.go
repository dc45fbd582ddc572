package models

import "time"

// MBar is one decoded historical candle.
type MBar struct {
	Symbol    string  `json:"symbol"`
	Interval  string  `json:"interval"`
	Timestamp int64   `json:"timestamp"` // ms since epoch
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Time returns the bar timestamp as a time.Time in UTC.
func (b MBar) Time() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}
