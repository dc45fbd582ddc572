package models

import "time"

// MQuoteSummary describes a batch of live quotes.
type MQuoteSummary struct {
	Count     int       `json:"count"`
	AvgSpread float64   `json:"avg_spread"`
	StdSpread float64   `json:"std_spread"`
	MinBid    float64   `json:"min_bid"`
	MaxAsk    float64   `json:"max_ask"`
	First     time.Time `json:"first"`
	Last      time.Time `json:"last"`
}

// MBarSummary describes a bar series as a single range.
type MBarSummary struct {
	Count         int     `json:"count"`
	From          int64   `json:"from"`
	To            int64   `json:"to"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        float64 `json:"volume"`
	ChangePercent float64 `json:"change_percent"`
}
