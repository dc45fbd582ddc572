package models

import "time"

// MMarketSnapshot is the REST point-in-time view of one instrument. Missing numbers
// are zero.
type MMarketSnapshot struct {
	Symbol              string    `json:"symbol"`
	Bid                 float64   `json:"bid"`
	Ask                 float64   `json:"ask"`
	Last                float64   `json:"last"`
	Open                float64   `json:"open"`
	High                float64   `json:"high"`
	Low                 float64   `json:"low"`
	Close               float64   `json:"close"`
	PrevClose           float64   `json:"prev_close"`
	Volume              float64   `json:"volume"`
	Beta                float64   `json:"beta"`
	TradingHalted       bool      `json:"trading_halted"`
	TradingHaltedReason string    `json:"trading_halted_reason,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// MEarningsEntry is one fiscal quarter. OccurredDate is the quarter end; EPS stays
// nil until the quarter has been reported.
type MEarningsEntry struct {
	OccurredDate time.Time `json:"occurred_date"`
	Reported     bool      `json:"reported"`
	EPS          *float64  `json:"eps,omitempty"`
}

// MEarningsOutlook summarizes the earnings history of a symbol. DaysUntilEarnings
// is -1 when no estimate is possible and negative when the estimate has passed.
type MEarningsOutlook struct {
	Symbol            string   `json:"symbol"`
	LastReported      string   `json:"last_reported,omitempty"` // YYYY-MM-DD
	EPS               *float64 `json:"eps,omitempty"`
	EstimatedDate     string   `json:"estimated_date,omitempty"`
	DaysUntilEarnings int      `json:"days_until_earnings"`
}
