package models

import "time"

// MQuote is one live bid/ask update. CapturedAt is taken on the client because the
// feed carries no reliable client-local time.
type MQuote struct {
	CapturedAt  time.Time `json:"captured_at"`
	Symbol      string    `json:"symbol"`
	BidPrice    float64   `json:"bid_price"`
	BidSize     float64   `json:"bid_size"`
	BidExchange string    `json:"bid_exchange"`
	AskPrice    float64   `json:"ask_price"`
	AskSize     float64   `json:"ask_size"`
	AskExchange string    `json:"ask_exchange"`
	Spread      float64   `json:"spread"`
}
