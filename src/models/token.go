package models

import "time"

// MQuoteToken is the streaming credential plus the feed endpoint it is valid for.
type MQuoteToken struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"` // When the token was issued
}

// Valid reports whether the token is present and younger than ttl.
func (t *MQuoteToken) Valid(now time.Time, ttl time.Duration) bool {
	if t == nil || t.Token == "" || t.URL == "" {
		return false
	}
	return now.Sub(t.Timestamp) <= ttl
}
