package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"market-streamer/src/helpers"
	"market-streamer/src/models"
)

// -----------------------------------------------------------------------------

// flexFloat accepts a JSON number, a numeric string or null. Anything unparseable
// decodes as zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		v = 0
	}
	*f = flexFloat(v)
	return nil
}

type marketDataItem struct {
	Bid                 flexFloat `json:"bid"`
	Ask                 flexFloat `json:"ask"`
	Last                flexFloat `json:"last"`
	Open                flexFloat `json:"open"`
	DayHighPrice        flexFloat `json:"day-high-price"`
	DayLowPrice         flexFloat `json:"day-low-price"`
	Close               flexFloat `json:"close"`
	PrevClose           flexFloat `json:"prev-close"`
	Volume              flexFloat `json:"volume"`
	Beta                flexFloat `json:"beta"`
	TradingHalted       bool      `json:"trading-halted"`
	TradingHaltedReason string    `json:"trading-halted-reason"`
}

type marketDataResponse struct {
	Data struct {
		Items []marketDataItem `json:"items"`
	} `json:"data"`
}

type earningsItem struct {
	OccurredDate string          `json:"occurred-date"`
	EPS          json.RawMessage `json:"eps"`
}

type earningsResponse struct {
	Data struct {
		Items []earningsItem `json:"items"`
	} `json:"data"`
}

// -----------------------------------------------------------------------------

// MarketSnapshot returns the current REST view of an equity. An unknown symbol
// yields a snapshot carrying only the symbol.
func (c *TastyClient) MarketSnapshot(ctx context.Context, symbol string) (*models.MMarketSnapshot, error) {
	if symbol == "" {
		return nil, helpers.NewPreconditionError("symbol must not be empty")
	}

	body, err := c.authorizedGet(ctx, "/market-data/by-type?equity="+url.QueryEscape(symbol))
	if err != nil {
		return nil, fmt.Errorf("market data for %s: %w", symbol, err)
	}

	var resp marketDataResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, helpers.NewNetworkError("decoding market data response", err)
	}

	snap := &models.MMarketSnapshot{Symbol: symbol, Timestamp: c.now()}
	if len(resp.Data.Items) == 0 {
		c.log.Warning("No market data returned for %s", symbol)
		return snap, nil
	}

	item := resp.Data.Items[0]
	snap.Bid = float64(item.Bid)
	snap.Ask = float64(item.Ask)
	snap.Last = float64(item.Last)
	snap.Open = float64(item.Open)
	snap.High = float64(item.DayHighPrice)
	snap.Low = float64(item.DayLowPrice)
	snap.Close = float64(item.Close)
	snap.PrevClose = float64(item.PrevClose)
	snap.Volume = float64(item.Volume)
	snap.Beta = float64(item.Beta)
	snap.TradingHalted = item.TradingHalted
	snap.TradingHaltedReason = item.TradingHaltedReason
	return snap, nil
}

// -----------------------------------------------------------------------------

// EarningsReports lists the fiscal quarters of symbol ending on or after since.
// Entries without a parseable occurred-date are skipped.
func (c *TastyClient) EarningsReports(ctx context.Context, symbol string, since time.Time) ([]models.MEarningsEntry, error) {
	if symbol == "" {
		return nil, helpers.NewPreconditionError("symbol must not be empty")
	}

	path := fmt.Sprintf("/market-metrics/historic-corporate-events/earnings-reports/%s?start-date=%s",
		url.PathEscape(symbol), since.Format(time.DateOnly))
	body, err := c.authorizedGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("earnings reports for %s: %w", symbol, err)
	}

	var resp earningsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, helpers.NewNetworkError("decoding earnings response", err)
	}

	entries := make([]models.MEarningsEntry, 0, len(resp.Data.Items))
	for _, item := range resp.Data.Items {
		occurred, err := time.Parse(time.DateOnly, item.OccurredDate)
		if err != nil {
			c.log.Debug("Skipping earnings entry for %s with occurred-date %q", symbol, item.OccurredDate)
			continue
		}

		entry := models.MEarningsEntry{OccurredDate: occurred}
		raw := bytes.TrimSpace(item.EPS)
		if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			entry.Reported = true
			s := strings.Trim(string(raw), `"`)
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				entry.EPS = &v
			} else {
				c.log.Warning("Could not parse eps value %s for %s", raw, symbol)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
