package analysis

import (
	"market-streamer/src/analysis/core"
	"market-streamer/src/models"
)

// -----------------------------------------------------------------------------

// SummarizeQuotes computes spread and price extremes over a quote batch.
func SummarizeQuotes(quotes []models.MQuote) models.MQuoteSummary {
	if len(quotes) == 0 {
		return models.MQuoteSummary{}
	}

	spreads := make([]float64, len(quotes))
	bids := make([]float64, len(quotes))
	asks := make([]float64, len(quotes))
	for i, q := range quotes {
		spreads[i] = q.Spread
		bids[i] = q.BidPrice
		asks[i] = q.AskPrice
	}

	avgSpread, stdSpread := core.CalculateMeanStd(spreads)
	minBid, _ := core.MinMax(bids)
	_, maxAsk := core.MinMax(asks)

	return models.MQuoteSummary{
		Count:     len(quotes),
		AvgSpread: avgSpread,
		StdSpread: stdSpread,
		MinBid:    minBid,
		MaxAsk:    maxAsk,
		First:     quotes[0].CapturedAt,
		Last:      quotes[len(quotes)-1].CapturedAt,
	}
}

// -----------------------------------------------------------------------------

// SummarizeBars merges a sorted bar series into its overall range and change.
func SummarizeBars(bars []models.MBar) models.MBarSummary {
	if len(bars) == 0 {
		return models.MBarSummary{}
	}

	merged := core.MergeOHLCV(bars)
	return models.MBarSummary{
		Count:         len(bars),
		From:          bars[0].Timestamp,
		To:            bars[len(bars)-1].Timestamp,
		Open:          merged.Open,
		High:          merged.High,
		Low:           merged.Low,
		Close:         merged.Close,
		Volume:        merged.Volume,
		ChangePercent: core.CalculateChangePercent(merged.Close, merged.Open),
	}
}
