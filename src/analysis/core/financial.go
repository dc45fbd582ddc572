package core

import "market-streamer/src/models"

// -----------------------------------------------------------------------------

// MergeOHLCV folds consecutive bars (oldest first) into one: first open, last close,
// extreme high/low, summed volume.
func MergeOHLCV(bars []models.MBar) models.MBar {
	if len(bars) == 0 {
		return models.MBar{}
	}

	out := bars[0]
	for _, b := range bars[1:] {
		if b.High > out.High {
			out.High = b.High
		}
		if b.Low < out.Low {
			out.Low = b.Low
		}
		out.Close = b.Close
		out.Volume += b.Volume
	}
	return out
}

// -----------------------------------------------------------------------------

// CalculateChangePercent returns the change from previous to current in percent
// (10 means +10%).
func CalculateChangePercent(current, previous float64) float64 {
	if previous == 0 {
		return 0.0
	}
	return (current - previous) / previous * 100
}
