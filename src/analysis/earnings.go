package analysis

import (
	"time"

	"market-streamer/src/models"
)

// Companies announce roughly five weeks after the fiscal quarter closes.
const earningsAnnouncementOffsetDays = 35

// EarningsLookbackYears is how much history EstimateNextEarnings wants to see.
const EarningsLookbackYears = 2

// -----------------------------------------------------------------------------

// EstimateNextEarnings picks the latest reported quarter and estimates the next
// announcement. A pending quarter (no EPS yet) anchors the estimate; otherwise the
// quarter after the last reported one does. Without either the result carries -1.
func EstimateNextEarnings(symbol string, entries []models.MEarningsEntry, today time.Time) models.MEarningsOutlook {
	out := models.MEarningsOutlook{Symbol: symbol, DaysUntilEarnings: -1}

	var lastReported, nextPending *models.MEarningsEntry
	for i := range entries {
		e := &entries[i]
		if e.Reported {
			if lastReported == nil || e.OccurredDate.After(lastReported.OccurredDate) {
				lastReported = e
			}
		} else if nextPending == nil || e.OccurredDate.Before(nextPending.OccurredDate) {
			nextPending = e
		}
	}

	if lastReported != nil {
		out.LastReported = lastReported.OccurredDate.Format(time.DateOnly)
		out.EPS = lastReported.EPS
	}

	var quarterEnd time.Time
	switch {
	case nextPending != nil:
		quarterEnd = dateOf(nextPending.OccurredDate)
	case lastReported != nil:
		quarterEnd = addMonthsClamped(dateOf(lastReported.OccurredDate), 3)
	default:
		return out
	}

	estimated := quarterEnd.AddDate(0, 0, earningsAnnouncementOffsetDays)
	out.EstimatedDate = estimated.Format(time.DateOnly)
	out.DaysUntilEarnings = int(estimated.Sub(dateOf(today)).Hours() / 24)
	return out
}

// -----------------------------------------------------------------------------

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// addMonthsClamped moves t by n months, landing on the last day of the target month
// when t's day does not exist there (Mar 31 + 3 months is Jun 30, not Jul 1).
func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, time.UTC)
}
