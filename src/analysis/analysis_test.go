package analysis

import (
	"testing"
	"time"

	"market-streamer/src/analysis/core"
	"market-streamer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minuteBar(ts time.Time, o, h, l, c, v float64) models.MBar {
	return models.MBar{Symbol: "AAPL", Interval: "1m", Timestamp: ts.UnixMilli(), Open: o, High: h, Low: l, Close: c, Volume: v}
}

func TestResampleBarsToFiveMinutes(t *testing.T) {
	base := time.Date(2025, 6, 11, 14, 0, 0, 0, time.UTC)

	bars := []models.MBar{
		minuteBar(base.Add(6*time.Minute), 13, 14, 12, 13.5, 5),
		minuteBar(base, 10, 11, 9, 10.5, 1),
		minuteBar(base.Add(time.Minute), 10.5, 12, 10, 11, 2),
		minuteBar(base.Add(4*time.Minute), 11, 11.5, 8, 9, 3),
	}

	out, err := ResampleBars(bars, models.M5)
	require.NoError(t, err)
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, base.UnixMilli(), first.Timestamp)
	assert.Equal(t, "5m", first.Interval)
	assert.Equal(t, 10.0, first.Open)
	assert.Equal(t, 12.0, first.High)
	assert.Equal(t, 8.0, first.Low)
	assert.Equal(t, 9.0, first.Close)
	assert.Equal(t, 6.0, first.Volume)

	second := out[1]
	assert.Equal(t, base.Add(5*time.Minute).UnixMilli(), second.Timestamp)
	assert.Equal(t, 13.5, second.Close)
}

func TestResampleBarsLimits(t *testing.T) {
	_, err := ResampleBars(nil, models.W1)
	assert.Error(t, err)

	out, err := ResampleBars(nil, models.H1)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestSummarizeQuotes(t *testing.T) {
	now := time.Now()
	quotes := []models.MQuote{
		{CapturedAt: now, BidPrice: 100, AskPrice: 101, Spread: 1},
		{CapturedAt: now.Add(time.Second), BidPrice: 99, AskPrice: 102, Spread: 3},
	}

	s := SummarizeQuotes(quotes)
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 2.0, s.AvgSpread)
	assert.Equal(t, 1.0, s.StdSpread)
	assert.Equal(t, 99.0, s.MinBid)
	assert.Equal(t, 102.0, s.MaxAsk)
	assert.True(t, s.Last.After(s.First))

	assert.Equal(t, models.MQuoteSummary{}, SummarizeQuotes(nil))
}

func TestSummarizeBars(t *testing.T) {
	base := time.Date(2025, 6, 11, 14, 0, 0, 0, time.UTC)
	bars := []models.MBar{
		minuteBar(base, 100, 105, 99, 104, 10),
		minuteBar(base.Add(time.Minute), 104, 110, 103, 110, 20),
	}

	s := SummarizeBars(bars)
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 100.0, s.Open)
	assert.Equal(t, 110.0, s.High)
	assert.Equal(t, 99.0, s.Low)
	assert.Equal(t, 110.0, s.Close)
	assert.Equal(t, 30.0, s.Volume)
	assert.InDelta(t, 10.0, s.ChangePercent, 1e-9)
}

func TestChangePercentIsScaled(t *testing.T) {
	assert.InDelta(t, -10.0, core.CalculateChangePercent(90, 100), 1e-9)
	assert.InDelta(t, 2.5, core.CalculateChangePercent(102.5, 100), 1e-9)
	assert.Equal(t, 0.0, core.CalculateChangePercent(5, 0))
}

func quarter(date string, eps *float64) models.MEarningsEntry {
	d, _ := time.Parse(time.DateOnly, date)
	return models.MEarningsEntry{OccurredDate: d, Reported: eps != nil, EPS: eps}
}

func TestEstimateNextEarnings(t *testing.T) {
	eps := func(v float64) *float64 { return &v }
	today := time.Date(2025, 7, 1, 15, 30, 0, 0, time.UTC)

	t.Run("pending quarter anchors the estimate", func(t *testing.T) {
		out := EstimateNextEarnings("AAPL", []models.MEarningsEntry{
			quarter("2024-12-31", eps(2.4)),
			quarter("2025-03-31", eps(1.65)),
			quarter("2025-09-30", nil),
			quarter("2025-06-30", nil),
		}, today)

		assert.Equal(t, "2025-03-31", out.LastReported)
		require.NotNil(t, out.EPS)
		assert.Equal(t, 1.65, *out.EPS)
		assert.Equal(t, "2025-08-04", out.EstimatedDate)
		assert.Equal(t, 34, out.DaysUntilEarnings)
	})

	t.Run("all reported rolls one quarter forward", func(t *testing.T) {
		out := EstimateNextEarnings("AAPL", []models.MEarningsEntry{
			quarter("2025-03-31", eps(1.65)),
		}, today)

		// Mar 31 + 3 months clamps to Jun 30.
		assert.Equal(t, "2025-08-04", out.EstimatedDate)
		assert.Equal(t, 34, out.DaysUntilEarnings)
	})

	t.Run("estimate in the past is negative", func(t *testing.T) {
		out := EstimateNextEarnings("AAPL", []models.MEarningsEntry{quarter("2025-03-31", nil)}, today)
		assert.Empty(t, out.LastReported)
		assert.Nil(t, out.EPS)
		assert.Equal(t, -57, out.DaysUntilEarnings)
	})

	t.Run("no history", func(t *testing.T) {
		out := EstimateNextEarnings("AAPL", nil, today)
		assert.Equal(t, -1, out.DaysUntilEarnings)
		assert.Empty(t, out.EstimatedDate)
	})
}
