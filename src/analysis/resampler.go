package analysis

import (
	"fmt"
	"sort"

	"market-streamer/src/analysis/core"
	"market-streamer/src/models"
)

// -----------------------------------------------------------------------------

// CalculateWindowBoundaries returns the [start, end) window holding ts, aligned to
// multiples of window since the epoch.
func CalculateWindowBoundaries(ts int64, window int64) (int64, int64) {
	start := ts - (ts % window)
	return start, start + window
}

// -----------------------------------------------------------------------------

// ResampleBars aggregates finer bars into the target interval. Windows are aligned to
// the epoch (UTC), so only intervals up to one day are supported. The input may be
// unsorted; the output is oldest first and stamped with the window start.
func ResampleBars(bars []models.MBar, to models.Timeframe) ([]models.MBar, error) {
	window := to.Duration().Milliseconds()
	if window <= 0 || to.Duration() > models.D1.Duration() {
		return nil, fmt.Errorf("cannot resample to %q", to)
	}
	if len(bars) == 0 {
		return []models.MBar{}, nil
	}

	sorted := make([]models.MBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	out := make([]models.MBar, 0, len(sorted))
	groupStart := 0
	curStart, _ := CalculateWindowBoundaries(sorted[0].Timestamp, window)

	flush := func(end int) {
		merged := core.MergeOHLCV(sorted[groupStart:end])
		merged.Timestamp = curStart
		merged.Interval = to.String()
		out = append(out, merged)
	}

	for i := 1; i < len(sorted); i++ {
		start, _ := CalculateWindowBoundaries(sorted[i].Timestamp, window)
		if start != curStart {
			flush(i)
			groupStart, curStart = i, start
		}
	}
	flush(len(sorted))

	return out, nil
}
