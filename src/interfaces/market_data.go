package interfaces

import (
	"context"
	"time"

	"market-streamer/src/models"
)

// -----------------------------------------------------------------------------
// IMarketData is the application service behind the REST and CLI surfaces.
// -----------------------------------------------------------------------------

type IMarketData interface {
	// HistoricalBars streams candles for [now - lookback, now] from the feed.
	HistoricalBars(ctx context.Context, symbol string, lookback time.Duration, interval models.Timeframe) ([]models.MBar, models.MSessionReport, error)

	// LiveQuotes collects quotes for duration.
	LiveQuotes(ctx context.Context, symbol string, duration time.Duration) ([]models.MQuote, models.MSessionReport, error)

	// StoredBars reads previously persisted candles.
	StoredBars(symbol string, interval models.Timeframe, from, to time.Time) ([]models.MBar, error)

	Symbols() ([]string, error)

	TokenInfo(ctx context.Context) (*models.MQuoteToken, error)

	// MarketSnapshot and Earnings go through the REST API, not the feed.
	MarketSnapshot(ctx context.Context, symbol string) (*models.MMarketSnapshot, error)
	Earnings(ctx context.Context, symbol string) (models.MEarningsOutlook, error)

	LastReport() (models.MSessionReport, bool)
}

// -----------------------------------------------------------------------------
// IHealthReporter receives the outcome of every streaming session.
// -----------------------------------------------------------------------------

type IHealthReporter interface {
	ReportSession(report models.MSessionReport)
}
