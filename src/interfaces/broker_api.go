package interfaces

import (
	"context"
	"time"

	"market-streamer/src/models"
)

// -----------------------------------------------------------------------------
// IBrokerAPI is the request/response side of the brokerage REST API.
// -----------------------------------------------------------------------------

type IBrokerAPI interface {
	MarketSnapshot(ctx context.Context, symbol string) (*models.MMarketSnapshot, error)

	// EarningsReports lists fiscal quarters ending on or after since.
	EarningsReports(ctx context.Context, symbol string, since time.Time) ([]models.MEarningsEntry, error)
}
