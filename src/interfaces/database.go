package interfaces

import (
	"time"

	"market-streamer/src/models"
)

// -----------------------------------------------------------------------------
// IDatabase defines the contract for storage operations.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveBars upserts decoded candles keyed by (symbol, interval, timestamp).
	SaveBars(bars []models.MBar) error

	// -----------------------------------------------------------------------------
	// SaveQuotes appends captured quotes
	SaveQuotes(quotes []models.MQuote) error

	// -----------------------------------------------------------------------------

	// LoadBars returns stored candles in [from, to], oldest first.
	LoadBars(symbol string, interval models.Timeframe, from, to time.Time) ([]models.MBar, error)

	// -----------------------------------------------------------------------------

	// ListSymbols returns every symbol that has stored bars or quotes.
	ListSymbols() ([]string, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData removes data older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
