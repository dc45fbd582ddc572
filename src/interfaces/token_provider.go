package interfaces

import (
	"context"

	"market-streamer/src/models"
)

// -----------------------------------------------------------------------------
// ITokenProvider hands out the short lived streaming token and its feed URL.
// -----------------------------------------------------------------------------

type ITokenProvider interface {

	// QuoteToken returns a cached token when still valid, otherwise fetches a new one.
	QuoteToken(ctx context.Context) (*models.MQuoteToken, error)

	// -----------------------------------------------------------------------------

	// Invalidate drops the cached token so the next call fetches a fresh one.
	Invalidate() error
}
