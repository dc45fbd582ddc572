package interfaces

// -----------------------------------------------------------------------------
// IDataExchanger fans live quotes out to local consumers (the websocket hub).
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	// Broadcast accepts a models.MQuote, a *models.MQuote or a []models.MQuote.
	// Other payloads are logged and dropped.
	Broadcast(payload interface{})

	Start() error

	// Stop closes every client connection and shuts the listener down.
	Stop() error
}
