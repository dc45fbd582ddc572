package models

// MStreamMessage is what the local websocket hub pushes to its clients.
type MStreamMessage struct {
	Type      string   `json:"type"` // SNAPSHOT or QUOTE
	Quotes    []MQuote `json:"quotes"`
	Timestamp int64    `json:"timestamp"`
}

// MSubscribeCommand is sent by hub clients to narrow the symbols they receive.
// An empty symbol list means every symbol.
type MSubscribeCommand struct {
	Command string   `json:"command"`
	Symbols []string `json:"symbols"`
}
