package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"market-streamer/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop
func (s *FastAPIServer) handleWebsockets() {
	for {
		select {
		case <-s.done:
			for client := range s.clients {
				s.drop(client)
			}
			return

		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.setConnections(len(s.clients))
			client.send <- s.snapshot(nil)

		case client := <-s.resubscribe:
			if _, ok := s.clients[client]; ok {
				select {
				case client.send <- s.snapshot(client.symbolList()):
				default:
					s.drop(client)
				}
			}

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				s.drop(client)
			}

		case quote := <-s.broadcast:
			s.stateMutex.Lock()
			s.latestQuotes[quote.Symbol] = quote
			s.stateMutex.Unlock()

			message := &models.MStreamMessage{
				Type:      "QUOTE",
				Quotes:    []models.MQuote{quote},
				Timestamp: quote.CapturedAt.UnixMilli(),
			}
			for client := range s.clients {
				if !client.wants(quote.Symbol) {
					continue
				}
				select {
				case client.send <- message:
				default:
					// slow consumer, drop it rather than block the hub
					s.drop(client)
				}
			}
		}
	}
}

// drop must only be called from the hub goroutine.
func (s *FastAPIServer) drop(client *Client) {
	delete(s.clients, client)
	close(client.send)
	s.setConnections(len(s.clients))
}

func (s *FastAPIServer) setConnections(n int) {
	s.stateMutex.Lock()
	s.connections = n
	s.stateMutex.Unlock()
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// Broadcast queues a quote (or a slice of quotes) for every interested client.
func (s *FastAPIServer) Broadcast(payload interface{}) {
	switch v := payload.(type) {
	case models.MQuote:
		s.enqueue(v)
	case *models.MQuote:
		if v != nil {
			s.enqueue(*v)
		}
	case []models.MQuote:
		for _, q := range v {
			s.enqueue(q)
		}
	default:
		s.Logger.Info("Broadcast expected models.MQuote, got %T", payload)
	}
}

func (s *FastAPIServer) enqueue(q models.MQuote) {
	select {
	case s.broadcast <- q:
	case <-s.done:
	}
}

// -----------------------------------------------------------------------------

// snapshot returns the latest quote of each requested symbol (all when empty), sorted by symbol.
func (s *FastAPIServer) snapshot(symbols []string) *models.MStreamMessage {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()

	quotes := make([]models.MQuote, 0, len(s.latestQuotes))
	for sym, q := range s.latestQuotes {
		if len(symbols) == 0 || contains(symbols, sym) {
			quotes = append(quotes, q)
		}
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })

	return &models.MStreamMessage{
		Type:      "SNAPSHOT",
		Quotes:    quotes,
		Timestamp: time.Now().UnixMilli(),
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		send: make(chan *models.MStreamMessage, 256),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

func (s *FastAPIServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}

	symbols := make([]string, 0, len(cmd.Symbols))
	for _, sym := range cmd.Symbols {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	client.setSymbols(symbols)

	// the hub replies with a snapshot of the new selection
	select {
	case s.resubscribe <- client:
	case <-s.done:
	}
}
