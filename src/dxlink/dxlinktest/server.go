// Package dxlinktest provides an in-process feed speaking the streaming protocol over a
// real websocket, plus the REST endpoints that issue its tokens.
package dxlinktest

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"market-streamer/src/dxlink"
	"market-streamer/src/logger"
	"market-streamer/src/models"

	"github.com/gorilla/websocket"
)

// Config shapes the fake feed's behaviour. Zero values give an accepting feed with
// synthetic data.
type Config struct {
	// Token expected in AUTH. Empty accepts any token.
	Token string

	// EchoFields makes FEED_CONFIG echo the accepted field list.
	EchoFields bool

	// CandleRows produces the rows sent after a Candle subscription. Nil uses SyntheticCandles.
	CandleRows func(symbol string, interval models.Timeframe, from, to int64) [][]interface{}

	// QuoteRow produces the n-th live quote row. Nil uses SyntheticQuote.
	QuoteRow func(symbol string, n int) []interface{}

	// QuoteInterval between live quotes, default 100ms.
	QuoteInterval time.Duration

	Logger *logger.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

// Server wraps an httptest server running the feed handler.
type Server struct {
	*httptest.Server
	feed *Feed
}

func NewServer(cfg Config) *Server {
	feed := NewFeed(cfg)
	return &Server{Server: httptest.NewServer(feed), feed: feed}
}

// WebSocketURL is the ws:// address of the feed.
func (s *Server) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// Received lists every message the feed got from clients, in order.
func (s *Server) Received() []dxlink.Message {
	return s.feed.Received()
}

// -----------------------------------------------------------------------------

// Feed is the websocket handler. One goroutine per connection reads, a mutex
// serializes writes.
type Feed struct {
	cfg Config
	log *logger.Logger

	mu       sync.Mutex
	received []dxlink.Message
}

func NewFeed(cfg Config) *Feed {
	if cfg.QuoteInterval <= 0 {
		cfg.QuoteInterval = 100 * time.Millisecond
	}
	if cfg.CandleRows == nil {
		cfg.CandleRows = SyntheticCandles
	}
	if cfg.QuoteRow == nil {
		cfg.QuoteRow = SyntheticQuote
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Feed{cfg: cfg, log: log}
}

func (f *Feed) Received() []dxlink.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dxlink.Message, len(f.received))
	copy(out, f.received)
	return out
}

// -----------------------------------------------------------------------------

type feedConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
}

func (c *feedConn) write(msg dxlink.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return c.conn.WriteJSON(msg)
}

// -----------------------------------------------------------------------------

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Info("Failed to upgrade websocket: %v", err)
		return
	}

	c := &feedConn{conn: conn, done: make(chan struct{})}
	defer func() {
		close(c.done)
		conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := dxlink.DecodeMessage(frame)
		if err != nil {
			_ = c.write(dxlink.Message{Type: dxlink.TypeError, Error: "INVALID_MESSAGE", ErrorMessage: err.Error()})
			continue
		}

		f.mu.Lock()
		f.received = append(f.received, msg)
		f.mu.Unlock()

		if err := f.reply(c, msg); err != nil {
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (f *Feed) reply(c *feedConn, msg dxlink.Message) error {
	switch msg.Type {
	case dxlink.TypeSetup:
		if err := c.write(dxlink.Message{Type: dxlink.TypeSetup, Channel: 0, Version: "1.0-fake", KeepaliveTimeout: 60, AcceptKeepaliveTimeout: 60}); err != nil {
			return err
		}
		return c.write(dxlink.Message{Type: dxlink.TypeAuthState, Channel: 0, State: dxlink.StateUnauthorized})

	case dxlink.TypeAuth:
		state := dxlink.StateAuthorized
		if f.cfg.Token != "" && msg.Token != f.cfg.Token {
			state = dxlink.StateUnauthorized
		}
		return c.write(dxlink.Message{Type: dxlink.TypeAuthState, Channel: 0, State: state})

	case dxlink.TypeChannelRequest:
		return c.write(dxlink.Message{Type: dxlink.TypeChannelOpened, Channel: msg.Channel, Service: msg.Service, Parameters: msg.Parameters})

	case dxlink.TypeFeedSetup:
		ack := dxlink.Message{Type: dxlink.TypeFeedConfig, Channel: msg.Channel, DataFormat: dxlink.FormatCompact}
		if f.cfg.EchoFields {
			ack.EventFields = msg.AcceptEventFields
		}
		return c.write(ack)

	case dxlink.TypeFeedSubscription:
		for _, sub := range msg.Add {
			switch sub.Type {
			case dxlink.EventCandle:
				if err := f.sendCandles(c, msg.Channel, sub.Symbol); err != nil {
					return err
				}
			case dxlink.EventQuote:
				go f.streamQuotes(c, msg.Channel, sub.Symbol)
			}
		}
	}

	// KEEPALIVE is deliberately not answered; the client answers ours.
	return nil
}

// -----------------------------------------------------------------------------

func (f *Feed) sendCandles(c *feedConn, channel int, symbol string) error {
	base, interval, from, to, err := ParseCandleSymbol(symbol)
	if err != nil {
		return c.write(dxlink.Message{Type: dxlink.TypeError, Channel: channel, Error: "INVALID_SYMBOL", ErrorMessage: err.Error()})
	}

	rows := f.cfg.CandleRows(base, interval, from, to)
	if len(rows) == 0 {
		return nil
	}

	payload := []interface{}{dxlink.EventCandle}
	for _, row := range rows {
		payload = append(payload, row)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.write(dxlink.Message{Type: dxlink.TypeFeedData, Channel: channel, Data: data})
}

func (f *Feed) streamQuotes(c *feedConn, channel int, symbol string) {
	ticker := time.NewTicker(f.cfg.QuoteInterval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			data, err := json.Marshal([]interface{}{dxlink.EventQuote, f.cfg.QuoteRow(symbol, n)})
			if err != nil {
				return
			}
			if err := c.write(dxlink.Message{Type: dxlink.TypeFeedData, Channel: channel, Data: data}); err != nil {
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Symbols and synthetic data
// -----------------------------------------------------------------------------

// ParseCandleSymbol splits SYMBOL{=INTERVAL,fromTime=T0,toTime=T1}.
func ParseCandleSymbol(symbol string) (base string, interval models.Timeframe, from, to int64, err error) {
	open := strings.IndexByte(symbol, '{')
	if open < 0 || !strings.HasSuffix(symbol, "}") {
		return "", "", 0, 0, fmt.Errorf("not a candle symbol: %q", symbol)
	}
	base = symbol[:open]

	for _, part := range strings.Split(symbol[open+1:len(symbol)-1], ",") {
		switch {
		case strings.HasPrefix(part, "="):
			interval, err = models.ParseTimeframe(part[1:])
		case strings.HasPrefix(part, "fromTime="):
			from, err = strconv.ParseInt(strings.TrimPrefix(part, "fromTime="), 10, 64)
		case strings.HasPrefix(part, "toTime="):
			to, err = strconv.ParseInt(strings.TrimPrefix(part, "toTime="), 10, 64)
		}
		if err != nil {
			return "", "", 0, 0, err
		}
	}
	if interval == "" {
		return "", "", 0, 0, fmt.Errorf("candle symbol %q has no interval", symbol)
	}
	return base, interval, from, to, nil
}

// SyntheticCandles emits one candle per interval in [from, to], newest first, so
// consumers have to sort. At most 500 rows.
func SyntheticCandles(symbol string, interval models.Timeframe, from, to int64) [][]interface{} {
	step := interval.Duration().Milliseconds()
	if step <= 0 || to <= from {
		return nil
	}

	var rows [][]interface{}
	for ts := to - (to-from)%step; ts >= from && len(rows) < 500; ts -= step {
		price := 100 + 5*math.Sin(float64(ts/step)/10)
		rows = append(rows, []interface{}{
			symbol + "{=" + interval.String() + "}", ts, 0, ts, ts, 0, 1,
			round2(price - 0.2), round2(price + 0.5), round2(price - 0.6), round2(price), 1000 + ts%500,
		})
	}
	return rows
}

// SyntheticQuote returns a two-sided quote drifting with n.
func SyntheticQuote(symbol string, n int) []interface{} {
	bid := round2(100 + 0.5*math.Sin(float64(n)/5))
	ask := round2(bid + 0.05)
	now := time.Now().UnixMilli()
	return []interface{}{symbol, now, n, 0, now, "Q", bid, 200, now, "Q", ask, 300}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// -----------------------------------------------------------------------------
// REST
// -----------------------------------------------------------------------------

// RESTHandler serves /oauth/token and /api-quote-tokens pointing at feedURL, plus
// canned market-data and earnings answers.
func RESTHandler(feedURL, quoteToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, map[string]interface{}{
			"access_token": "fake-access-token",
			"token_type":   "Bearer",
			"expires_in":   900,
		})
	})
	mux.HandleFunc("/api-quote-tokens", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fake-access-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]interface{}{
			"data": map[string]string{"token": quoteToken, "dxlink-url": feedURL},
		})
	})
	mux.HandleFunc("/market-data/by-type", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"items": []map[string]interface{}{{
			"symbol":         r.URL.Query().Get("equity"),
			"bid":            "100.1",
			"ask":            "100.2",
			"last":           "100.15",
			"day-high-price": "101.0",
			"day-low-price":  "99.0",
			"prev-close":     "99.5",
			"volume":         "1250000",
			"trading-halted": false,
		}}}})
	})
	mux.HandleFunc("/market-metrics/historic-corporate-events/earnings-reports/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"items": []map[string]interface{}{
			{"occurred-date": "2025-03-31", "eps": "1.65"},
			{"occurred-date": "2025-06-30", "eps": nil},
		}}})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
