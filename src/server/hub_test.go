package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"market-streamer/src/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, s *FastAPIServer) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Engine())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) models.MStreamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg models.MStreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubSnapshotAndFiltering(t *testing.T) {
	s := newTestServer(&fakeMarketData{})
	go s.handleWebsockets()
	t.Cleanup(func() { _ = s.Stop() })

	s.Broadcast(models.MQuote{Symbol: "AAPL", BidPrice: 1, AskPrice: 2, CapturedAt: time.Now()})

	// wait until the hub applied the quote
	require.Eventually(t, func() bool {
		return len(s.snapshot(nil).Quotes) == 1
	}, time.Second, 10*time.Millisecond)

	conn := dialHub(t, s)

	initial := readMessage(t, conn)
	assert.Equal(t, "SNAPSHOT", initial.Type)
	require.Len(t, initial.Quotes, 1)
	assert.Equal(t, "AAPL", initial.Quotes[0].Symbol)

	require.NoError(t, conn.WriteJSON(models.MSubscribeCommand{Command: "subscribe", Symbols: []string{"spy"}}))
	filtered := readMessage(t, conn)
	assert.Equal(t, "SNAPSHOT", filtered.Type)
	assert.Empty(t, filtered.Quotes)

	s.Broadcast(models.MQuote{Symbol: "QQQ", BidPrice: 3, AskPrice: 4, CapturedAt: time.Now()})
	s.Broadcast(&models.MQuote{Symbol: "SPY", BidPrice: 5, AskPrice: 6, CapturedAt: time.Now()})

	next := readMessage(t, conn)
	assert.Equal(t, "QUOTE", next.Type)
	require.Len(t, next.Quotes, 1)
	assert.Equal(t, "SPY", next.Quotes[0].Symbol)

	require.Eventually(t, func() bool {
		code, body := get(t, s, "/api/health")
		return code == 200 && body["connections"] == float64(1) && body["tracked_quotes"] == float64(3)
	}, time.Second, 10*time.Millisecond)
}

func TestHubIgnoresUnknownPayloads(t *testing.T) {
	s := newTestServer(&fakeMarketData{})
	go s.handleWebsockets()
	t.Cleanup(func() { _ = s.Stop() })

	s.Broadcast("not a quote")
	s.Broadcast([]models.MQuote{{Symbol: "A"}, {Symbol: "B"}})

	require.Eventually(t, func() bool {
		return len(s.snapshot(nil).Quotes) == 2
	}, time.Second, 10*time.Millisecond)
}
