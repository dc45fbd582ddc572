package dxlink

import (
	"context"
	"encoding/json"
	"sync"

	"market-streamer/src/helpers"
)

// mockTransport records sent messages and lets tests push inbound frames. respond,
// when set, runs after every Send and usually pushes the server's answer.
type mockTransport struct {
	mu      sync.Mutex
	sent    []Message
	inbound chan []byte
	closed  bool
	err     error
	done    chan struct{}
	respond func(t *mockTransport, msg Message)
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		inbound: make(chan []byte, 1024),
		done:    make(chan struct{}),
	}
}

func (m *mockTransport) Send(msg Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return helpers.NewTransportError("send on closed connection", nil)
	}
	m.sent = append(m.sent, msg)
	respond := m.respond
	m.mu.Unlock()

	if respond != nil {
		respond(m, msg)
	}
	return nil
}

func (m *mockTransport) Receive() <-chan []byte { return m.inbound }

func (m *mockTransport) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
		close(m.inbound)
	}
	return nil
}

// drop simulates the peer going away.
func (m *mockTransport) drop(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	_ = m.Close()
}

// push queues a frame; frames pushed after Close are discarded.
func (m *mockTransport) push(msg Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	m.pushRaw(frame)
}

func (m *mockTransport) pushRaw(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.inbound <- frame
}

func (m *mockTransport) sentMessages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *mockTransport) sentTypes() []string {
	var types []string
	for _, msg := range m.sentMessages() {
		types = append(types, msg.Type)
	}
	return types
}

func (m *mockTransport) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// -----------------------------------------------------------------------------

// feedScript answers like a well behaved feed. onSubscribe runs once the client
// subscribes.
type feedScript struct {
	rejectAuth  bool
	skipConfig  bool
	echoFields  []string
	onSubscribe func(t *mockTransport, sub Subscription)
}

func (s feedScript) respond(t *mockTransport, msg Message) {
	switch msg.Type {
	case TypeSetup:
		t.push(Message{Type: TypeSetup, Channel: 0, Version: "1.0", KeepaliveTimeout: 60})
		t.push(Message{Type: TypeAuthState, Channel: 0, State: StateUnauthorized})
	case TypeAuth:
		state := StateAuthorized
		if s.rejectAuth {
			state = StateUnauthorized
		}
		t.push(Message{Type: TypeAuthState, Channel: 0, State: state})
	case TypeChannelRequest:
		t.push(Message{Type: TypeChannelOpened, Channel: msg.Channel, Service: ServiceFeed})
	case TypeFeedSetup:
		if s.skipConfig {
			return
		}
		ack := Message{Type: TypeFeedConfig, Channel: msg.Channel, DataFormat: FormatCompact}
		if s.echoFields != nil {
			for eventType := range msg.AcceptEventFields {
				ack.EventFields = map[string][]string{eventType: s.echoFields}
			}
		}
		t.push(ack)
	case TypeFeedSubscription:
		if s.onSubscribe != nil {
			for _, sub := range msg.Add {
				s.onSubscribe(t, sub)
			}
		}
	}
}

func scriptedTransport(s feedScript) *mockTransport {
	t := newMockTransport()
	t.respond = s.respond
	return t
}

// -----------------------------------------------------------------------------

type mockDialer struct {
	mu        sync.Mutex
	transport *mockTransport
	err       error
	dials     int
	urls      []string
}

func (d *mockDialer) Dial(ctx context.Context, url string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.urls = append(d.urls, url)
	if d.err != nil {
		return nil, d.err
	}
	return d.transport, nil
}

func (d *mockDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// -----------------------------------------------------------------------------

func feedData(eventType string, rows ...[]interface{}) Message {
	payload := []interface{}{eventType}
	for _, r := range rows {
		payload = append(payload, r)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return Message{Type: TypeFeedData, Channel: 1, Data: data}
}

func candleRow(symbol string, ts int64, closePrice interface{}) []interface{} {
	return []interface{}{symbol, ts, 0, ts, ts, 0, 1, 10.0, 12.0, 9.0, closePrice, 1500.0}
}

func quoteRow(symbol string, bid, ask interface{}) []interface{} {
	return []interface{}{symbol, 0, 0, 0, 0, "Q", bid, 100.0, 0, "Z", ask, 200.0}
}
