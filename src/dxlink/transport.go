package dxlink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"market-streamer/src/helpers"
	"market-streamer/src/logger"

	"github.com/gorilla/websocket"
)

const (
	maxFrameSize  = 4 * 1024 * 1024
	inboundBuffer = 256
)

// Transport is one duplex connection to the feed. Receive delivers raw frames in
// arrival order and is closed when the connection ends; Err then tells why.
type Transport interface {
	Send(msg Message) error
	Receive() <-chan []byte
	Err() error
	Close() error
}

// Dialer opens transports. Tests substitute an in-memory implementation.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// -----------------------------------------------------------------------------
// WebSocket implementation
// -----------------------------------------------------------------------------

type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
	Logger           *logger.Logger
}

func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, helpers.NewTransportError("websocket handshake failed ("+resp.Status+")", err)
		}
		return nil, helpers.NewTransportError("websocket dial failed", err)
	}
	conn.SetReadLimit(maxFrameSize)

	log := d.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	t := &wsTransport{
		conn:         conn,
		writeTimeout: d.WriteTimeout,
		inbound:      make(chan []byte, inboundBuffer),
		done:         make(chan struct{}),
		log:          log,
	}
	go t.readPump()
	return t, nil
}

// -----------------------------------------------------------------------------

type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	inbound      chan []byte
	done         chan struct{}
	log          *logger.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// -----------------------------------------------------------------------------
// readPump - the only reader of the connection
// -----------------------------------------------------------------------------

func (t *wsTransport) readPump() {
	defer close(t.inbound)

	for {
		_, frame, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
				// closed locally, not an error
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					t.setErr(helpers.NewTransportError("connection closed by server", err))
				} else {
					t.setErr(helpers.NewTransportError("read failed", err))
				}
			}
			return
		}

		select {
		case t.inbound <- frame:
		case <-t.done:
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (t *wsTransport) Send(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-t.done:
		return helpers.NewTransportError("send on closed connection", nil)
	default:
	}

	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return helpers.NewTransportError("write failed", err)
	}
	t.log.Debug("-> %s", payload)
	return nil
}

func (t *wsTransport) Receive() <-chan []byte {
	return t.inbound
}

func (t *wsTransport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *wsTransport) setErr(err error) {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

// -----------------------------------------------------------------------------

// Close sends a close frame and releases the socket. Safe to call more than once.
func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)

		t.writeMu.Lock()
		_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := t.conn.WriteMessage(websocket.CloseMessage, msg); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			t.log.Debug("close frame not sent: %v", werr)
		}
		t.writeMu.Unlock()

		err = t.conn.Close()
	})
	return err
}
