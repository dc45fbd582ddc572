package dxlink

import (
	"context"
	"errors"
	"testing"
	"time"

	"market-streamer/src/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNegotiatorConfig() NegotiatorConfig {
	return NegotiatorConfig{
		Version:          "0.1-DXF-JS/0.3.0",
		KeepaliveTimeout: 60,
		Channel:          1,
		Token:            "secret",
		EventType:        EventCandle,
		Fields:           CandleFields,
	}
}

func TestNegotiatorStepByStep(t *testing.T) {
	tr := newMockTransport()
	n := NewNegotiator(tr, testNegotiatorConfig(), nil)

	require.NoError(t, n.Start())
	assert.Equal(t, PhaseAwaitingAuth, n.Phase())
	assert.Equal(t, []string{TypeSetup}, tr.sentTypes())

	require.NoError(t, n.Handle(Message{Type: TypeSetup}))
	assert.Equal(t, []string{TypeSetup, TypeAuth}, tr.sentTypes())
	assert.Equal(t, "secret", tr.sentMessages()[1].Token)

	// initial announcement
	require.NoError(t, n.Handle(Message{Type: TypeAuthState, State: StateUnauthorized}))
	assert.Equal(t, PhaseAwaitingAuth, n.Phase())

	// out of order: no FEED_SETUP before the channel is open
	require.NoError(t, n.Handle(Message{Type: TypeChannelOpened, Channel: 1}))
	require.NoError(t, n.Handle(Message{Type: TypeFeedConfig, Channel: 1}))
	assert.Equal(t, PhaseAwaitingAuth, n.Phase())
	assert.Len(t, tr.sentMessages(), 2)

	require.NoError(t, n.Handle(Message{Type: TypeAuthState, State: StateAuthorized}))
	assert.Equal(t, PhaseChannelOpening, n.Phase())
	assert.Equal(t, TypeChannelRequest, tr.sentMessages()[2].Type)
	assert.Equal(t, 1, tr.sentMessages()[2].Channel)

	// early ack and a foreign channel are ignored
	require.NoError(t, n.Handle(Message{Type: TypeFeedConfig, Channel: 1}))
	require.NoError(t, n.Handle(Message{Type: TypeChannelOpened, Channel: 7}))
	assert.Equal(t, PhaseChannelOpening, n.Phase())
	assert.Len(t, tr.sentMessages(), 3)

	require.NoError(t, n.Handle(Message{Type: TypeChannelOpened, Channel: 1}))
	assert.Equal(t, PhaseFeedConfiguring, n.Phase())
	setup := tr.sentMessages()[3]
	assert.Equal(t, TypeFeedSetup, setup.Type)
	assert.Equal(t, FormatCompact, setup.AcceptDataFormat)
	assert.Equal(t, CandleFields, setup.AcceptEventFields[EventCandle])

	require.NoError(t, n.Handle(Message{Type: TypeFeedConfig, Channel: 1}))
	assert.Equal(t, PhaseReady, n.Phase())
	assert.Equal(t, CandleFields, n.Schema().Fields())

	// no re-entry once Ready
	require.NoError(t, n.Handle(Message{Type: TypeSetup}))
	require.NoError(t, n.Handle(Message{Type: TypeAuthState, State: StateAuthorized}))
	assert.Len(t, tr.sentMessages(), 4)
	assert.Equal(t, PhaseReady, n.Phase())
}

func TestNegotiatorAuthRejected(t *testing.T) {
	tr := newMockTransport()
	n := NewNegotiator(tr, testNegotiatorConfig(), nil)

	require.NoError(t, n.Start())
	require.NoError(t, n.Handle(Message{Type: TypeSetup}))
	require.NoError(t, n.Handle(Message{Type: TypeAuthState, State: StateUnauthorized}))

	err := n.Handle(Message{Type: TypeAuthState, State: StateUnauthorized})
	var rejected *helpers.AuthRejectedError
	require.True(t, errors.As(err, &rejected), "got %v", err)
	assert.Equal(t, PhaseFailed, n.Phase())
	assert.NotContains(t, tr.sentTypes(), TypeChannelRequest)

	// terminal: nothing moves it any more
	n.Close()
	assert.Equal(t, PhaseFailed, n.Phase())
	assert.Error(t, n.Handle(Message{Type: TypeAuthState, State: StateAuthorized}))
	assert.Equal(t, PhaseFailed, n.Phase())
}

func TestNegotiatorUnknownAuthStateAfterAuth(t *testing.T) {
	tr := newMockTransport()
	n := NewNegotiator(tr, testNegotiatorConfig(), nil)

	require.NoError(t, n.Start())
	require.NoError(t, n.Handle(Message{Type: TypeSetup}))

	err := n.Handle(Message{Type: TypeAuthState, State: "EXPIRED"})
	var rejected *helpers.AuthRejectedError
	assert.True(t, errors.As(err, &rejected))
}

func TestNegotiatorServerErrorFails(t *testing.T) {
	tr := newMockTransport()
	n := NewNegotiator(tr, testNegotiatorConfig(), nil)
	require.NoError(t, n.Start())

	err := n.Handle(Message{Type: TypeError, Error: "TIMEOUT", ErrorMessage: "no auth"})
	var te *helpers.TransportError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, PhaseFailed, n.Phase())
}

func TestNegotiatorAnswersKeepalive(t *testing.T) {
	tr := newMockTransport()
	n := NewNegotiator(tr, testNegotiatorConfig(), nil)
	require.NoError(t, n.Start())

	require.NoError(t, n.Handle(Message{Type: TypeKeepalive}))
	sent := tr.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, TypeKeepalive, sent[1].Type)
	assert.Equal(t, ControlChannel, sent[1].Channel)
}

func TestNegotiatorCloseIsIdempotent(t *testing.T) {
	n := NewNegotiator(newMockTransport(), testNegotiatorConfig(), nil)
	n.Close()
	n.Close()
	assert.Equal(t, PhaseClosed, n.Phase())
	assert.Error(t, n.Start())
}

func TestNegotiatorStartWithoutToken(t *testing.T) {
	tr := newMockTransport()
	cfg := testNegotiatorConfig()
	cfg.Token = ""
	n := NewNegotiator(tr, cfg, nil)

	err := n.Start()
	var pe *helpers.PreconditionError
	assert.True(t, errors.As(err, &pe))
	assert.Empty(t, tr.sentMessages())
}

// -----------------------------------------------------------------------------

func TestNegotiateAgainstScriptedFeed(t *testing.T) {
	tr := scriptedTransport(feedScript{echoFields: []string{"eventSymbol", "time", "close"}})
	n := NewNegotiator(tr, testNegotiatorConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, n.Negotiate(ctx))
	assert.Equal(t, PhaseReady, n.Phase())
	assert.Equal(t, []string{TypeSetup, TypeAuth, TypeChannelRequest, TypeFeedSetup}, tr.sentTypes())
	assert.Equal(t, []string{"eventSymbol", "time", "close"}, n.Schema().Fields())
}

func TestNegotiateTimesOut(t *testing.T) {
	tr := scriptedTransport(feedScript{skipConfig: true})
	n := NewNegotiator(tr, testNegotiatorConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := n.Negotiate(ctx)
	var te *helpers.TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, PhaseFailed, n.Phase())
	assert.NotContains(t, tr.sentTypes(), TypeFeedSubscription)
}

func TestNegotiateRejectionWithoutGreeting(t *testing.T) {
	tr := newMockTransport()
	tr.respond = func(ft *mockTransport, msg Message) {
		switch msg.Type {
		case TypeSetup:
			ft.push(Message{Type: TypeSetup, Channel: 0, Version: "1.0", KeepaliveTimeout: 60})
		case TypeAuth:
			ft.push(Message{Type: TypeAuthState, Channel: 0, State: StateUnauthorized})
		}
	}
	n := NewNegotiator(tr, testNegotiatorConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	err := n.Negotiate(ctx)
	var rejected *helpers.AuthRejectedError
	require.True(t, errors.As(err, &rejected), "got %v", err)
	assert.Equal(t, PhaseFailed, n.Phase())
	assert.NotContains(t, tr.sentTypes(), TypeChannelRequest)
}

func TestNegotiateConnectionLost(t *testing.T) {
	tr := newMockTransport()
	n := NewNegotiator(tr, testNegotiatorConfig(), nil)

	go tr.drop(errors.New("reset by peer"))

	err := n.Negotiate(context.Background())
	var te *helpers.TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, PhaseFailed, n.Phase())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "FeedConfiguring", PhaseFeedConfiguring.String())
	assert.Equal(t, "Phase(42)", Phase(42).String())
	assert.True(t, PhaseClosed.Terminal())
	assert.False(t, PhaseReady.Terminal())
}
