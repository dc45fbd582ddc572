package dxlink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"market-streamer/src/helpers"
	"market-streamer/src/logger"
)

// Phase of a session. Phases only move forward; Closed and Failed are terminal.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingAuth
	PhaseAuthorized
	PhaseChannelOpening
	PhaseChannelOpen
	PhaseFeedConfiguring
	PhaseReady
	PhaseClosed
	PhaseFailed
)

var phaseNames = map[Phase]string{
	PhaseIdle:            "Idle",
	PhaseAwaitingAuth:    "AwaitingAuth",
	PhaseAuthorized:      "Authorized",
	PhaseChannelOpening:  "ChannelOpening",
	PhaseChannelOpen:     "ChannelOpen",
	PhaseFeedConfiguring: "FeedConfiguring",
	PhaseReady:           "Ready",
	PhaseClosed:          "Closed",
	PhaseFailed:          "Failed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

func (p Phase) Terminal() bool {
	return p == PhaseClosed || p == PhaseFailed
}

// -----------------------------------------------------------------------------

type NegotiatorConfig struct {
	Version          string
	KeepaliveTimeout int
	Channel          int
	Token            string
	EventType        string
	Fields           []string
}

// Negotiator drives SETUP -> AUTH -> CHANNEL_REQUEST -> FEED_SETUP until the feed
// acknowledges the schema. It is not safe for concurrent Handle calls; the phase
// accessors are.
type Negotiator struct {
	transport Transport
	cfg       NegotiatorConfig
	log       *logger.Logger

	mu    sync.RWMutex
	phase Phase
	err   error

	authSent        bool
	authStatesSeen  int
	lastAuthState   string
	requestedSchema Schema
	schema          Schema
}

func NewNegotiator(t Transport, cfg NegotiatorConfig, log *logger.Logger) *Negotiator {
	if log == nil {
		log = logger.NewNopLogger()
	}
	schema := NewSchema(cfg.EventType, cfg.Fields)
	return &Negotiator{
		transport:       t,
		cfg:             cfg,
		log:             log,
		phase:           PhaseIdle,
		requestedSchema: schema,
		schema:          schema,
	}
}

// -----------------------------------------------------------------------------

func (n *Negotiator) Phase() Phase {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.phase
}

// Err is the failure that moved the negotiator to Failed, if any.
func (n *Negotiator) Err() error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.err
}

// Schema is the effective schema: the one FEED_CONFIG acknowledged, or the one
// requested when the ack did not echo fields.
func (n *Negotiator) Schema() Schema {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.schema
}

func (n *Negotiator) Channel() int { return n.cfg.Channel }

func (n *Negotiator) EventType() string { return n.cfg.EventType }

// -----------------------------------------------------------------------------

// advance moves forward only. It reports false when the move was refused.
func (n *Negotiator) advance(to Phase) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.phase.Terminal() || to <= n.phase {
		return false
	}
	n.log.Debug("phase %s -> %s", n.phase, to)
	n.phase = to
	return true
}

// fail moves to Failed from any non-terminal phase and returns err for chaining.
func (n *Negotiator) fail(err error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.phase.Terminal() {
		return err
	}
	n.log.Debug("phase %s -> %s: %v", n.phase, PhaseFailed, err)
	n.phase = PhaseFailed
	n.err = err
	return err
}

// Close moves any non-terminal phase to Closed. Idempotent.
func (n *Negotiator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.phase.Terminal() {
		return
	}
	n.log.Debug("phase %s -> %s", n.phase, PhaseClosed)
	n.phase = PhaseClosed
}

// -----------------------------------------------------------------------------

func (n *Negotiator) send(msg Message) error {
	if err := n.transport.Send(msg); err != nil {
		var te *helpers.TransportError
		if !errors.As(err, &te) {
			err = helpers.NewTransportError("sending "+msg.Type, err)
		}
		return n.fail(err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Start sends SETUP and waits for the peer's SETUP.
func (n *Negotiator) Start() error {
	if n.Phase() != PhaseIdle {
		return helpers.NewPreconditionError("negotiation already started (phase " + n.Phase().String() + ")")
	}
	if n.cfg.Token == "" {
		return n.fail(helpers.NewPreconditionError("no streaming token"))
	}
	if err := n.send(EncodeSetup(n.cfg.Version, n.cfg.KeepaliveTimeout)); err != nil {
		return err
	}
	n.advance(PhaseAwaitingAuth)
	return nil
}

// -----------------------------------------------------------------------------

// Handle applies one inbound message. Messages that do not fit the current phase are
// ignored. A non-nil error means the negotiator is now Failed.
func (n *Negotiator) Handle(msg Message) error {
	phase := n.Phase()
	if phase.Terminal() {
		return n.Err()
	}

	switch msg.Type {
	case TypeKeepalive:
		if phase == PhaseIdle {
			break
		}
		return n.send(EncodeKeepalive())

	case TypeError:
		if msg.Error == StateUnauthorized {
			return n.fail(helpers.NewAuthRejectedError(msg.Error + ": " + msg.ErrorMessage))
		}
		return n.fail(helpers.NewTransportError(fmt.Sprintf("server error %s: %s", msg.Error, msg.ErrorMessage), nil))

	case TypeSetup:
		if phase != PhaseAwaitingAuth || n.authSent {
			break
		}
		if err := n.send(EncodeAuth(n.cfg.Token)); err != nil {
			return err
		}
		n.authSent = true
		return nil

	case TypeAuthState:
		if phase != PhaseAwaitingAuth {
			break
		}
		return n.handleAuthState(msg)

	case TypeChannelOpened:
		if phase != PhaseChannelOpening || msg.Channel != n.cfg.Channel {
			break
		}
		n.advance(PhaseChannelOpen)
		if err := n.send(EncodeFeedSetup(n.cfg.Channel, n.requestedSchema)); err != nil {
			return err
		}
		n.advance(PhaseFeedConfiguring)
		return nil

	case TypeChannelClosed:
		if msg.Channel != n.cfg.Channel || phase < PhaseChannelOpening {
			break
		}
		return n.fail(helpers.NewTransportError(fmt.Sprintf("channel %d closed by server", msg.Channel), nil))

	case TypeFeedConfig:
		if phase != PhaseFeedConfiguring || msg.Channel != n.cfg.Channel {
			break
		}
		n.adoptSchema(msg)
		n.advance(PhaseReady)
		return nil
	}

	n.log.Debug("ignoring %s on channel %d in phase %s", msg.Type, msg.Channel, phase)
	return nil
}

// -----------------------------------------------------------------------------

// handleAuthState: the feed announces UNAUTHORIZED once on connect, possibly after we
// already sent AUTH. That first announcement is skipped; any later state other than
// AUTHORIZED rejects the session.
func (n *Negotiator) handleAuthState(msg Message) error {
	n.authStatesSeen++
	n.lastAuthState = msg.State

	if msg.State == StateAuthorized && n.authSent {
		n.advance(PhaseAuthorized)
		if err := n.send(EncodeChannelRequest(n.cfg.Channel)); err != nil {
			return err
		}
		n.advance(PhaseChannelOpening)
		return nil
	}

	if msg.State == StateUnauthorized && (!n.authSent || n.authStatesSeen == 1) {
		n.log.Debug("initial auth state %s, waiting for the reply to AUTH", msg.State)
		return nil
	}

	if !n.authSent {
		n.log.Debug("auth state %s before AUTH was sent", msg.State)
		return nil
	}

	return n.fail(helpers.NewAuthRejectedError(msg.State))
}

// adoptSchema takes the field list echoed by FEED_CONFIG as the effective schema.
func (n *Negotiator) adoptSchema(msg Message) {
	fields, ok := msg.EventFields[n.cfg.EventType]
	if !ok || len(fields) == 0 {
		return
	}
	n.mu.Lock()
	n.schema = NewSchema(n.cfg.EventType, fields)
	n.mu.Unlock()
	n.log.Debug("feed acknowledged %d fields for %s", len(fields), n.cfg.EventType)
}

// -----------------------------------------------------------------------------

// Negotiate runs the handshake until Ready, ctx expiry or failure.
func (n *Negotiator) Negotiate(ctx context.Context) error {
	if err := n.Start(); err != nil {
		return err
	}

	inbound := n.transport.Receive()
	for {
		select {
		case <-ctx.Done():
			// The only answer to AUTH was UNAUTHORIZED: a rejection sent without the usual
			// greeting in front of it.
			if n.Phase() == PhaseAwaitingAuth && n.authSent && n.lastAuthState == StateUnauthorized {
				n.log.Warning("No AUTHORIZED state before timeout, treating %s as a rejection", n.lastAuthState)
				return n.fail(helpers.NewAuthRejectedError(n.lastAuthState))
			}
			return n.fail(helpers.NewTransportError("negotiation timed out in phase "+n.Phase().String(), ctx.Err()))

		case frame, ok := <-inbound:
			if !ok {
				cause := n.transport.Err()
				return n.fail(helpers.NewTransportError("connection lost during negotiation", cause))
			}

			msg, err := DecodeMessage(frame)
			if err != nil {
				n.log.Debug("skipping frame: %v", err)
				continue
			}
			if err := n.Handle(msg); err != nil {
				return err
			}
			if n.Phase() == PhaseReady {
				return nil
			}
		}
	}
}
