package dxlink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-streamer/src/helpers"
	"market-streamer/src/logger"
)

// Completion says why a session stopped.
type Completion string

const (
	CompletionWindow    Completion = "window_elapsed"
	CompletionDuration  Completion = "duration_elapsed"
	CompletionThreshold Completion = "record_threshold"
	CompletionCancelled Completion = "cancelled"
	CompletionFailed    Completion = "failed"
)

// Policy selects when a session closes itself. Window and Duration are mutually
// exclusive; MaxRecords may be combined with either.
type Policy struct {
	Window     time.Duration // measured from negotiation completion
	Duration   time.Duration // measured from subscription
	MaxRecords int
}

func (p Policy) validate() error {
	switch {
	case p.Window > 0 && p.Duration > 0:
		return fmt.Errorf("window and duration policies are mutually exclusive")
	case p.Window <= 0 && p.Duration <= 0:
		return fmt.Errorf("a window or a duration is required")
	case p.MaxRecords < 0:
		return fmt.Errorf("max records cannot be negative")
	}
	return nil
}

// Bound is the longest the policy can keep a session open.
func (p Policy) Bound() time.Duration {
	if p.Window > 0 {
		return p.Window
	}
	return p.Duration
}

// -----------------------------------------------------------------------------

// Decoder turns one compact row into a record. (nil, nil) filters the row out.
type Decoder[T any] func(schema Schema, row []interface{}) (*T, error)

type SessionOptions struct {
	KeepaliveInterval time.Duration
	Logger            *logger.Logger
}

// SubscriptionSession owns the data channel once the negotiator is Ready and
// accumulates decoded records of one event type.
type SubscriptionSession[T any] struct {
	negotiator *Negotiator
	transport  Transport
	decode     Decoder[T]
	onRecord   func(T)
	keepalive  time.Duration
	log        *logger.Logger
	now        func() time.Time

	readyAt      time.Time
	subscribedAt time.Time
	subscribed   bool

	records []T
	skipped int
}

func NewSubscriptionSession[T any](n *Negotiator, decode Decoder[T], opts SessionOptions) *SubscriptionSession[T] {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &SubscriptionSession[T]{
		negotiator: n,
		transport:  n.transport,
		decode:     decode,
		keepalive:  opts.KeepaliveInterval,
		log:        log,
		now:        time.Now,
		readyAt:    time.Now(),
	}
}

// OnRecord registers an observer called for each accepted record, in order.
func (s *SubscriptionSession[T]) OnRecord(fn func(T)) {
	s.onRecord = fn
}

// MarkReady records when negotiation completed; the window policy counts from here.
func (s *SubscriptionSession[T]) MarkReady(at time.Time) {
	s.readyAt = at
}

func (s *SubscriptionSession[T]) Records() []T { return s.records }

// Skipped counts rows dropped as malformed.
func (s *SubscriptionSession[T]) Skipped() int { return s.skipped }

// -----------------------------------------------------------------------------

// Subscribe sends FEED_SUBSCRIPTION. The negotiator must be Ready.
func (s *SubscriptionSession[T]) Subscribe(spec SymbolSpec) error {
	if phase := s.negotiator.Phase(); phase != PhaseReady {
		return helpers.NewPreconditionError("subscribe requires phase Ready, current phase is " + phase.String())
	}
	if spec.Symbol == "" {
		return helpers.NewPreconditionError("empty symbol")
	}

	if err := s.negotiator.send(EncodeSubscribe(s.negotiator.Channel(), s.negotiator.EventType(), spec)); err != nil {
		return err
	}
	s.subscribedAt = s.now()
	s.subscribed = true
	s.log.Info("Subscribed to %s %s", s.negotiator.EventType(), spec.Symbol)
	return nil
}

// Unsubscribe sends a FEED_SUBSCRIPTION remove entry for spec. Closing the session
// does not need it; it stops one symbol while the channel stays open.
func (s *SubscriptionSession[T]) Unsubscribe(spec SymbolSpec) error {
	if phase := s.negotiator.Phase(); phase != PhaseReady {
		return helpers.NewPreconditionError("unsubscribe requires phase Ready, current phase is " + phase.String())
	}
	if err := s.negotiator.send(EncodeUnsubscribe(s.negotiator.Channel(), s.negotiator.EventType(), spec)); err != nil {
		return err
	}
	s.log.Info("Unsubscribed from %s %s", s.negotiator.EventType(), spec.Symbol)
	return nil
}

// -----------------------------------------------------------------------------

// Run consumes FEED_DATA until the policy fires, ctx ends or the connection fails.
// Records gathered so far stay available through Records in every case. The
// negotiator ends in Closed on a policy completion and Failed otherwise.
func (s *SubscriptionSession[T]) Run(ctx context.Context, policy Policy) (Completion, error) {
	if err := policy.validate(); err != nil {
		return CompletionFailed, helpers.NewPreconditionError(err.Error())
	}
	if !s.subscribed {
		return CompletionFailed, helpers.NewPreconditionError("run requires a subscription")
	}

	completion := CompletionDuration
	deadline := s.subscribedAt.Add(policy.Duration)
	if policy.Window > 0 {
		completion = CompletionWindow
		deadline = s.readyAt.Add(policy.Window)
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	var keepalive <-chan time.Time
	if s.keepalive > 0 {
		ticker := time.NewTicker(s.keepalive)
		defer ticker.Stop()
		keepalive = ticker.C
	}

	inbound := s.transport.Receive()
	for {
		select {
		case <-timer.C:
			s.negotiator.Close()
			return completion, nil

		case <-ctx.Done():
			err := helpers.NewTransportError("session interrupted", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				s.negotiator.Close()
				return CompletionCancelled, err
			}
			return CompletionFailed, s.negotiator.fail(err)

		case <-keepalive:
			if err := s.negotiator.send(EncodeKeepalive()); err != nil {
				return CompletionFailed, err
			}

		case frame, ok := <-inbound:
			if !ok {
				return CompletionFailed, s.negotiator.fail(helpers.NewTransportError("connection lost", s.transport.Err()))
			}
			done, err := s.handleFrame(frame, policy)
			if err != nil {
				return CompletionFailed, err
			}
			if done {
				s.negotiator.Close()
				return CompletionThreshold, nil
			}
		}
	}
}

// -----------------------------------------------------------------------------

func (s *SubscriptionSession[T]) handleFrame(frame []byte, policy Policy) (bool, error) {
	msg, err := DecodeMessage(frame)
	if err != nil {
		s.log.Debug("skipping frame: %v", err)
		return false, nil
	}

	channel := s.negotiator.Channel()
	switch msg.Type {
	case TypeFeedData:
		if msg.Channel != channel {
			return false, nil
		}
		return s.handleFeedData(msg, policy), nil

	case TypeKeepalive:
		return false, s.negotiator.send(EncodeKeepalive())

	case TypeChannelClosed:
		if msg.Channel == channel {
			return false, s.negotiator.fail(helpers.NewTransportError(fmt.Sprintf("channel %d closed by server", channel), nil))
		}

	case TypeError:
		return false, s.negotiator.fail(helpers.NewTransportError(fmt.Sprintf("server error %s: %s", msg.Error, msg.ErrorMessage), nil))

	default:
		s.log.Debug("ignoring %s on channel %d", msg.Type, msg.Channel)
	}
	return false, nil
}

// handleFeedData decodes every row of our event type. Bad rows are skipped, never fatal.
// It reports true once the record threshold is met.
func (s *SubscriptionSession[T]) handleFeedData(msg Message, policy Policy) bool {
	schema := s.negotiator.Schema()
	eventType := schema.EventType()

	batches, err := ParseFeedData(msg.Data, map[string]int{eventType: schema.Len()})
	if err != nil {
		s.skipped++
		s.log.Warning("Dropping FEED_DATA frame: %v", err)
		return false
	}

	for _, batch := range batches {
		if batch.EventType != eventType {
			if batch.EventType != "" {
				s.log.Debug("ignoring %d %s rows", len(batch.Rows), batch.EventType)
			}
			s.skipped += batch.Malformed
			continue
		}
		s.skipped += batch.Malformed

		for _, row := range batch.Rows {
			rec, err := s.decode(schema, row)
			if err != nil {
				s.skipped++
				s.log.Warning("Skipping %s row: %v", eventType, err)
				continue
			}
			if rec == nil {
				continue
			}

			s.records = append(s.records, *rec)
			if s.onRecord != nil {
				s.onRecord(*rec)
			}
			if policy.MaxRecords > 0 && len(s.records) >= policy.MaxRecords {
				return true
			}
		}
	}
	return false
}
