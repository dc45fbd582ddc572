package dxlink

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"market-streamer/src/helpers"
	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"

	"github.com/google/uuid"
)

// StreamingClient runs one negotiated feed session per call. It owns the connection
// for the duration of the call and always releases it before returning.
type StreamingClient struct {
	cfg    models.MStreamingConfig
	dialer Dialer
	log    *logger.Logger
	now    func() time.Time

	mu            sync.RWMutex
	token         *models.MQuoteToken
	quoteHandlers []func(models.MQuote)
	lastReport    models.MSessionReport
}

func NewStreamingClient(cfg models.MStreamingConfig, dialer Dialer, log *logger.Logger) *StreamingClient {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &StreamingClient{
		cfg:    cfg,
		dialer: dialer,
		log:    log,
		now:    time.Now,
	}
}

// -----------------------------------------------------------------------------

// SetToken installs a streaming token obtained elsewhere.
func (c *StreamingClient) SetToken(tok *models.MQuoteToken) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

// Authorize fetches a token from the provider and installs it.
func (c *StreamingClient) Authorize(ctx context.Context, provider interfaces.ITokenProvider) error {
	tok, err := provider.QuoteToken(ctx)
	if err != nil {
		return err
	}
	c.SetToken(tok)
	return nil
}

// AddQuoteHandler registers a callback receiving each live quote as it is decoded.
func (c *StreamingClient) AddQuoteHandler(fn func(models.MQuote)) {
	c.mu.Lock()
	c.quoteHandlers = append(c.quoteHandlers, fn)
	c.mu.Unlock()
}

// LastReport describes the most recent call.
func (c *StreamingClient) LastReport() models.MSessionReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastReport
}

func (c *StreamingClient) currentToken() *models.MQuoteToken {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// -----------------------------------------------------------------------------

// FetchHistoricalBars retrieves candles for [now - lookback, now], sorted by time.
// An empty result with a nil error means the feed had no data for the window. On a
// session failure the bars decoded so far are returned with the error.
func (c *StreamingClient) FetchHistoricalBars(ctx context.Context, symbol string, lookback time.Duration, interval models.Timeframe) ([]models.MBar, error) {
	tok := c.currentToken()
	if tok == nil || tok.Token == "" {
		return []models.MBar{}, helpers.NewPreconditionError("no streaming token: authorize before fetching bars")
	}
	if lookback <= 0 {
		return []models.MBar{}, helpers.NewPreconditionError("lookback must be positive")
	}

	to := c.now()
	spec, err := CandleSymbol(symbol, interval, to.Add(-lookback), to)
	if err != nil {
		return []models.MBar{}, helpers.NewPreconditionError(err.Error())
	}

	decode := func(schema Schema, row []interface{}) (*models.MBar, error) {
		bar, err := DecodeBar(schema, row)
		if bar != nil {
			bar.Interval = interval.String()
		}
		return bar, err
	}

	policy := Policy{Window: c.cfg.HistoricalGrace, MaxRecords: c.cfg.MaxRecords}
	bars, err := runSession(ctx, c, tok, EventCandle, CandleFields, spec, decode, policy, nil)

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
	return bars, err
}

// -----------------------------------------------------------------------------

// StreamLiveQuotes collects quotes for duration, in arrival order.
func (c *StreamingClient) StreamLiveQuotes(ctx context.Context, symbol string, duration time.Duration) ([]models.MQuote, error) {
	tok := c.currentToken()
	if tok == nil || tok.Token == "" {
		return []models.MQuote{}, helpers.NewPreconditionError("no streaming token: authorize before streaming quotes")
	}
	if duration <= 0 {
		return []models.MQuote{}, helpers.NewPreconditionError("duration must be positive")
	}
	if symbol == "" {
		return []models.MQuote{}, helpers.NewPreconditionError("empty symbol")
	}

	c.mu.RLock()
	handlers := append([]func(models.MQuote){}, c.quoteHandlers...)
	c.mu.RUnlock()

	var observer func(models.MQuote)
	if len(handlers) > 0 {
		observer = func(q models.MQuote) {
			for _, h := range handlers {
				h(q)
			}
		}
	}

	decode := func(schema Schema, row []interface{}) (*models.MQuote, error) {
		return DecodeQuoteAt(schema, row, c.now())
	}

	policy := Policy{Duration: duration, MaxRecords: c.cfg.MaxRecords}
	return runSession(ctx, c, tok, EventQuote, QuoteFields, LiveSymbol(symbol), decode, policy, observer)
}

// -----------------------------------------------------------------------------

func runSession[T any](
	ctx context.Context,
	c *StreamingClient,
	tok *models.MQuoteToken,
	eventType string,
	fields []string,
	spec SymbolSpec,
	decode Decoder[T],
	policy Policy,
	observer func(T),
) ([]T, error) {
	sessionID := uuid.NewString()
	log := c.log.With("session", sessionID)
	started := time.Now()

	report := models.MSessionReport{
		SessionID: sessionID,
		Symbol:    BaseSymbol(spec.Symbol),
		EventType: eventType,
	}

	var (
		negotiator *Negotiator
		session    *SubscriptionSession[T]
		completion = CompletionFailed
		err        error
	)

	defer func() {
		report.Elapsed = time.Since(started)
		report.Completion = string(completion)
		if negotiator != nil {
			report.FinalPhase = negotiator.Phase().String()
		} else {
			report.FinalPhase = PhaseFailed.String()
		}
		if session != nil {
			report.Records = len(session.Records())
			report.Skipped = session.Skipped()
		}
		if err != nil {
			report.Error = err.Error()
		}
		c.mu.Lock()
		c.lastReport = report
		c.mu.Unlock()
	}()

	// Outer bound: negotiation + policy + grace. A silent feed cannot hold the caller longer.
	ctx, cancel := context.WithTimeout(ctx, c.cfg.NegotiationTimeout+policy.Bound()+c.cfg.ShutdownGrace)
	defer cancel()

	log.Info("Connecting to %s for %s %s", tok.URL, eventType, spec.Symbol)
	transport, dialErr := c.dialer.Dial(ctx, tok.URL)
	if dialErr != nil {
		err = dialErr
		return []T{}, err
	}
	defer transport.Close()

	negotiator = NewNegotiator(transport, NegotiatorConfig{
		Version:          c.cfg.ProtocolVersion,
		KeepaliveTimeout: c.cfg.KeepaliveTimeout,
		Channel:          c.cfg.DataChannel,
		Token:            tok.Token,
		EventType:        eventType,
		Fields:           fields,
	}, log)

	negCtx, negCancel := context.WithTimeout(ctx, c.cfg.NegotiationTimeout)
	err = negotiator.Negotiate(negCtx)
	negCancel()
	if err != nil {
		log.Error("Negotiation failed: %v", err)
		return []T{}, err
	}

	session = NewSubscriptionSession(negotiator, decode, SessionOptions{
		KeepaliveInterval: c.cfg.KeepaliveInterval,
		Logger:            log,
	})
	session.MarkReady(time.Now())
	if observer != nil {
		session.OnRecord(observer)
	}

	if err = session.Subscribe(spec); err != nil {
		return []T{}, err
	}

	completion, err = session.Run(ctx, policy)
	records := session.Records()
	if records == nil {
		records = []T{}
	}

	if err != nil {
		log.Warning("Session ended (%s) with %d records: %v", completion, len(records), err)
		return records, fmt.Errorf("%s session for %s: %w", eventType, spec.Symbol, err)
	}

	log.Info("Session complete (%s): %d records, %d skipped", completion, len(records), session.Skipped())
	return records, nil
}
