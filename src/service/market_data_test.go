package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"market-streamer/src/dxlink"
	"market-streamer/src/dxlink/dxlinktest"
	"market-streamer/src/helpers"
	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"
	"market-streamer/src/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeTokens hands out tokens[i], moving to the next one on Invalidate.
type fakeTokens struct {
	url    string
	tokens []string

	mu          sync.Mutex
	i           int
	invalidated int
}

func (f *fakeTokens) QuoteToken(ctx context.Context) (*models.MQuoteToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.i >= len(f.tokens) {
		return nil, errors.New("no more tokens")
	}
	return &models.MQuoteToken{Token: f.tokens[f.i], URL: f.url, Timestamp: time.Now()}, nil
}

func (f *fakeTokens) Invalidate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.i++
	f.invalidated++
	return nil
}

type fakeHealth struct {
	mu      sync.Mutex
	reports []models.MSessionReport
}

func (f *fakeHealth) ReportSession(r models.MSessionReport) {
	f.mu.Lock()
	f.reports = append(f.reports, r)
	f.mu.Unlock()
}

type fakeExchange struct {
	mu     sync.Mutex
	quotes []models.MQuote
}

func (f *fakeExchange) Broadcast(payload interface{}) {
	if q, ok := payload.(models.MQuote); ok {
		f.mu.Lock()
		f.quotes = append(f.quotes, q)
		f.mu.Unlock()
	}
}
func (f *fakeExchange) Start() error { return nil }
func (f *fakeExchange) Stop() error  { return nil }

func (f *fakeExchange) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.quotes)
}

// -----------------------------------------------------------------------------

func testConfig(t *testing.T) *models.MConfig {
	t.Helper()
	return &models.MConfig{
		Streaming: models.MStreamingConfig{
			ProtocolVersion:    "0.1-DXF-JS/0.3.0",
			KeepaliveTimeout:   60,
			KeepaliveInterval:  time.Second,
			HandshakeTimeout:   time.Second,
			NegotiationTimeout: 2 * time.Second,
			HistoricalGrace:    300 * time.Millisecond,
			ShutdownGrace:      time.Second,
			WriteTimeout:       time.Second,
			DataChannel:        1,
		},
		Storage: models.MStorageConfig{
			Enabled:       true,
			DBType:        "sqlite",
			DBPath:        filepath.Join(t.TempDir(), "svc.db"),
			RetentionDays: 30,
		},
	}
}

func newTestService(t *testing.T, feed *dxlinktest.Server, tokens ...string) (*MarketDataService, *fakeTokens) {
	t.Helper()
	cfg := testConfig(t)
	provider := &fakeTokens{url: feed.WebSocketURL(), tokens: tokens}
	dialer := &dxlink.WebSocketDialer{HandshakeTimeout: time.Second, WriteTimeout: time.Second}
	return NewMarketDataService(cfg, provider, dialer, logger.NewNopLogger()), provider
}

// -----------------------------------------------------------------------------

func TestHistoricalBarsArePersistedAndReported(t *testing.T) {
	feed := dxlinktest.NewServer(dxlinktest.Config{Token: "good", EchoFields: true})
	defer feed.Close()

	svc, _ := newTestService(t, feed, "good")
	db, err := storage.NewDatabase(svc.Config, logger.NewNopLogger())
	require.NoError(t, err)
	defer db.Close()
	svc.DB = db
	health := &fakeHealth{}
	svc.Health = health

	bars, report, err := svc.HistoricalBars(context.Background(), "AAPL", 2*time.Hour, models.M15)
	require.NoError(t, err)
	require.NotEmpty(t, bars)
	assert.Equal(t, "AAPL", report.Symbol)
	assert.Equal(t, "Candle", report.EventType)
	assert.Equal(t, len(bars), report.Records)

	stored, err := svc.StoredBars("AAPL", models.M15, time.Now().Add(-3*time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, stored, len(bars))

	symbols, err := svc.Symbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, symbols)

	require.Len(t, health.reports, 1)
	assert.Empty(t, health.reports[0].Error)

	last, ok := svc.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.SessionID, last.SessionID)
}

func TestRejectedTokenIsReplacedOnce(t *testing.T) {
	feed := dxlinktest.NewServer(dxlinktest.Config{Token: "fresh"})
	defer feed.Close()

	svc, provider := newTestService(t, feed, "stale", "fresh")

	bars, _, err := svc.HistoricalBars(context.Background(), "MSFT", time.Hour, models.M5)
	require.NoError(t, err)
	assert.NotEmpty(t, bars)
	assert.Equal(t, 1, provider.invalidated)
}

func TestRejectedTokenTwiceFails(t *testing.T) {
	feed := dxlinktest.NewServer(dxlinktest.Config{Token: "fresh"})
	defer feed.Close()

	health := &fakeHealth{}
	svc, provider := newTestService(t, feed, "stale", "also-stale")
	svc.Health = health

	_, report, err := svc.HistoricalBars(context.Background(), "MSFT", time.Hour, models.M5)
	var rejected *helpers.AuthRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 1, provider.invalidated)
	assert.NotEmpty(t, report.Error)
	require.Len(t, health.reports, 1)
	assert.NotEmpty(t, health.reports[0].Error)
}

func TestLiveQuotesAreBroadcast(t *testing.T) {
	feed := dxlinktest.NewServer(dxlinktest.Config{QuoteInterval: 50 * time.Millisecond})
	defer feed.Close()

	svc, _ := newTestService(t, feed, "any")
	exchange := &fakeExchange{}
	svc.Exchange = exchange

	quotes, report, err := svc.LiveQuotes(context.Background(), "SPY", 400*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, quotes)
	assert.Equal(t, len(quotes), exchange.count())
	assert.Equal(t, "Quote", report.EventType)
}

func TestStorageDisabled(t *testing.T) {
	feed := dxlinktest.NewServer(dxlinktest.Config{})
	defer feed.Close()

	svc, _ := newTestService(t, feed, "any")

	_, err := svc.StoredBars("AAPL", models.M1, time.Now().Add(-time.Hour), time.Now())
	var pre *helpers.PreconditionError
	assert.ErrorAs(t, err, &pre)

	_, err = svc.Symbols()
	assert.ErrorAs(t, err, &pre)

	_, ok := svc.LastReport()
	assert.False(t, ok)
}

func TestTokenProviderFailureDoesNotDial(t *testing.T) {
	feed := dxlinktest.NewServer(dxlinktest.Config{})
	defer feed.Close()

	svc, _ := newTestService(t, feed) // no tokens at all

	bars, _, err := svc.HistoricalBars(context.Background(), "AAPL", time.Hour, models.M5)
	require.Error(t, err)
	assert.Empty(t, bars)
	assert.Empty(t, feed.Received())
}

func TestStoredBarsResampleMinuteBars(t *testing.T) {
	feed := dxlinktest.NewServer(dxlinktest.Config{})
	defer feed.Close()

	svc, _ := newTestService(t, feed, "any")
	db, err := storage.NewDatabase(svc.Config, logger.NewNopLogger())
	require.NoError(t, err)
	defer db.Close()
	svc.DB = db

	base := time.Now().Add(-time.Hour).Truncate(5 * time.Minute)
	var minutes []models.MBar
	for i := 0; i < 10; i++ {
		price := float64(100 + i)
		minutes = append(minutes, models.MBar{
			Symbol:    "AAPL",
			Interval:  "1m",
			Timestamp: base.Add(time.Duration(i) * time.Minute).UnixMilli(),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1,
		})
	}
	require.NoError(t, db.SaveBars(minutes))

	bars, err := svc.StoredBars("AAPL", models.M5, base.Add(-time.Minute), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "5m", bars[0].Interval)
	assert.Equal(t, 5.0, bars[0].Volume)
	assert.Equal(t, 104.0, bars[0].Close)
}

// minuteLoadFailure serves stored bars normally but fails every 1m read.
type minuteLoadFailure struct {
	interfaces.IDatabase
}

func (f minuteLoadFailure) LoadBars(symbol string, interval models.Timeframe, from, to time.Time) ([]models.MBar, error) {
	if interval == models.M1 {
		return nil, errors.New("disk I/O error")
	}
	return f.IDatabase.LoadBars(symbol, interval, from, to)
}

func TestStoredBarsLogsFailedMinuteLoad(t *testing.T) {
	feed := dxlinktest.NewServer(dxlinktest.Config{})
	defer feed.Close()

	svc, _ := newTestService(t, feed, "any")
	db, err := storage.NewDatabase(svc.Config, logger.NewNopLogger())
	require.NoError(t, err)
	defer db.Close()
	svc.DB = minuteLoadFailure{IDatabase: db}

	core, logs := observer.New(zapcore.WarnLevel)
	svc.Logger = logger.FromZap("service", zap.New(core))

	now := time.Now()
	bars, err := svc.StoredBars("AAPL", models.M5, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Empty(t, bars)

	entries := logs.FilterMessageSnippet("disk I/O error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

type fakeBroker struct {
	entries []models.MEarningsEntry
	since   time.Time
}

func (f *fakeBroker) MarketSnapshot(ctx context.Context, symbol string) (*models.MMarketSnapshot, error) {
	return &models.MMarketSnapshot{Symbol: symbol, Last: 101.5}, nil
}

func (f *fakeBroker) EarningsReports(ctx context.Context, symbol string, since time.Time) ([]models.MEarningsEntry, error) {
	f.since = since
	return f.entries, nil
}

func TestBrokerLookups(t *testing.T) {
	feed := dxlinktest.NewServer(dxlinktest.Config{})
	defer feed.Close()

	svc, _ := newTestService(t, feed, "any")

	_, err := svc.MarketSnapshot(context.Background(), "AAPL")
	var pre *helpers.PreconditionError
	assert.ErrorAs(t, err, &pre)
	_, err = svc.Earnings(context.Background(), "AAPL")
	assert.ErrorAs(t, err, &pre)

	broker := &fakeBroker{}
	svc.Broker = broker

	snap, err := svc.MarketSnapshot(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 101.5, snap.Last)

	out, err := svc.Earnings(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, -1, out.DaysUntilEarnings)
	assert.WithinDuration(t, time.Now().AddDate(-2, 0, 0), broker.since, time.Minute)
}
