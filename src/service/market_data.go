package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"market-streamer/src/analysis"
	"market-streamer/src/dxlink"
	"market-streamer/src/helpers"
	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"
	"market-streamer/src/utils"
)

// -----------------------------------------------------------------------------
// MarketDataService
// -----------------------------------------------------------------------------

// MarketDataService ties the token provider, the streaming client and the optional
// sinks (storage, websocket hub, health) together. Each call gets its own client so
// concurrent requests never share a session.
type MarketDataService struct {
	Config    *models.MConfig
	Tokens    interfaces.ITokenProvider
	Dialer    dxlink.Dialer
	Logger    *logger.Logger
	Scheduler *utils.MarketScheduler

	// Optional, nil disables the sink.
	DB       interfaces.IDatabase
	Exchange interfaces.IDataExchanger
	Health   interfaces.IHealthReporter
	Broker   interfaces.IBrokerAPI

	mu         sync.RWMutex
	lastReport *models.MSessionReport
}

// -----------------------------------------------------------------------------

func NewMarketDataService(cfg *models.MConfig, tokens interfaces.ITokenProvider, dialer dxlink.Dialer, log *logger.Logger) *MarketDataService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &MarketDataService{
		Config:    cfg,
		Tokens:    tokens,
		Dialer:    dialer,
		Logger:    log,
		Scheduler: utils.NewMarketScheduler(nil, log),
	}
}

// -----------------------------------------------------------------------------

func (s *MarketDataService) newClient(ctx context.Context) (*dxlink.StreamingClient, error) {
	c := dxlink.NewStreamingClient(s.Config.Streaming, s.Dialer, s.Logger)
	if err := c.Authorize(ctx, s.Tokens); err != nil {
		return nil, err
	}
	return c, nil
}

// withAuthRetry runs call once more with a fresh token when the feed rejected the
// cached one. Nothing has been collected at that point, so the retry loses no data.
func withAuthRetry[T any](ctx context.Context, s *MarketDataService, c *dxlink.StreamingClient, call func() ([]T, error)) ([]T, error) {
	records, err := call()

	var rejected *helpers.AuthRejectedError
	if !errors.As(err, &rejected) {
		return records, err
	}

	s.Logger.Warning("Streaming token rejected, requesting a new one")
	if invErr := s.Tokens.Invalidate(); invErr != nil {
		s.Logger.Warning("Failed to clear token cache: %v", invErr)
	}
	if authErr := c.Authorize(ctx, s.Tokens); authErr != nil {
		return records, authErr
	}
	return call()
}

// -----------------------------------------------------------------------------

// HistoricalBars fetches candles from the feed and persists them when storage is on.
func (s *MarketDataService) HistoricalBars(ctx context.Context, symbol string, lookback time.Duration, interval models.Timeframe) ([]models.MBar, models.MSessionReport, error) {
	to := time.Now()
	if lookback > 0 && !s.Scheduler.WindowHasSession(symbol, to.Add(-lookback), to) {
		s.Logger.Warning("No trading session for %s in the last %s, the feed may return no candles", symbol, lookback)
	}

	c, err := s.newClient(ctx)
	if err != nil {
		return []models.MBar{}, models.MSessionReport{}, err
	}

	bars, err := withAuthRetry(ctx, s, c, func() ([]models.MBar, error) {
		return c.FetchHistoricalBars(ctx, symbol, lookback, interval)
	})
	report := s.record(c.LastReport())

	if s.DB != nil && len(bars) > 0 {
		if dbErr := s.DB.SaveBars(bars); dbErr != nil {
			s.Logger.Error("Failed to persist %d bars for %s: %v", len(bars), symbol, dbErr)
		}
	}
	return bars, report, err
}

// -----------------------------------------------------------------------------

// LiveQuotes streams quotes for duration, pushing each one to the hub as it arrives.
func (s *MarketDataService) LiveQuotes(ctx context.Context, symbol string, duration time.Duration) ([]models.MQuote, models.MSessionReport, error) {
	if !s.Scheduler.IsOpen(symbol, time.Now()) {
		s.Logger.Info("Market for %s is closed, quotes may be sparse", symbol)
	}

	c, err := s.newClient(ctx)
	if err != nil {
		return []models.MQuote{}, models.MSessionReport{}, err
	}
	if s.Exchange != nil {
		c.AddQuoteHandler(func(q models.MQuote) { s.Exchange.Broadcast(q) })
	}

	quotes, err := withAuthRetry(ctx, s, c, func() ([]models.MQuote, error) {
		return c.StreamLiveQuotes(ctx, symbol, duration)
	})
	report := s.record(c.LastReport())

	if s.DB != nil && len(quotes) > 0 {
		if dbErr := s.DB.SaveQuotes(quotes); dbErr != nil {
			s.Logger.Error("Failed to persist %d quotes for %s: %v", len(quotes), symbol, dbErr)
		}
	}
	return quotes, report, err
}

// -----------------------------------------------------------------------------

func (s *MarketDataService) record(report models.MSessionReport) models.MSessionReport {
	s.mu.Lock()
	s.lastReport = &report
	s.mu.Unlock()

	if s.Health != nil {
		s.Health.ReportSession(report)
	}
	return report
}

// LastReport is the report of the most recent session, if any ran.
func (s *MarketDataService) LastReport() (models.MSessionReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastReport == nil {
		return models.MSessionReport{}, false
	}
	return *s.lastReport, true
}

// -----------------------------------------------------------------------------

func (s *MarketDataService) StoredBars(symbol string, interval models.Timeframe, from, to time.Time) ([]models.MBar, error) {
	if s.DB == nil {
		return []models.MBar{}, helpers.NewPreconditionError("storage is disabled")
	}
	bars, err := s.DB.LoadBars(symbol, interval, from, to)
	if err != nil {
		return []models.MBar{}, helpers.NewDatabaseError("loading bars for "+symbol, err)
	}
	if len(bars) > 0 || interval == models.M1 || interval.Duration() > models.D1.Duration() {
		return bars, nil
	}

	// nothing stored at this interval, build it from minute bars if we have them
	fine, err := s.DB.LoadBars(symbol, models.M1, from, to)
	if err != nil {
		s.Logger.Warning("Loading 1m bars to resample %s into %s failed: %v", symbol, interval, err)
		return bars, nil
	}
	if len(fine) == 0 {
		return bars, nil
	}
	resampled, err := analysis.ResampleBars(fine, interval)
	if err != nil {
		s.Logger.Warning("Resampling %s 1m bars into %s failed: %v", symbol, interval, err)
		return bars, nil
	}
	s.Logger.Debug("Resampled %d 1m bars into %d %s bars for %s", len(fine), len(resampled), interval, symbol)
	return resampled, nil
}

func (s *MarketDataService) Symbols() ([]string, error) {
	if s.DB == nil {
		return []string{}, helpers.NewPreconditionError("storage is disabled")
	}
	symbols, err := s.DB.ListSymbols()
	if err != nil {
		return []string{}, helpers.NewDatabaseError("listing symbols", err)
	}
	return symbols, nil
}

func (s *MarketDataService) TokenInfo(ctx context.Context) (*models.MQuoteToken, error) {
	return s.Tokens.QuoteToken(ctx)
}

// -----------------------------------------------------------------------------

func (s *MarketDataService) MarketSnapshot(ctx context.Context, symbol string) (*models.MMarketSnapshot, error) {
	if s.Broker == nil {
		return nil, helpers.NewPreconditionError("broker API is not configured")
	}
	return s.Broker.MarketSnapshot(ctx, symbol)
}

// Earnings looks at the last two years of quarters and estimates the next report.
func (s *MarketDataService) Earnings(ctx context.Context, symbol string) (models.MEarningsOutlook, error) {
	if s.Broker == nil {
		return models.MEarningsOutlook{}, helpers.NewPreconditionError("broker API is not configured")
	}

	today := time.Now()
	entries, err := s.Broker.EarningsReports(ctx, symbol, today.AddDate(-analysis.EarningsLookbackYears, 0, 0))
	if err != nil {
		return models.MEarningsOutlook{}, err
	}
	if len(entries) == 0 {
		s.Logger.Warning("No earnings reports found for %s", symbol)
	}

	out := analysis.EstimateNextEarnings(symbol, entries, today)
	s.Logger.Info("Earnings %s: last reported=%s, estimated=%s, days=%d", symbol, out.LastReported, out.EstimatedDate, out.DaysUntilEarnings)
	return out, nil
}

// -----------------------------------------------------------------------------

// RunRetention purges old rows once a day until ctx ends.
func (s *MarketDataService) RunRetention(ctx context.Context, every time.Duration) {
	if s.DB == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if err := s.DB.CleanupOldData(); err != nil {
			s.Logger.Error("Retention cleanup failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
