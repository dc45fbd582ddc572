package utils

import (
	"sync"
	"time"

	"market-streamer/src/logger"
)

// MarketScheduler caches one TradingCalendar per venue and answers session questions
// for feed symbols.
type MarketScheduler struct {
	Calendars map[string]*TradingCalendar // by MIC
	Logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(symbols []string, l *logger.Logger) *MarketScheduler {
	if l == nil {
		l = logger.NewNopLogger()
	}
	ms := &MarketScheduler{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
	}
	ms.MapSymbolsToCalendars(symbols)
	return ms
}

// -----------------------------------------------------------------------------

// MapSymbolsToCalendars preloads the calendars for the given symbols.
func (ms *MarketScheduler) MapSymbolsToCalendars(symbols []string) {
	for _, symbol := range symbols {
		ms.CalendarFor(symbol)
	}

	ms.mu.RLock()
	count := len(ms.Calendars)
	ms.mu.RUnlock()

	if len(symbols) > 0 {
		ms.Logger.Info("MarketScheduler: Mapped %d symbols to %d unique calendars.", len(symbols), count)
	}
}

// CalendarFor returns the calendar of the symbol's venue, loading it on first use.
func (ms *MarketScheduler) CalendarFor(symbol string) *TradingCalendar {
	mic := MICForSymbol(symbol)

	ms.mu.RLock()
	cal, ok := ms.Calendars[mic]
	ms.mu.RUnlock()
	if ok {
		return cal
	}

	cal = GetCalendar(symbol)
	if cal.Fallback {
		ms.Logger.Warning("No calendar for %s (%s), using Mon-Fri 09:30-16:00 New York", symbol, mic)
	}

	ms.mu.Lock()
	ms.Calendars[mic] = cal
	ms.mu.Unlock()
	return cal
}

// -----------------------------------------------------------------------------

// WindowHasSession reports whether the symbol's venue traded at some point in [from, to].
func (ms *MarketScheduler) WindowHasSession(symbol string, from, to time.Time) bool {
	return ms.CalendarFor(symbol).HasSession(from, to)
}

// IsOpen reports whether the symbol's venue is open at t.
func (ms *MarketScheduler) IsOpen(symbol string, t time.Time) bool {
	return ms.CalendarFor(symbol).IsOpenOnMinute(t)
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if any of the loaded venues is open at t.
func (ms *MarketScheduler) AnyMarketOpen(t time.Time) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, cal := range ms.Calendars {
		if cal.IsOpenOnMinute(t) {
			return true
		}
	}
	return false
}
