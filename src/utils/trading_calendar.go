package utils

import (
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers "is the venue open" using scmhub/calendar, or a plain
// Mon-Fri 09:30-16:00 New York schedule when no calendar could be loaded.
type TradingCalendar struct {
	MIC      string
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// Symbol suffix -> MIC code (ISO 10383). Bare symbols trade in New York.
var suffixMIC = map[string]string{
	".L":  "xlon",
	".PA": "xpar",
	".DE": "xfra",
	".AS": "xams",
	".BR": "xbru",
	".MI": "xmil",
	".MC": "xmad",
	".ST": "xsto",
	".CO": "xcse",
	".HE": "xhel",
	".VI": "xwbo",
	".SW": "xswx",
	".TO": "xtse",
	".V":  "xtsx",
	".T":  "xtks",
	".HK": "xhkg",
	".AX": "xasx",
	".KS": "xkrx",
	".TW": "xtai",
	".SS": "xshg",
	".SZ": "xshe",
}

const defaultMIC = "xnys"

// -----------------------------------------------------------------------------

// MICForSymbol maps a feed symbol to its venue. Candle parameters are ignored.
func MICForSymbol(symbol string) string {
	if i := strings.IndexByte(symbol, '{'); i >= 0 {
		symbol = symbol[:i]
	}
	if i := strings.LastIndexByte(symbol, '.'); i > 0 {
		if mic, ok := suffixMIC[strings.ToUpper(symbol[i:])]; ok {
			return mic
		}
	}
	return defaultMIC
}

// -----------------------------------------------------------------------------

func GetCalendar(symbol string) *TradingCalendar {
	mic := MICForSymbol(symbol)

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		mic = defaultMIC
		cal = calendar.GetCalendar(mic)
	}
	if cal == nil {
		return FallbackCalendar()
	}

	return &TradingCalendar{MIC: mic, Calendar: cal, Timezone: cal.Loc}
}

// FallbackCalendar is the Mon-Fri 09:30-16:00 New York schedule.
func FallbackCalendar() *TradingCalendar {
	nyLoc, err := time.LoadLocation("America/New_York")
	if err != nil {
		nyLoc = time.UTC
	}
	return &TradingCalendar{MIC: defaultMIC, Fallback: true, Timezone: nyLoc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}
		hour, minute := t.Hour(), t.Minute()
		return (hour > 9 || (hour == 9 && minute >= 30)) && hour < 16
	}

	return tc.Calendar.IsOpen(t)
}

// -----------------------------------------------------------------------------

// sessionProbe is the step used to look for an open minute inside short windows.
const sessionProbe = 5 * time.Minute

// HasSession reports whether [from, to] overlaps a trading session. Windows of a day
// or more only need a trading day; shorter ones are sampled every few minutes.
func (tc *TradingCalendar) HasSession(from, to time.Time) bool {
	if !from.Before(to) {
		return false
	}

	if to.Sub(from) >= 24*time.Hour {
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			if tc.IsTradingDay(day) {
				return true
			}
		}
		return tc.IsTradingDay(to)
	}

	for t := from; !t.After(to); t = t.Add(sessionProbe) {
		if tc.IsOpenOnMinute(t) {
			return true
		}
	}
	return tc.IsOpenOnMinute(to)
}
