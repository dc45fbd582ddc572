package dxlink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"market-streamer/src/helpers"
	"market-streamer/src/models"
)

const exchangeUnknown = "N/A"

// -----------------------------------------------------------------------------
// Outbound
// -----------------------------------------------------------------------------

func EncodeSetup(version string, keepaliveTimeout int) Message {
	return Message{
		Type:                   TypeSetup,
		Channel:                ControlChannel,
		Version:                version,
		KeepaliveTimeout:       keepaliveTimeout,
		AcceptKeepaliveTimeout: keepaliveTimeout,
	}
}

func EncodeAuth(token string) Message {
	return Message{Type: TypeAuth, Channel: ControlChannel, Token: token}
}

func EncodeChannelRequest(channel int) Message {
	return Message{
		Type:       TypeChannelRequest,
		Channel:    channel,
		Service:    ServiceFeed,
		Parameters: map[string]string{"contract": "AUTO"},
	}
}

func EncodeFeedSetup(channel int, schema Schema) Message {
	return Message{
		Type:              TypeFeedSetup,
		Channel:           channel,
		AcceptDataFormat:  FormatCompact,
		AcceptEventFields: map[string][]string{schema.EventType(): schema.Fields()},
	}
}

func EncodeSubscribe(channel int, eventType string, spec SymbolSpec) Message {
	return Message{
		Type:    TypeFeedSubscription,
		Channel: channel,
		Add:     []Subscription{{Type: eventType, Symbol: spec.Symbol, FromTime: spec.FromTime}},
	}
}

func EncodeUnsubscribe(channel int, eventType string, spec SymbolSpec) Message {
	return Message{
		Type:    TypeFeedSubscription,
		Channel: channel,
		Remove:  []Subscription{{Type: eventType, Symbol: spec.Symbol}},
	}
}

func EncodeKeepalive() Message {
	return Message{Type: TypeKeepalive, Channel: ControlChannel}
}

// -----------------------------------------------------------------------------

// DecodeMessage parses one inbound frame.
func DecodeMessage(frame []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, fmt.Errorf("invalid frame: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("frame has no type")
	}
	return msg, nil
}

// -----------------------------------------------------------------------------
// Symbols
// -----------------------------------------------------------------------------

// SymbolSpec is what goes into a subscription entry.
type SymbolSpec struct {
	Symbol   string
	FromTime int64 // ms, historical only
}

func LiveSymbol(symbol string) SymbolSpec {
	return SymbolSpec{Symbol: symbol}
}

// CandleSymbol builds SYMBOL{=INTERVAL,fromTime=T0,toTime=T1}. from must be before to.
func CandleSymbol(symbol string, interval models.Timeframe, from, to time.Time) (SymbolSpec, error) {
	if symbol == "" || strings.ContainsAny(symbol, "{}") {
		return SymbolSpec{}, fmt.Errorf("invalid symbol %q", symbol)
	}
	if _, err := models.ParseTimeframe(interval.String()); err != nil {
		return SymbolSpec{}, err
	}

	t0, t1 := from.UnixMilli(), to.UnixMilli()
	if t0 >= t1 {
		return SymbolSpec{}, fmt.Errorf("invalid window: fromTime %d must be before toTime %d", t0, t1)
	}

	return SymbolSpec{
		Symbol:   fmt.Sprintf("%s{=%s,fromTime=%d,toTime=%d}", symbol, interval, t0, t1),
		FromTime: t0,
	}, nil
}

// BaseSymbol strips a {...} parameter suffix: "AAPL{=1m}" -> "AAPL".
func BaseSymbol(symbol string) string {
	if i := strings.IndexByte(symbol, '{'); i >= 0 {
		return symbol[:i]
	}
	return symbol
}

// -----------------------------------------------------------------------------
// FEED_DATA
// -----------------------------------------------------------------------------

// EventBatch holds the rows of one event type in arrival order. Items that could not
// be a row at all (scalars, rows before any type name) are counted in Malformed.
type EventBatch struct {
	EventType string
	Rows      [][]interface{}
	Malformed int
}

// ParseFeedData splits a FEED_DATA payload into batches. Accepted layouts:
//
//	[type, row, row, ...]
//	[type, row, type, row, ...]
//	[type, [row, row, ...]]
//	[type, [v1..vn, v1..vn, ...]]   flattened, split using widths[type]
func ParseFeedData(data json.RawMessage, widths map[string]int) ([]EventBatch, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var items []interface{}
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("FEED_DATA payload is not an array: %w", err)
	}

	var batches []EventBatch
	current := -1

	for _, item := range items {
		switch v := item.(type) {
		case string:
			if current >= 0 && batches[current].EventType == v {
				continue
			}
			batches = append(batches, EventBatch{EventType: v})
			current = len(batches) - 1

		case []interface{}:
			if current < 0 {
				batches = append(batches, EventBatch{Malformed: 1})
				current = len(batches) - 1
				continue
			}
			b := &batches[current]
			rows, leftover := splitRows(v, widths[b.EventType])
			b.Rows = append(b.Rows, rows...)
			b.Malformed += leftover

		default:
			if current < 0 {
				batches = append(batches, EventBatch{})
				current = len(batches) - 1
			}
			batches[current].Malformed++
		}
	}

	return batches, nil
}

// splitRows returns the rows held by one array item, plus 1 when a flattened array
// ends with an incomplete row. That tail is dropped; the full rows before it are kept.
func splitRows(v []interface{}, width int) ([][]interface{}, int) {
	if len(v) == 0 {
		return [][]interface{}{v}, 0
	}

	// nested rows
	if _, nested := v[0].([]interface{}); nested {
		rows := make([][]interface{}, 0, len(v))
		for _, r := range v {
			if row, ok := r.([]interface{}); ok {
				rows = append(rows, row)
			} else {
				rows = append(rows, []interface{}{r})
			}
		}
		return rows, 0
	}

	// flattened rows
	if width > 0 && len(v) > width {
		full := len(v) / width
		rows := make([][]interface{}, 0, full)
		for i := 0; i < full*width; i += width {
			rows = append(rows, v[i:i+width])
		}
		if len(v)%width != 0 {
			return rows, 1
		}
		return rows, 0
	}

	return [][]interface{}{v}, 0
}

// -----------------------------------------------------------------------------
// Row decoding
// -----------------------------------------------------------------------------

// DecodeBar maps a Candle row to a bar. It returns (nil, nil) for placeholder rows:
// missing time, missing close or close <= 0.
func DecodeBar(schema Schema, row []interface{}) (*models.MBar, error) {
	r, err := newRowReader(schema, row)
	if err != nil {
		return nil, err
	}

	symbol := r.str("eventSymbol")
	ts, hasTime := r.integer("time")
	closeV, hasClose := r.num("close")
	open, _ := r.num("open")
	high, _ := r.num("high")
	low, _ := r.num("low")
	volume, _ := r.num("volume")

	if r.err != nil {
		return nil, r.err
	}
	if !hasTime || ts <= 0 || !hasClose || closeV <= 0 {
		return nil, nil
	}

	return &models.MBar{
		Symbol:    BaseSymbol(symbol),
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeV,
		Volume:    volume,
	}, nil
}

// -----------------------------------------------------------------------------

// DecodeQuote maps a Quote row using the current time as capture time.
func DecodeQuote(schema Schema, row []interface{}) (*models.MQuote, error) {
	return DecodeQuoteAt(schema, row, time.Now())
}

// DecodeQuoteAt returns (nil, nil) unless both bid and ask prices are positive.
func DecodeQuoteAt(schema Schema, row []interface{}, capturedAt time.Time) (*models.MQuote, error) {
	r, err := newRowReader(schema, row)
	if err != nil {
		return nil, err
	}

	symbol := r.str("eventSymbol")
	bid, _ := r.num("bidPrice")
	bidSize, _ := r.num("bidSize")
	ask, _ := r.num("askPrice")
	askSize, _ := r.num("askSize")
	bidEx := r.exchange("bidExchangeCode")
	askEx := r.exchange("askExchangeCode")

	if r.err != nil {
		return nil, r.err
	}
	if bid <= 0 || ask <= 0 {
		return nil, nil
	}

	return &models.MQuote{
		CapturedAt:  capturedAt,
		Symbol:      symbol,
		BidPrice:    bid,
		BidSize:     bidSize,
		BidExchange: bidEx,
		AskPrice:    ask,
		AskSize:     askSize,
		AskExchange: askEx,
		Spread:      ask - bid,
	}, nil
}

// -----------------------------------------------------------------------------

// rowReader looks fields up by name and keeps the first error it meets.
type rowReader struct {
	schema Schema
	row    []interface{}
	err    error
}

func newRowReader(schema Schema, row []interface{}) (*rowReader, error) {
	if len(row) != schema.Len() {
		return nil, helpers.NewDecodeError(schema.EventType(), "row has %d values, schema declares %d", len(row), schema.Len())
	}
	return &rowReader{schema: schema, row: row}, nil
}

func (r *rowReader) value(field string) (interface{}, bool) {
	i, ok := r.schema.Position(field)
	if !ok {
		return nil, false
	}
	return r.row[i], true
}

func (r *rowReader) fail(field string, v interface{}) {
	if r.err == nil {
		r.err = helpers.NewDecodeError(r.schema.EventType(), "field %s: unexpected value %v (%T)", field, v, v)
	}
}

// str reads a required string field. Absent or null gives "".
func (r *rowReader) str(field string) string {
	v, ok := r.value(field)
	if !ok || v == nil {
		return ""
	}
	s, isStr := v.(string)
	if !isStr {
		r.fail(field, v)
		return ""
	}
	return s
}

func (r *rowReader) exchange(field string) string {
	v, ok := r.value(field)
	if !ok || v == nil {
		return exchangeUnknown
	}
	switch x := v.(type) {
	case string:
		if x == "" {
			return exchangeUnknown
		}
		return x
	case json.Number:
		return x.String()
	default:
		r.fail(field, v)
		return exchangeUnknown
	}
}

// num reads a numeric field. The bool is false when the field is absent, null,
// NaN or infinite; those read as 0.
func (r *rowReader) num(field string) (float64, bool) {
	v, ok := r.value(field)
	if !ok {
		return 0, false
	}
	f, present, err := toFloat(v)
	if err != nil {
		r.fail(field, v)
		return 0, false
	}
	return f, present
}

func (r *rowReader) integer(field string) (int64, bool) {
	v, ok := r.value(field)
	if !ok {
		return 0, false
	}
	if n, isNum := v.(json.Number); isNum {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	f, present, err := toFloat(v)
	if err != nil {
		r.fail(field, v)
		return 0, false
	}
	return int64(f), present
}

// -----------------------------------------------------------------------------

func toFloat(v interface{}) (float64, bool, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false, err
		}
		f = parsed
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case string:
		switch x {
		case "", "NaN", "Infinity", "-Infinity":
			return 0, false, nil
		}
		parsed, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false, err
		}
		f = parsed
	default:
		return 0, false, fmt.Errorf("not a number: %T", v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, nil
	}
	return f, true, nil
}
