package dxlink

const (
	EventCandle = "Candle"
	EventQuote  = "Quote"
)

// CandleFields is the field order requested for Candle events.
var CandleFields = []string{
	"eventSymbol", "eventTime", "eventFlags", "index", "time", "sequence",
	"count", "open", "high", "low", "close", "volume",
}

// QuoteFields is the field order requested for Quote events.
var QuoteFields = []string{
	"eventSymbol", "eventTime", "sequence", "timeNanoPart", "bidTime", "bidExchangeCode",
	"bidPrice", "bidSize", "askTime", "askExchangeCode", "askPrice", "askSize",
}

// -----------------------------------------------------------------------------

// Schema fixes the positional meaning of compact rows for one event type.
// It is immutable once built.
type Schema struct {
	eventType string
	fields    []string
	index     map[string]int
}

func NewSchema(eventType string, fields []string) Schema {
	cp := make([]string, len(fields))
	copy(cp, fields)

	idx := make(map[string]int, len(cp))
	for i, f := range cp {
		if _, dup := idx[f]; !dup {
			idx[f] = i
		}
	}
	return Schema{eventType: eventType, fields: cp, index: idx}
}

func (s Schema) EventType() string { return s.eventType }

func (s Schema) Len() int { return len(s.fields) }

// Fields returns a copy of the ordered field names.
func (s Schema) Fields() []string {
	cp := make([]string, len(s.fields))
	copy(cp, s.fields)
	return cp
}

// Position returns the row index of a field, or false when the schema lacks it.
func (s Schema) Position(field string) (int, bool) {
	i, ok := s.index[field]
	return i, ok
}
