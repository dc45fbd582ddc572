package dxlink

import "encoding/json"

// Message types on the wire. The type field drives all dispatch.
const (
	TypeSetup            = "SETUP"
	TypeAuth             = "AUTH"
	TypeAuthState        = "AUTH_STATE"
	TypeChannelRequest   = "CHANNEL_REQUEST"
	TypeChannelOpened    = "CHANNEL_OPENED"
	TypeChannelClosed    = "CHANNEL_CLOSED"
	TypeFeedSetup        = "FEED_SETUP"
	TypeFeedConfig       = "FEED_CONFIG"
	TypeFeedSubscription = "FEED_SUBSCRIPTION"
	TypeFeedData         = "FEED_DATA"
	TypeKeepalive        = "KEEPALIVE"
	TypeError            = "ERROR"
)

const (
	StateAuthorized   = "AUTHORIZED"
	StateUnauthorized = "UNAUTHORIZED"

	ServiceFeed   = "FEED"
	FormatCompact = "COMPACT"

	// ControlChannel carries SETUP, AUTH and KEEPALIVE.
	ControlChannel = 0
)

// -----------------------------------------------------------------------------

// Message is the union of every frame exchanged with the feed. Only the fields
// relevant to Type are populated; the rest are omitted on encode.
type Message struct {
	Type    string `json:"type"`
	Channel int    `json:"channel"`

	// SETUP
	Version                string `json:"version,omitempty"`
	KeepaliveTimeout       int    `json:"keepaliveTimeout,omitempty"`
	AcceptKeepaliveTimeout int    `json:"acceptKeepaliveTimeout,omitempty"`

	// AUTH / AUTH_STATE
	Token  string `json:"token,omitempty"`
	State  string `json:"state,omitempty"`
	UserID string `json:"userId,omitempty"`

	// CHANNEL_REQUEST / CHANNEL_OPENED
	Service    string            `json:"service,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`

	// FEED_SETUP / FEED_CONFIG
	AcceptDataFormat  string              `json:"acceptDataFormat,omitempty"`
	AcceptEventFields map[string][]string `json:"acceptEventFields,omitempty"`
	DataFormat        string              `json:"dataFormat,omitempty"`
	EventFields       map[string][]string `json:"eventFields,omitempty"`

	// FEED_SUBSCRIPTION
	Add    []Subscription `json:"add,omitempty"`
	Remove []Subscription `json:"remove,omitempty"`

	// FEED_DATA, decoded lazily against the negotiated schema
	Data json.RawMessage `json:"data,omitempty"`

	// ERROR
	Error        string `json:"error,omitempty"`
	ErrorMessage string `json:"message,omitempty"`
}

// Subscription is one entry of a FEED_SUBSCRIPTION add list.
type Subscription struct {
	Type     string `json:"type"`
	Symbol   string `json:"symbol"`
	FromTime int64  `json:"fromTime,omitempty"`
}
