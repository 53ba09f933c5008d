package entity

import (
	"context"

	"github.com/goccy/go-json"
)

// StreamMessageType tags every inbound envelope on the live stream. Unknown
// tags are logged and dropped.
type StreamMessageType string

const (
	StreamMessageQuote     StreamMessageType = "quote"
	StreamMessageTrade     StreamMessageType = "trade"
	StreamMessageOrderBook StreamMessageType = "orderbook"
	StreamMessageDepth     StreamMessageType = "depth"
	StreamMessageSentiment StreamMessageType = "sentiment"
	StreamMessageHeartbeat StreamMessageType = "heartbeat"
)

type StreamEnvelope struct {
	Type      StreamMessageType `json:"type"`
	Data      json.RawMessage   `json:"data"`
	Timestamp int64             `json:"timestamp"`
}

// StreamControl is the outbound control shape: subscribe, unsubscribe, ping.
type StreamControl struct {
	Type      string   `json:"type"`
	Symbol    string   `json:"symbol,omitempty"`
	DataTypes []string `json:"data_types,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

const (
	StreamControlSubscribe   = "subscribe"
	StreamControlUnsubscribe = "unsubscribe"
	StreamControlPing        = "ping"
)

// FeedEventKind is the typed topic of the in-process fan-out bus. Combined
// with an optional symbol discriminator it replaces stringly-typed topic
// matching: a subscriber with an empty symbol receives the firehose for the
// kind, a symbol-scoped subscriber only that instrument.
type FeedEventKind string

const (
	FeedEventQuote      FeedEventKind = "quote_update"
	FeedEventTrade      FeedEventKind = "trade_update"
	FeedEventOrderBook  FeedEventKind = "orderbook_update"
	FeedEventDepth      FeedEventKind = "depth_update"
	FeedEventSentiment  FeedEventKind = "sentiment_update"
	FeedEventAlert      FeedEventKind = "alert_triggered"
	FeedEventConnection FeedEventKind = "connection_status"
)

// QuoteHistoryEvent wraps a mirrored quote on the JetStream subject so the
// history worker can requeue failed inserts with a retry budget.
type QuoteHistoryEvent struct {
	RetryCount int          `json:"retry"`
	Data       QuoteHistory `json:"data"`
}

type Publisher interface {
	JetstreamEventInit(ctx context.Context) error
}

type Subscriber interface {
	JetstreamEventSubscribe(ctx context.Context) error
}
