// Package exchanges implements one adapter per venue plus the shared
// connection-supervisor behavior built into the adapter contract: a single
// Supervisor parametric over a small per-venue VenueDriver, so the
// connect/backoff/timeout state machine is written once rather than
// reimplemented per venue.
package exchanges

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"cryptotick/internal/model"
)

// VenueDriver is the minimal per-venue capability contract: dialing,
// subscribing, and parsing. The Supervisor (supervisor.go) drives the
// connect/backoff/timeout state machine around it identically for every
// venue.
type VenueDriver interface {
	// Venue is the lowercase venue identifier used in status/log fields.
	Venue() string

	// Dial opens the WebSocket connection for symbol. It must not send
	// any subscribe frame; that happens in SubscribeFrames.
	Dial(ctx context.Context, symbol model.Symbol) (*websocket.Conn, error)

	// SubscribeFrames returns the frames (if any) to write immediately
	// after a successful Dial. Binance needs none (the subscription is
	// encoded in the URL path); OKX/Bitget/Coinbase/Bitstamp/Kraken/
	// Bitvavo each return exactly one JSON subscribe frame.
	SubscribeFrames(symbol model.Symbol) ([][]byte, error)

	// ParseMessage parses one WS frame into zero or more normalized
	// trades. Malformed or non-trade control frames return (nil, nil):
	// parse errors are never propagated — the stream is a best-effort
	// firehose.
	ParseMessage(raw []byte) ([]model.NormalizedTrade, error)
}

// HistoricalFetcher is the REST backfill capability.
type HistoricalFetcher interface {
	FetchHistoricalCandles(ctx context.Context, symbol model.Symbol, tf model.Timeframe, start, end time.Time) ([]model.Candle, error)
}

// Adapter is the full per-venue contract: WS streaming plus REST backfill.
type Adapter interface {
	VenueDriver
	HistoricalFetcher
}

// EventSink receives the callbacks every adapter surfaces: on_trade,
// on_connection_change, and on_status.
type EventSink interface {
	OnTrade(model.NormalizedTrade)
	OnConnectionChange(venue string, connected bool)
	OnStatus(model.ConnectionStatus)
}

// Supervised timing constants.
const (
	PingInterval        = 15 * time.Second
	InactivityCheckEvery = 5 * time.Second
	InactivityTimeout    = 30 * time.Second
	StatusBeaconEvery    = 1 * time.Second

	BackoffBase = 500 * time.Millisecond
	BackoffCap  = 30 * time.Second
	BackoffJitter = 0.10
)
