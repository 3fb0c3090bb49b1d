package exchanges

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"cryptotick/internal/fx"
	"cryptotick/internal/model"
	"cryptotick/internal/symbols"
)

// bitvavoAdapter streams trades and backfills candles from Bitvavo, the
// secondary BTC/EUR venue. Bitvavo has no native 1-week candle interval;
// the backfill planner up-aggregates 1w from 1m candles.
type bitvavoAdapter struct{}

func NewBitvavoAdapter() Adapter { return bitvavoAdapter{} }

func (bitvavoAdapter) Venue() string { return "bitvavo" }

func (bitvavoAdapter) Dial(ctx context.Context, symbol model.Symbol) (*websocket.Conn, error) {
	if !symbols.Supports("bitvavo", symbol) {
		return nil, fmt.Errorf("bitvavo: unsupported symbol %s", symbol)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, "wss://ws.bitvavo.com/v2/", nil)
	if err != nil {
		return nil, fmt.Errorf("bitvavo: dial: %w", err)
	}
	return conn, nil
}

func (bitvavoAdapter) SubscribeFrames(symbol model.Symbol) ([][]byte, error) {
	ws, ok := symbols.WSSymbol("bitvavo", symbol)
	if !ok {
		return nil, fmt.Errorf("bitvavo: unsupported symbol %s", symbol)
	}
	frame := map[string]interface{}{
		"action": "subscribe",
		"channels": []map[string]interface{}{
			{"name": "trades", "markets": []string{ws}},
		},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

type bitvavoTradeMessage struct {
	Event     string `json:"event"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// bitvavoTimestampToNano disambiguates Bitvavo's timestamp unit by digit
// count: more than 13 digits means nanoseconds, otherwise milliseconds.
func bitvavoTimestampToNano(ts int64) int64 {
	digits := 1
	for v := ts; v >= 10; v /= 10 {
		digits++
	}
	if digits > 13 {
		return ts
	}
	return ts * int64(time.Millisecond)
}

func (bitvavoAdapter) ParseMessage(raw []byte) ([]model.NormalizedTrade, error) {
	var msg bitvavoTradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Event != "trade" {
		return nil, nil
	}
	price, err := fx.Parse(msg.Price)
	if err != nil {
		return nil, nil
	}
	size, err := fx.Parse(msg.Amount)
	if err != nil {
		return nil, nil
	}
	return []model.NormalizedTrade{{
		Symbol:           model.SymbolBTCEUR,
		Venue:            "bitvavo",
		Price:            price,
		Size:             size,
		TimestampUTCNano: bitvavoTimestampToNano(msg.Timestamp),
	}}, nil
}

var bitvavoInterval = map[model.Timeframe]string{
	model.TF1m:  "1m",
	model.TF5m:  "5m",
	model.TF15m: "15m",
	model.TF30m: "30m",
	model.TF1h:  "1h",
	model.TF4h:  "4h",
	model.TF1d:  "1d",
}

type bitvavoCandleRow [6]interface{}

func (bitvavoAdapter) FetchHistoricalCandles(ctx context.Context, symbol model.Symbol, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	rest, ok := symbols.RESTSymbol("bitvavo", symbol)
	if !ok {
		return nil, fmt.Errorf("bitvavo: unsupported symbol %s", symbol)
	}
	interval, ok := nativeGranularity(bitvavoInterval, tf)
	if !ok {
		return nil, fmt.Errorf("bitvavo: no native granularity for %s", tf)
	}

	url := fmt.Sprintf("https://api.bitvavo.com/v2/%s/candles?interval=%s&start=%d&end=%d&limit=1440",
		rest, interval, start.UnixMilli(), end.UnixMilli())

	var rows []bitvavoCandleRow
	if err := getJSON(ctx, url, &rows); err != nil {
		return nil, fmt.Errorf("bitvavo: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		openMs, ok := row[0].(float64)
		if !ok {
			continue
		}
		open, _ := row[1].(string)
		high, _ := row[2].(string)
		low, _ := row[3].(string)
		close, _ := row[4].(string)
		volume, _ := row[5].(string)

		c, err := candleFromStrings(symbol, tf, int64(openMs)/1000, open, high, low, close, volume)
		if err != nil {
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}
