package exchanges

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"cryptotick/internal/fx"
	"cryptotick/internal/model"
	"cryptotick/internal/symbols"
)

// binanceAdapter streams spot trades and backfills klines from Binance.
// L2 depth is out of scope, so this dials the single-symbol raw trade
// stream directly; the URL already encodes the subscription, so
// SubscribeFrames sends nothing.
type binanceAdapter struct{}

func NewBinanceAdapter() Adapter { return binanceAdapter{} }

func (binanceAdapter) Venue() string { return "binance" }

func (binanceAdapter) Dial(ctx context.Context, symbol model.Symbol) (*websocket.Conn, error) {
	ws, ok := symbols.WSSymbol("binance", symbol)
	if !ok {
		return nil, fmt.Errorf("binance: unsupported symbol %s", symbol)
	}
	url := fmt.Sprintf("wss://stream.binance.com:9443/ws/%s@trade", ws)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 15 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	headers := http.Header{}
	headers.Set("User-Agent", "cryptotick/1.0")

	conn, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("binance: dial: %w", err)
	}
	conn.SetReadLimit(655350)
	return conn, nil
}

func (binanceAdapter) SubscribeFrames(symbol model.Symbol) ([][]byte, error) {
	return nil, nil
}

type binanceTradeEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

func (binanceAdapter) ParseMessage(raw []byte) ([]model.NormalizedTrade, error) {
	var ev binanceTradeEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.EventType != "trade" {
		return nil, nil
	}
	price, err := fx.Parse(ev.Price)
	if err != nil {
		return nil, nil
	}
	size, err := fx.Parse(ev.Quantity)
	if err != nil {
		return nil, nil
	}
	return []model.NormalizedTrade{{
		Symbol:           model.SymbolBTCUSDT,
		Venue:            "binance",
		Price:            price,
		Size:             size,
		TimestampUTCNano: ev.TradeTime * int64(time.Millisecond),
	}}, nil
}

var binanceKlineInterval = map[model.Timeframe]string{
	model.TF1m:  "1m",
	model.TF5m:  "5m",
	model.TF15m: "15m",
	model.TF30m: "30m",
	model.TF1h:  "1h",
	model.TF4h:  "4h",
	model.TF1d:  "1d",
	model.TF1w:  "1w",
}

// binanceKline is one row of Binance's heterogeneously-typed kline array:
// [openTime, open, high, low, close, volume, closeTime, ...].
type binanceKline []interface{}

// FetchHistoricalCandles paginates by startTime, 1000 rows per page,
// advancing the cursor to last_open_ms+1 and stopping once a page returns
// fewer than 1000 rows.
func (binanceAdapter) FetchHistoricalCandles(ctx context.Context, symbol model.Symbol, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	rest, ok := symbols.RESTSymbol("binance", symbol)
	if !ok {
		return nil, fmt.Errorf("binance: unsupported symbol %s", symbol)
	}
	interval, ok := nativeGranularity(binanceKlineInterval, tf)
	if !ok {
		return nil, fmt.Errorf("binance: no native granularity for %s", tf)
	}

	var candles []model.Candle
	cursorMs := start.UnixMilli()
	endMs := end.UnixMilli()

	for cursorMs < endMs {
		url := fmt.Sprintf("https://api.binance.com/api/v3/klines?symbol=%s&interval=%s&startTime=%d&endTime=%d&limit=1000",
			rest, interval, cursorMs, endMs)

		var rows []binanceKline
		if err := getJSON(ctx, url, &rows); err != nil {
			return candles, fmt.Errorf("binance: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		var lastOpenMs int64
		for _, row := range rows {
			if len(row) < 6 {
				continue
			}
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
			lastOpenMs = int64(openMs)
		}

		if len(rows) < 1000 {
			break
		}
		cursorMs = lastOpenMs + 1

		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return candles, ctx.Err()
		}
	}
	return candles, nil
}
