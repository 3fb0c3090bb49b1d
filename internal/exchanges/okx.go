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

// okxAdapter streams public trades and backfills candles from OKX, using
// the public-channel dial/subscribe shape narrowed to a trades-only
// subscription.
type okxAdapter struct{}

func NewOKXAdapter() Adapter { return okxAdapter{} }

func (okxAdapter) Venue() string { return "okx" }

func (okxAdapter) Dial(ctx context.Context, symbol model.Symbol) (*websocket.Conn, error) {
	if !symbols.Supports("okx", symbol) {
		return nil, fmt.Errorf("okx: unsupported symbol %s", symbol)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, "wss://ws.okx.com:8443/ws/v5/public", nil)
	if err != nil {
		return nil, fmt.Errorf("okx: dial: %w", err)
	}
	return conn, nil
}

func (okxAdapter) SubscribeFrames(symbol model.Symbol) ([][]byte, error) {
	ws, ok := symbols.WSSymbol("okx", symbol)
	if !ok {
		return nil, fmt.Errorf("okx: unsupported symbol %s", symbol)
	}
	frame := map[string]interface{}{
		"op": "subscribe",
		"args": []map[string]string{
			{"channel": "trades", "instId": ws},
		},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

type okxTradeMessage struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		InstID string `json:"instId"`
		Px     string `json:"px"`
		Sz     string `json:"sz"`
		Ts     string `json:"ts"`
	} `json:"data"`
}

func (okxAdapter) ParseMessage(raw []byte) ([]model.NormalizedTrade, error) {
	var msg okxTradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Arg.Channel != "trades" {
		return nil, nil
	}
	trades := make([]model.NormalizedTrade, 0, len(msg.Data))
	for _, d := range msg.Data {
		price, err := fx.Parse(d.Px)
		if err != nil {
			continue
		}
		size, err := fx.Parse(d.Sz)
		if err != nil {
			continue
		}
		var tsMs int64
		fmt.Sscanf(d.Ts, "%d", &tsMs)
		trades = append(trades, model.NormalizedTrade{
			Symbol:           model.SymbolBTCUSDT,
			Venue:            "okx",
			Price:            price,
			Size:             size,
			TimestampUTCNano: tsMs * int64(time.Millisecond),
		})
	}
	return trades, nil
}

var okxBarInterval = map[model.Timeframe]string{
	model.TF1m:  "1m",
	model.TF5m:  "5m",
	model.TF15m: "15m",
	model.TF30m: "30m",
	model.TF1h:  "1H",
	model.TF4h:  "4H",
	model.TF1d:  "1D",
	model.TF1w:  "1W",
}

type okxCandleResponse struct {
	Data [][]string `json:"data"`
}

// FetchHistoricalCandles issues a single request (limit 300, the venue's
// maximum), reverses the newest-first response to ascending order, and
// filters to [start,end].
func (okxAdapter) FetchHistoricalCandles(ctx context.Context, symbol model.Symbol, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	rest, ok := symbols.RESTSymbol("okx", symbol)
	if !ok {
		return nil, fmt.Errorf("okx: unsupported symbol %s", symbol)
	}
	bar, ok := nativeGranularity(okxBarInterval, tf)
	if !ok {
		return nil, fmt.Errorf("okx: no native granularity for %s", tf)
	}

	url := fmt.Sprintf("https://www.okx.com/api/v5/market/history-candles?instId=%s&bar=%s&limit=300", rest, bar)

	var resp okxCandleResponse
	if err := getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("okx: %w", err)
	}

	startS, endS := start.Unix(), end.Unix()
	candles := make([]model.Candle, 0, len(resp.Data))
	for i := len(resp.Data) - 1; i >= 0; i-- {
		row := resp.Data[i]
		if len(row) < 6 {
			continue
		}
		var openMs int64
		fmt.Sscanf(row[0], "%d", &openMs)
		openS := openMs / 1000
		if openS < startS || openS > endS {
			continue
		}
		c, err := candleFromStrings(symbol, tf, openS, row[1], row[2], row[3], row[4], row[5])
		if err != nil {
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}
