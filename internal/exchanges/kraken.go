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

// krakenAdapter streams trades and backfills OHLC from Kraken, the only
// venue supporting both BTC/USD and BTC/EUR in this system's venue set.
// Kraken's trade feed delivers array-framed messages rather than a tagged
// object, so ParseMessage has to type-switch on the raw JSON array shape
// instead of unmarshaling into a fixed struct.
type krakenAdapter struct{}

func NewKrakenAdapter() Adapter { return krakenAdapter{} }

func (krakenAdapter) Venue() string { return "kraken" }

func (krakenAdapter) Dial(ctx context.Context, symbol model.Symbol) (*websocket.Conn, error) {
	if !symbols.Supports("kraken", symbol) {
		return nil, fmt.Errorf("kraken: unsupported symbol %s", symbol)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, "wss://ws.kraken.com", nil)
	if err != nil {
		return nil, fmt.Errorf("kraken: dial: %w", err)
	}
	return conn, nil
}

func (krakenAdapter) SubscribeFrames(symbol model.Symbol) ([][]byte, error) {
	ws, ok := symbols.WSSymbol("kraken", symbol)
	if !ok {
		return nil, fmt.Errorf("kraken: unsupported symbol %s", symbol)
	}
	frame := map[string]interface{}{
		"event": "subscribe",
		"pair":  []string{ws},
		"subscription": map[string]string{
			"name": "trade",
		},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

// ParseMessage handles Kraken's public-feed array framing:
// [channelID, [[price, volume, time, side, orderType, misc], ...], "trade", pair]
func (krakenAdapter) ParseMessage(raw []byte) ([]model.NormalizedTrade, error) {
	var generic []json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil || len(generic) < 4 {
		return nil, nil
	}

	var channel string
	if err := json.Unmarshal(generic[2], &channel); err != nil || channel != "trade" {
		return nil, nil
	}

	var pair string
	_ = json.Unmarshal(generic[3], &pair)
	symbol := krakenPairToSymbol(pair)
	if symbol == "" {
		return nil, nil
	}

	var rows [][]string
	if err := json.Unmarshal(generic[1], &rows); err != nil {
		return nil, nil
	}

	trades := make([]model.NormalizedTrade, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		price, err := fx.Parse(row[0])
		if err != nil {
			continue
		}
		size, err := fx.Parse(row[1])
		if err != nil {
			continue
		}
		var tsSec float64
		fmt.Sscanf(row[2], "%f", &tsSec)
		trades = append(trades, model.NormalizedTrade{
			Symbol:           symbol,
			Venue:            "kraken",
			Price:            price,
			Size:             size,
			TimestampUTCNano: int64(tsSec * float64(time.Second)),
		})
	}
	return trades, nil
}

func krakenPairToSymbol(pair string) model.Symbol {
	switch pair {
	case "XBT/USD":
		return model.SymbolBTCUSD
	case "XBT/EUR":
		return model.SymbolBTCEUR
	default:
		return ""
	}
}

var krakenIntervalMinutes = map[model.Timeframe]string{
	model.TF1m:  "1",
	model.TF5m:  "5",
	model.TF15m: "15",
	model.TF30m: "30",
	model.TF1h:  "60",
	model.TF4h:  "240",
	model.TF1d:  "1440",
	model.TF1w:  "10080",
}

type krakenOHLCResponse struct {
	Result map[string]json.RawMessage `json:"result"`
	Error  []string                   `json:"error"`
}

func (krakenAdapter) FetchHistoricalCandles(ctx context.Context, symbol model.Symbol, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	rest, ok := symbols.RESTSymbol("kraken", symbol)
	if !ok {
		return nil, fmt.Errorf("kraken: unsupported symbol %s", symbol)
	}
	interval, ok := nativeGranularity(krakenIntervalMinutes, tf)
	if !ok {
		return nil, fmt.Errorf("kraken: no native granularity for %s", tf)
	}

	url := fmt.Sprintf("https://api.kraken.com/0/public/OHLC?pair=%s&interval=%s&since=%d",
		rest, interval, start.Unix())

	var resp krakenOHLCResponse
	if err := getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("kraken: %w", err)
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("kraken: %v", resp.Error)
	}

	var rows [][]interface{}
	for key, raw := range resp.Result {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			continue
		}
		break
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		openS, ok := row[0].(float64)
		if !ok {
			continue
		}
		open, _ := row[1].(string)
		high, _ := row[2].(string)
		low, _ := row[3].(string)
		close, _ := row[4].(string)
		volume, _ := row[6].(string)

		if int64(openS) > end.Unix() {
			continue
		}
		c, err := candleFromStrings(symbol, tf, int64(openS), open, high, low, close, volume)
		if err != nil {
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}
