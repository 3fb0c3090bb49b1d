package exchanges

import (
	"testing"

	"cryptotick/internal/fx"
	"cryptotick/internal/model"
)

func TestBinanceParseMessageTrade(t *testing.T) {
	raw := []byte(`{"e":"trade","s":"BTCUSDT","p":"50000.10","q":"0.5","T":1700000000123}`)
	trades, err := NewBinanceAdapter().ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
	tr := trades[0]
	if tr.Price != fx.MustParse("50000.10") {
		t.Errorf("price = %s", tr.Price.String())
	}
	if tr.TimestampUTCNano != 1700000000123*1_000_000 {
		t.Errorf("timestamp = %d", tr.TimestampUTCNano)
	}
}

func TestBinanceParseMessageIgnoresNonTrade(t *testing.T) {
	raw := []byte(`{"e":"depthUpdate"}`)
	trades, err := NewBinanceAdapter().ParseMessage(raw)
	if err != nil || trades != nil {
		t.Errorf("expected (nil, nil) for non-trade frame, got (%v, %v)", trades, err)
	}
}

func TestOKXParseMessageTrade(t *testing.T) {
	raw := []byte(`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[{"instId":"BTC-USDT","px":"50000.5","sz":"1.2","ts":"1700000000000"}]}`)
	trades, err := NewOKXAdapter().ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
	if trades[0].TimestampUTCNano != 1700000000000*1_000_000 {
		t.Errorf("timestamp = %d", trades[0].TimestampUTCNano)
	}
}

func TestBitgetParseMessageObjectShape(t *testing.T) {
	raw := []byte(`{"arg":{"channel":"trade","instId":"BTCUSDT"},"data":[{"p":"50001","q":"0.1","t":"1700000000000"}]}`)
	trades, err := NewBitgetAdapter().ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
}

func TestBitgetParseMessageArrayShape(t *testing.T) {
	raw := []byte(`{"arg":{"channel":"trade","instId":"BTCUSDT"},"data":[["50001","0.1","1700000000000"]]}`)
	trades, err := NewBitgetAdapter().ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
}

func TestCoinbaseParseMessageMatch(t *testing.T) {
	raw := []byte(`{"type":"match","price":"50000.25","size":"0.75","time":"2023-11-14T22:13:20.123456789Z"}`)
	trades, err := NewCoinbaseAdapter().ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
	if trades[0].Price != fx.MustParse("50000.25") {
		t.Errorf("price = %s", trades[0].Price.String())
	}
}

func TestCoinbaseParseMessageIgnoresNonMatch(t *testing.T) {
	raw := []byte(`{"type":"heartbeat"}`)
	trades, err := NewCoinbaseAdapter().ParseMessage(raw)
	if err != nil || trades != nil {
		t.Errorf("expected (nil, nil) for heartbeat, got (%v, %v)", trades, err)
	}
}

func TestBitstampParseMessageTrade(t *testing.T) {
	raw := []byte(`{"event":"trade","channel":"live_trades_btcusd","data":{"price":50000.5,"amount":0.3,"microtimestamp":"1700000000123456"}}`)
	trades, err := NewBitstampAdapter().ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
	if trades[0].TimestampUTCNano != 1700000000123456*1000 {
		t.Errorf("timestamp = %d", trades[0].TimestampUTCNano)
	}
}

func TestKrakenParseMessageArrayFrame(t *testing.T) {
	raw := []byte(`[336,[["50000.1","0.5","1700000000.123456","b","l",""]],"trade","XBT/USD"]`)
	trades, err := NewKrakenAdapter().ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
	if trades[0].Symbol != model.SymbolBTCUSD {
		t.Errorf("symbol = %s, want BTC/USD", trades[0].Symbol)
	}
}

func TestKrakenParseMessageIgnoresNonTradeChannel(t *testing.T) {
	raw := []byte(`[336,{"a":["50000.1","1","1.0"]},"book-10","XBT/USD"]`)
	trades, err := NewKrakenAdapter().ParseMessage(raw)
	if err != nil || trades != nil {
		t.Errorf("expected (nil, nil) for non-trade channel, got (%v, %v)", trades, err)
	}
}

func TestKrakenParseMessageUnknownPairIgnored(t *testing.T) {
	raw := []byte(`[336,[["50000.1","0.5","1700000000.123456","b","l",""]],"trade","ETH/USD"]`)
	trades, err := NewKrakenAdapter().ParseMessage(raw)
	if err != nil || trades != nil {
		t.Errorf("expected (nil, nil) for an unmapped pair, got (%v, %v)", trades, err)
	}
}

func TestBitvavoParseMessageMillisecondTimestamp(t *testing.T) {
	raw := []byte(`{"event":"trade","market":"BTC-EUR","price":"45000.5","amount":"0.2","timestamp":1700000000123}`)
	trades, err := NewBitvavoAdapter().ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
	if trades[0].TimestampUTCNano != 1700000000123*1_000_000 {
		t.Errorf("timestamp = %d, want ms*1e6", trades[0].TimestampUTCNano)
	}
}

func TestBitvavoParseMessageNanosecondTimestamp(t *testing.T) {
	// 14-digit timestamp should be treated as already-nanosecond per the
	// digit-count disambiguation rule, not multiplied again.
	raw := []byte(`{"event":"trade","market":"BTC-EUR","price":"45000.5","amount":"0.2","timestamp":17000000001234}`)
	trades, err := NewBitvavoAdapter().ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if trades[0].TimestampUTCNano != 17000000001234 {
		t.Errorf("timestamp = %d, want passthrough for >13 digit value", trades[0].TimestampUTCNano)
	}
}

func TestCandleFromStrings(t *testing.T) {
	c, err := candleFromStrings(model.SymbolBTCUSDT, model.TF1m, 100, "100", "101", "99", "100.5", "2")
	if err != nil {
		t.Fatalf("candleFromStrings: %v", err)
	}
	if c.OpenTimeUTCS != 100 || c.Volume != fx.MustParse("2") {
		t.Errorf("candle = %+v", c)
	}
}

func TestCandleFromStringsRejectsGarbage(t *testing.T) {
	if _, err := candleFromStrings(model.SymbolBTCUSDT, model.TF1m, 100, "abc", "101", "99", "100.5", "2"); err == nil {
		t.Error("expected error for non-numeric open")
	}
}
