package backfill

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cryptotick/internal/exchanges"
	"cryptotick/internal/fx"
	"cryptotick/internal/model"
)

// fakeAdapter is a minimal exchanges.Adapter stub for exercising the
// planner's fallback and venue-ordering logic without any network access.
type fakeAdapter struct {
	venue string
	// native, if non-nil, is returned for any timeframe in nativeTFs.
	nativeTFs map[model.Timeframe][]model.Candle
	nativeErr map[model.Timeframe]error
	oneMin    []model.Candle
	oneMinErr error
}

func (f *fakeAdapter) Venue() string { return f.venue }
func (f *fakeAdapter) Dial(ctx context.Context, symbol model.Symbol) (*websocket.Conn, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeAdapter) SubscribeFrames(symbol model.Symbol) ([][]byte, error) { return nil, nil }
func (f *fakeAdapter) ParseMessage(raw []byte) ([]model.NormalizedTrade, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchHistoricalCandles(ctx context.Context, symbol model.Symbol, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	if tf == model.TF1m {
		if f.oneMinErr != nil {
			return nil, f.oneMinErr
		}
		if f.oneMin != nil {
			return f.oneMin, nil
		}
	}
	if err, ok := f.nativeErr[tf]; ok {
		return nil, err
	}
	if c, ok := f.nativeTFs[tf]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%s: no native granularity for %s", f.venue, tf)
}

var _ exchanges.Adapter = (*fakeAdapter)(nil)

func oneMinCandle(openS int64, price string) model.Candle {
	return model.Candle{
		Symbol:       model.SymbolBTCUSDT,
		Timeframe:    model.TF1m,
		OpenTimeUTCS: openS,
		Open:         fx.MustParse(price),
		High:         fx.MustParse(price),
		Low:          fx.MustParse(price),
		Close:        fx.MustParse(price),
		Volume:       fx.MustParse("1"),
	}
}

func TestFetchUsesNativeGranularityFirst(t *testing.T) {
	binance := &fakeAdapter{
		venue: "binance",
		nativeTFs: map[model.Timeframe][]model.Candle{
			model.TF5m: {oneMinCandle(0, "100")},
		},
	}
	p := New(map[string]exchanges.Adapter{"binance": binance}, zap.NewNop())

	out, err := p.Fetch(context.Background(), model.SymbolBTCUSDT, model.TF5m, time.Unix(0, 0), time.Unix(300, 0))
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(out) != 1 || out[0].Timeframe != model.TF5m {
		t.Fatalf("expected native 5m candle passthrough, got %v", out)
	}
}

func TestFetchFallsBackTo1mUpAggregation(t *testing.T) {
	binance := &fakeAdapter{
		venue: "binance",
		// No native 30m entry: nativeTFs lookup misses, triggering fallback.
		oneMin: []model.Candle{
			oneMinCandle(0, "100"),
			oneMinCandle(60, "101"),
		},
	}
	p := New(map[string]exchanges.Adapter{"binance": binance}, zap.NewNop())

	out, err := p.Fetch(context.Background(), model.SymbolBTCUSDT, model.TF30m, time.Unix(0, 0), time.Unix(120, 0))
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 up-aggregated 30m candle, got %d", len(out))
	}
	if out[0].Timeframe != model.TF30m {
		t.Errorf("relabeled timeframe = %s, want 30m", out[0].Timeframe)
	}
}

func TestFetchTriesVenuesInPreferenceOrder(t *testing.T) {
	binance := &fakeAdapter{venue: "binance", oneMinErr: fmt.Errorf("binance down")}
	okx := &fakeAdapter{
		venue: "okx",
		nativeTFs: map[model.Timeframe][]model.Candle{
			model.TF1m: {oneMinCandle(0, "200")},
		},
	}
	p := New(map[string]exchanges.Adapter{"binance": binance, "okx": okx}, zap.NewNop())

	out, err := p.Fetch(context.Background(), model.SymbolBTCUSDT, model.TF1m, time.Unix(0, 0), time.Unix(60, 0))
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(out) != 1 || out[0].Open != fx.MustParse("200") {
		t.Fatalf("expected okx fallback result, got %v", out)
	}
}

func TestFetchExhaustedVenuesReturnsEmptyNotError(t *testing.T) {
	binance := &fakeAdapter{venue: "binance", oneMinErr: fmt.Errorf("binance down")}
	p := New(map[string]exchanges.Adapter{"binance": binance}, zap.NewNop())

	out, err := p.Fetch(context.Background(), model.SymbolBTCUSDT, model.TF1m, time.Unix(0, 0), time.Unix(60, 0))
	if err != nil {
		t.Fatalf("Fetch should never return an error, got: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil candle set on exhaustion, got %v", out)
	}
}

func TestVenueOrderMatchesPreferenceTable(t *testing.T) {
	if got := VenueOrder(model.SymbolBTCUSDT); len(got) != 3 || got[0] != "binance" {
		t.Errorf("VenueOrder(BTC/USDT) = %v", got)
	}
	if got := VenueOrder(model.SymbolBTCEUR); len(got) != 2 || got[0] != "kraken" {
		t.Errorf("VenueOrder(BTC/EUR) = %v", got)
	}
}
