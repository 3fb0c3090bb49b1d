package candles

import (
	"testing"

	"cryptotick/internal/fx"
	"cryptotick/internal/model"
)

func candle(openS int64, o, h, l, c, v string) model.Candle {
	return model.Candle{
		Symbol:       model.SymbolBTCUSDT,
		Timeframe:    model.TF1m,
		OpenTimeUTCS: openS,
		Open:         fx.MustParse(o),
		High:         fx.MustParse(h),
		Low:          fx.MustParse(l),
		Close:        fx.MustParse(c),
		Volume:       fx.MustParse(v),
	}
}

func TestUpAggregateFiveOneMinuteCandlesInto5m(t *testing.T) {
	input := []model.Candle{
		candle(0, "100", "101", "99", "100.5", "1"),
		candle(60, "100.5", "102", "100", "101", "2"),
		candle(120, "101", "103", "100.5", "102", "1"),
		candle(180, "102", "102.5", "101", "101.5", "1"),
		candle(240, "101.5", "105", "101", "104", "3"),
	}
	out := UpAggregate(input, model.TF5m)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	got := out[0]
	if got.Timeframe != model.TF5m {
		t.Errorf("relabeled timeframe = %s, want 5m", got.Timeframe)
	}
	if got.OpenTimeUTCS != 0 {
		t.Errorf("open time = %d, want 0", got.OpenTimeUTCS)
	}
	if got.Open != fx.MustParse("100") {
		t.Errorf("open = %s, want 100", got.Open.String())
	}
	if got.Close != fx.MustParse("104") {
		t.Errorf("close = %s, want 104", got.Close.String())
	}
	if got.High != fx.MustParse("105") {
		t.Errorf("high = %s, want 105", got.High.String())
	}
	if got.Low != fx.MustParse("99") {
		t.Errorf("low = %s, want 99", got.Low.String())
	}
	if got.Volume != fx.MustParse("8") {
		t.Errorf("volume = %s, want 8", got.Volume.String())
	}
}

func TestUpAggregateSplitsAcrossBucketBoundaries(t *testing.T) {
	// Two 5-minute buckets worth of 1m candles.
	input := []model.Candle{
		candle(0, "100", "101", "99", "100", "1"),
		candle(300, "105", "106", "104", "105", "1"),
	}
	out := UpAggregate(input, model.TF5m)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].OpenTimeUTCS != 0 || out[1].OpenTimeUTCS != 300 {
		t.Errorf("bucket opens = %d, %d; want 0, 300", out[0].OpenTimeUTCS, out[1].OpenTimeUTCS)
	}
}

func TestUpAggregateEmptyInput(t *testing.T) {
	if out := UpAggregate(nil, model.TF5m); out != nil {
		t.Errorf("expected nil for empty input, got %v", out)
	}
}

func TestValidate(t *testing.T) {
	good := candle(0, "100", "101", "99", "100.5", "1")
	if !Validate(good) {
		t.Error("expected valid candle to pass")
	}
	bad := candle(0, "100", "99", "101", "100.5", "1") // high < low
	if Validate(bad) {
		t.Error("expected inverted high/low candle to fail")
	}
}
