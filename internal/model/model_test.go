package model

import "testing"

func TestBucketOpenAlignsToFloor(t *testing.T) {
	cases := []struct {
		tsSec, tfSec, want int64
	}{
		{125, 60, 120},
		{120, 60, 120},
		{3599, 3600, 0},
		{3600, 3600, 3600},
		{59, 60, 0},
	}
	for _, c := range cases {
		if got := BucketOpen(c.tsSec, c.tfSec); got != c.want {
			t.Errorf("BucketOpen(%d, %d) = %d, want %d", c.tsSec, c.tfSec, got, c.want)
		}
	}
}

func TestSymbolIsValid(t *testing.T) {
	if !SymbolBTCUSDT.IsValid() {
		t.Error("BTC/USDT should be valid")
	}
	if Symbol("DOGE/USDT").IsValid() {
		t.Error("DOGE/USDT should not be valid")
	}
}

func TestTimeframeSeconds(t *testing.T) {
	if TF1m.Seconds() != 60 {
		t.Errorf("TF1m.Seconds() = %d, want 60", TF1m.Seconds())
	}
	if TF1w.Seconds() != 7*24*60*60 {
		t.Errorf("TF1w.Seconds() = %d, want %d", TF1w.Seconds(), 7*24*60*60)
	}
	if Timeframe("3m").Seconds() != 0 {
		t.Error("unrecognized timeframe should report 0 seconds")
	}
}

func TestTimeframeIsValid(t *testing.T) {
	if !TF4h.IsValid() {
		t.Error("4h should be valid")
	}
	if Timeframe("2h").IsValid() {
		t.Error("2h should not be valid")
	}
}
