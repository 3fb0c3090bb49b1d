package symbols

import (
	"testing"

	"cryptotick/internal/model"
)

func TestWSSymbolKnownPair(t *testing.T) {
	ws, ok := WSSymbol("binance", model.SymbolBTCUSDT)
	if !ok || ws != "btcusdt" {
		t.Errorf("WSSymbol(binance, BTC/USDT) = %q, %v; want btcusdt, true", ws, ok)
	}
}

func TestWSSymbolUnsupportedPair(t *testing.T) {
	if _, ok := WSSymbol("binance", model.SymbolBTCEUR); ok {
		t.Error("binance should not support BTC/EUR")
	}
}

func TestSupports(t *testing.T) {
	if !Supports("kraken", model.SymbolBTCUSD) {
		t.Error("kraken should support BTC/USD")
	}
	if Supports("bitvavo", model.SymbolBTCUSDT) {
		t.Error("bitvavo should not support BTC/USDT")
	}
}

func TestVenuesForCoversAllCanonicalSymbols(t *testing.T) {
	for _, s := range model.ValidSymbols {
		venues := VenuesFor(s)
		if len(venues) == 0 {
			t.Errorf("VenuesFor(%s) returned no venues", s)
		}
		for _, v := range venues {
			if !Supports(v, s) {
				t.Errorf("VenuesFor(%s) listed %s but table has no entry for it", s, v)
			}
		}
	}
}

func TestVenuesForUnknownSymbol(t *testing.T) {
	if got := VenuesFor(model.Symbol("ETH/USDT")); got != nil {
		t.Errorf("VenuesFor(unknown) = %v, want nil", got)
	}
}
