// Package symbols is the pure mapping table translating canonical
// BASE/QUOTE symbols to each venue's native WS/REST symbol spelling, as a
// static table rather than ad hoc string surgery since the venue set here
// is fixed and small.
package symbols

import "cryptotick/internal/model"

// entry holds a venue's native spellings for WS subscription and REST calls.
type entry struct {
	ws   string
	rest string
}

// table[venue][symbol] -> native spellings. A missing entry means the
// venue does not support that canonical pair; adapters must not be
// instantiated for that combination.
var table = map[string]map[model.Symbol]entry{
	"binance": {
		model.SymbolBTCUSDT: {ws: "btcusdt", rest: "BTCUSDT"},
	},
	"okx": {
		model.SymbolBTCUSDT: {ws: "BTC-USDT", rest: "BTC-USDT"},
	},
	"bitget": {
		model.SymbolBTCUSDT: {ws: "BTCUSDT", rest: "BTCUSDT"},
	},
	"coinbase": {
		model.SymbolBTCUSD: {ws: "BTC-USD", rest: "BTC-USD"},
	},
	"bitstamp": {
		model.SymbolBTCUSD: {ws: "btcusd", rest: "btcusd"},
	},
	"kraken": {
		model.SymbolBTCUSD: {ws: "XBT/USD", rest: "XXBTZUSD"},
		model.SymbolBTCEUR: {ws: "XBT/EUR", rest: "XXBTZEUR"},
	},
	"bitvavo": {
		model.SymbolBTCEUR: {ws: "BTC-EUR", rest: "BTC-EUR"},
	},
}

// WSSymbol returns the venue's native WebSocket symbol spelling for a
// canonical symbol. ok is false if the venue does not support the symbol.
func WSSymbol(venue string, symbol model.Symbol) (string, bool) {
	e, ok := table[venue][symbol]
	return e.ws, ok
}

// RESTSymbol returns the venue's native REST symbol spelling for a
// canonical symbol. ok is false if the venue does not support the symbol.
func RESTSymbol(venue string, symbol model.Symbol) (string, bool) {
	e, ok := table[venue][symbol]
	return e.rest, ok
}

// Supports reports whether venue has any mapping for symbol.
func Supports(venue string, symbol model.Symbol) bool {
	_, ok := table[venue][symbol]
	return ok
}

// VenuesFor returns the set of venue names configured for a canonical
// symbol, in the preference order the controller's adapter-set table
// requires.
func VenuesFor(symbol model.Symbol) []string {
	switch symbol {
	case model.SymbolBTCUSDT:
		return []string{"binance", "okx", "bitget"}
	case model.SymbolBTCUSD:
		return []string{"coinbase", "bitstamp", "kraken"}
	case model.SymbolBTCEUR:
		return []string{"kraken", "bitvavo"}
	default:
		return nil
	}
}
