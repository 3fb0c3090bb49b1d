// Package backfill implements the historical-candle planner: venue
// selection per canonical symbol, a native-granularity-first fetch, and a
// 1-minute-candle up-aggregation fallback when the selected venue has no
// native bar at the requested timeframe. Results are returned directly
// rather than stored as a side effect, since the caller streams them over
// the message port.
package backfill

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cryptotick/internal/candles"
	"cryptotick/internal/exchanges"
	"cryptotick/internal/model"
)

// VenueOrder returns the preference-ordered venue list for a canonical
// symbol.
func VenueOrder(symbol model.Symbol) []string {
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

// Planner resolves a backfill request against the first available venue
// adapter for the requested symbol, falling back to up-aggregating native
// 1-minute candles when the venue lacks the requested granularity natively.
type Planner struct {
	adapters map[string]exchanges.Adapter
	logger   *zap.Logger
}

// New builds a Planner over the given venue->adapter registry.
func New(adapters map[string]exchanges.Adapter, logger *zap.Logger) *Planner {
	return &Planner{adapters: adapters, logger: logger.Named("backfill")}
}

// Fetch resolves (symbol, timeframe, start, end) to a set of ascending
// candles labelled with the requested timeframe, trying registered venues
// in preference order and moving on to the next one when both the native
// fetch and the 1m fallback fail.
func (p *Planner) Fetch(ctx context.Context, symbol model.Symbol, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	var lastErr error
	for _, venue := range VenueOrder(symbol) {
		adapter, ok := p.adapters[venue]
		if !ok {
			continue
		}

		result, err := adapter.FetchHistoricalCandles(ctx, symbol, tf, start, end)
		if err == nil {
			return result, nil
		}
		lastErr = err
		p.logger.Debug("native fetch unavailable, trying 1m fallback", zap.String("venue", venue), zap.Error(err))

		oneMin, err1m := adapter.FetchHistoricalCandles(ctx, symbol, model.TF1m, start, end)
		if err1m != nil {
			lastErr = err1m
			continue
		}
		return candles.UpAggregate(oneMin, tf), nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("backfill: no adapter registered for %s", symbol)
	}
	// A failed REST fetch yields an empty candle set and a successful ack,
	// not a propagated error.
	p.logger.Warn("backfill exhausted all venues", zap.String("symbol", string(symbol)), zap.Error(lastErr))
	return nil, nil
}
