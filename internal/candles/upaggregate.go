// Package candles implements the deterministic candle up-aggregator:
// rolling ascending-sorted candles of native granularity g into a target
// timeframe T that is an integer multiple of g, using a single
// bucket-keyed open=first/close=last/high=max/low=min/volume=sum reducer
// shared across every source venue.
package candles

import (
	"cryptotick/internal/fx"
	"cryptotick/internal/model"
)

// UpAggregate rolls ascending-sorted input candles of native granularity
// into target, relabeling every output row with target regardless of the
// native granularity used to build it. Input candles must already be
// sorted ascending by OpenTimeUTCS and share symbol; behavior is
// undefined otherwise.
func UpAggregate(input []model.Candle, target model.Timeframe) []model.Candle {
	if len(input) == 0 {
		return nil
	}
	targetSec := target.Seconds()
	if targetSec <= 0 {
		return nil
	}

	out := make([]model.Candle, 0, len(input))
	var cur *model.Candle
	var curBucket int64

	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}

	for _, c := range input {
		bucket := model.BucketOpen(c.OpenTimeUTCS, targetSec)
		if cur == nil || bucket != curBucket {
			flush()
			curBucket = bucket
			next := model.Candle{
				Symbol:       c.Symbol,
				Timeframe:    target,
				OpenTimeUTCS: bucket,
				Open:         c.Open,
				High:         c.High,
				Low:          c.Low,
				Close:        c.Close,
				Volume:       c.Volume,
			}
			cur = &next
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	flush()

	return out
}

// Validate reports whether c satisfies the OHLCV invariants:
// low <= min(open,close), high >= max(open,close), volume >= 0.
func Validate(c model.Candle) bool {
	minOC := c.Open
	if c.Close < minOC {
		minOC = c.Close
	}
	maxOC := c.Open
	if c.Close > maxOC {
		maxOC = c.Close
	}
	return c.Low <= minOC && c.High >= maxOC && c.Volume >= fx.Zero
}
