// Package aggregator implements the rolling trade aggregator: a 250ms-tick
// queue-drain-and-fold loop producing VWAP/volume/last-price buckets with a
// bounded late-trade amend window. An intake path folds trades into an
// in-progress builder using fixed-point accumulators keyed by an explicit
// bucket-open second, while a periodic ticker finalizes expired buckets.
package aggregator

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"cryptotick/internal/fx"
	"cryptotick/internal/model"
)

// maxQueueDepth bounds the intake queue: under sustained overload, drop
// the oldest trade and count it rather than growing without bound.
const maxQueueDepth = 65536

// TickInterval is the fixed cadence at which enqueued trades are drained,
// folded, and checked for bucket-close emission.
const TickInterval = 250 * time.Millisecond

// amendGrace is the post-close window during which a late trade for the
// most recently emitted bucket still produces an amend.
const amendGrace = 2 * time.Second

// sanityWindow discards trades with timestamps further in the past than
// this, as a filter against corrupt or grossly misaligned venue clocks.
const sanityWindow = 7 * 24 * time.Hour

// Aggregator accumulates NormalizedTrades for one (symbol, timeframe) pair
// and emits AggregatedDataPoint values through OnEmit at each tick where a
// bucket closes or an amend applies. One instance exists per active
// (symbol, timeframe); changing either destroys this instance and starts a
// fresh one rather than resetting state in place.
type Aggregator struct {
	symbol model.Symbol
	tfSec  int64
	tf     model.Timeframe
	onEmit func(model.AggregatedDataPoint)
	logger *zap.Logger
	nowFn  func() time.Time

	mu            sync.Mutex
	queue         []model.NormalizedTrade
	dropped       uint64
	sanityDropped uint64

	bucketOpenS int64
	pvSum       fx.Fx
	vSum        fx.Fx
	lastPrice   fx.Fx
	haveBucket  bool

	// lastBucket* holds the sums behind the most recently closed bucket
	// separately from the in-progress one above, so a late trade arriving
	// inside the amend grace window can extend them and re-emit without
	// disturbing the bucket that has already started accumulating.
	lastBucketOpenS int64
	lastPvSum       fx.Fx
	lastVSum        fx.Fx
	haveLastBucket  bool

	lastEmitted   *model.AggregatedDataPoint
	lastEmittedAt time.Time
}

// New creates an Aggregator for symbol/timeframe. onEmit is invoked
// synchronously from within Tick; callers needing async dispatch should
// make onEmit non-blocking themselves.
func New(symbol model.Symbol, tf model.Timeframe, onEmit func(model.AggregatedDataPoint), logger *zap.Logger) *Aggregator {
	return &Aggregator{
		symbol: symbol,
		tfSec:  tf.Seconds(),
		tf:     tf,
		onEmit: onEmit,
		logger: logger.Named("aggregator").With(zap.String("symbol", string(symbol)), zap.String("timeframe", string(tf))),
		nowFn:  time.Now,
	}
}

// Enqueue appends a trade to the intake queue. Non-blocking; may be called
// concurrently with Tick. Drops the oldest queued trade and counts it if
// the queue is at capacity.
func (a *Aggregator) Enqueue(trade model.NormalizedTrade) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.queue) >= maxQueueDepth {
		a.queue = a.queue[1:]
		a.dropped++
	}
	a.queue = append(a.queue, trade)
}

// DroppedCount reports how many trades have been dropped for queue
// overflow since construction.
func (a *Aggregator) DroppedCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// SanityDroppedCount reports how many trades have been discarded by the
// sanity-window filter (a timestamp further in the past than sanityWindow)
// since construction.
func (a *Aggregator) SanityDroppedCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sanityDropped
}

// Tick drains the queue and folds each trade in arrival order, emitting
// through onEmit wherever the fold rules call for it. Intended to be
// called every TickInterval.
func (a *Aggregator) Tick() {
	a.mu.Lock()
	batch := a.queue
	a.queue = nil
	a.mu.Unlock()

	now := a.nowFn()
	cutoff := now.Add(-sanityWindow)

	var stale uint64
	for _, trade := range batch {
		ts := time.Unix(0, trade.TimestampUTCNano)
		if ts.Before(cutoff) {
			stale++
			continue
		}
		a.fold(trade, now)
	}
	if stale > 0 {
		a.mu.Lock()
		a.sanityDropped += stale
		a.mu.Unlock()
	}

	a.maybeEmitOnBoundary(now)
}

func (a *Aggregator) fold(trade model.NormalizedTrade, now time.Time) {
	tsS := trade.TimestampUTCNano / int64(time.Second)
	bucketOpen := model.BucketOpen(tsS, a.tfSec)

	if a.tryAmend(trade, bucketOpen, now) {
		return
	}

	if a.haveBucket && bucketOpen < a.bucketOpenS {
		// Older than the in-progress bucket and missed the amend grace
		// window above: too late to fold without polluting a bucket that
		// has already moved on. Still worth tracking as the latest price.
		a.lastPrice = trade.Price
		return
	}

	if !a.haveBucket || bucketOpen > a.bucketOpenS {
		a.bucketOpenS = bucketOpen
		a.pvSum = 0
		a.vSum = 0
		a.haveBucket = true
	}

	a.pvSum += fx.Mul(trade.Price, trade.Size)
	a.vSum += trade.Size
	a.lastPrice = trade.Price

	a.maybeEmitOnBoundary(now)
}

// tryAmend handles a trade whose bucket matches the last-emitted bucket,
// arriving within the 2s grace window after that bucket's close: it folds
// the trade into the closed bucket's sums and re-emits with Amend=true.
// Returns false if the trade belongs to an older bucket or arrived past
// the grace window.
func (a *Aggregator) tryAmend(trade model.NormalizedTrade, bucketOpen int64, now time.Time) bool {
	if !a.haveLastBucket || bucketOpen != a.lastBucketOpenS {
		return false
	}
	closeAt := time.Unix(a.lastBucketOpenS+a.tfSec, 0)
	if now.Sub(closeAt) > amendGrace {
		return false
	}

	a.lastPvSum += fx.Mul(trade.Price, trade.Size)
	a.lastVSum += trade.Size
	a.lastPrice = trade.Price

	vwap := trade.Price
	if a.lastVSum > 0 {
		vwap = fx.Div(a.lastPvSum, a.lastVSum)
	}
	point := model.AggregatedDataPoint{
		Symbol:        a.symbol,
		Timeframe:     a.tf,
		TimestampUTCS: a.lastBucketOpenS,
		VWAP:          vwap,
		Volume:        a.lastVSum,
		LastPrice:     trade.Price,
		Amend:         true,
	}
	a.lastEmitted = &point
	a.lastEmittedAt = now
	a.onEmit(point)
	return true
}

// maybeEmitOnBoundary emits the current bucket (amend=false) once
// wall-clock time has advanced past its close.
func (a *Aggregator) maybeEmitOnBoundary(now time.Time) {
	if !a.haveBucket {
		return
	}
	if now.Unix() < a.bucketOpenS+a.tfSec {
		return
	}

	vwap := a.lastPrice
	if a.vSum > 0 {
		vwap = fx.Div(a.pvSum, a.vSum)
	}
	point := model.AggregatedDataPoint{
		Symbol:        a.symbol,
		Timeframe:     a.tf,
		TimestampUTCS: a.bucketOpenS,
		VWAP:          vwap,
		Volume:        a.vSum,
		LastPrice:     a.lastPrice,
		Amend:         false,
	}
	a.lastEmitted = &point
	a.lastEmittedAt = now

	a.lastBucketOpenS = a.bucketOpenS
	a.lastPvSum = a.pvSum
	a.lastVSum = a.vSum
	a.haveLastBucket = true

	a.bucketOpenS += a.tfSec
	a.pvSum = 0
	a.vSum = 0
	// last_price is preserved intentionally so an empty next bucket's
	// vwap still resolves to the preceding price.

	a.onEmit(point)
}
