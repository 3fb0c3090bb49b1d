// Package momentum watches the aggregated VWAP stream for sudden price
// moves: a lookback window, a percent-move threshold, and a
// severity/confidence scoring pair, evaluated directly against the
// already-bucketed AggregatedDataPoint stream rather than maintaining its
// own price history and wall-clock windows.
package momentum

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"cryptotick/internal/fx"
	"cryptotick/internal/model"
)

// Alert is one momentum detection event.
type Alert struct {
	Symbol       model.Symbol    `json:"symbol"`
	Timeframe    model.Timeframe `json:"timeframe"`
	Direction    string          `json:"direction"`
	Severity     string          `json:"severity"`
	Confidence   float64         `json:"confidence"`
	PercentMove  float64         `json:"percentMove"`
	CurrentVWAP  string          `json:"currentVwap"`
	LookbackVWAP string          `json:"lookbackVwap"`
}

// Watcher tracks a rolling window of AggregatedDataPoint VWAPs for one
// symbol/timeframe pair and raises an Alert when the move across the
// window exceeds thresholdPercent.
type Watcher struct {
	lookback         int
	thresholdPercent float64
	onAlert          func(Alert)
	logger           *zap.Logger

	mu      sync.Mutex
	window  []fx.Fx
	symbol  model.Symbol
	tf      model.Timeframe
}

// New builds a Watcher. lookbackBuckets is the window width in emitted
// buckets (not wall-clock time, since bucket width varies with
// timeframe); thresholdPercent is the minimum absolute percent move
// across the window that raises an alert.
func New(lookbackBuckets int, thresholdPercent float64, onAlert func(Alert), logger *zap.Logger) *Watcher {
	if lookbackBuckets < 2 {
		lookbackBuckets = 2
	}
	return &Watcher{
		lookback:         lookbackBuckets,
		thresholdPercent: thresholdPercent,
		onAlert:          onAlert,
		logger:           logger.Named("momentum"),
	}
}

// Reset clears the window, called whenever the controller switches symbol
// or timeframe so a stale window from the previous selection never feeds
// a spurious alert.
func (w *Watcher) Reset(symbol model.Symbol, tf model.Timeframe) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.symbol = symbol
	w.tf = tf
	w.window = w.window[:0]
}

// OnAggregate feeds one emitted (non-amend) AggregatedDataPoint into the
// window and evaluates the spike condition.
func (w *Watcher) OnAggregate(point model.AggregatedDataPoint) {
	if point.Amend {
		// An amend revises the most recent bucket in place; it does not
		// advance the window.
		w.mu.Lock()
		if len(w.window) > 0 {
			w.window[len(w.window)-1] = point.VWAP
		}
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	w.window = append(w.window, point.VWAP)
	if len(w.window) > w.lookback {
		w.window = w.window[len(w.window)-w.lookback:]
	}
	full := len(w.window) == w.lookback
	var start, current fx.Fx
	if full {
		start = w.window[0]
		current = w.window[len(w.window)-1]
	}
	symbol, tf := w.symbol, w.tf
	w.mu.Unlock()

	if !full || start == 0 {
		return
	}

	percentMove := percentChange(start, current)
	if math.Abs(percentMove) < w.thresholdPercent {
		return
	}

	direction := "up"
	if percentMove < 0 {
		direction = "down"
	}

	alert := Alert{
		Symbol:       symbol,
		Timeframe:    tf,
		Direction:    direction,
		Severity:     severity(math.Abs(percentMove)),
		Confidence:   confidence(math.Abs(percentMove)),
		PercentMove:  percentMove,
		CurrentVWAP:  current.String(),
		LookbackVWAP: start.String(),
	}
	w.logger.Debug("momentum alert",
		zap.String("direction", alert.Direction),
		zap.String("severity", alert.Severity),
		zap.Float64("percentMove", alert.PercentMove))
	if w.onAlert != nil {
		w.onAlert(alert)
	}
}

func percentChange(start, current fx.Fx) float64 {
	if start == 0 {
		return 0
	}
	delta := current - start
	return (float64(delta) / float64(start)) * 100
}

func severity(absPercent float64) string {
	switch {
	case absPercent >= 5.0:
		return "high"
	case absPercent >= 2.0:
		return "medium"
	default:
		return "low"
	}
}

func confidence(absPercent float64) float64 {
	c := 0.5 + (absPercent-1.0)*0.1
	if c > 0.95 {
		return 0.95
	}
	if c < 0 {
		return 0
	}
	return c
}
