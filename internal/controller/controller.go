// Package controller owns the worker's mutable selection state (symbol,
// timeframe), the live venue supervisors and aggregator for that
// selection, and the command dispatch table: init, setSymbol,
// setTimeframe, backfill, shutdown. One struct owns the supervised
// connections and the aggregator, and tears a live selection down and
// stands a new one up in place rather than holding a fixed-at-startup
// connector set.
package controller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cryptotick/internal/aggregator"
	"cryptotick/internal/backfill"
	"cryptotick/internal/exchanges"
	"cryptotick/internal/metrics"
	"cryptotick/internal/model"
	"cryptotick/internal/momentum"
	"cryptotick/internal/port"
	"cryptotick/internal/publisher"
	"cryptotick/internal/statestore"
	"cryptotick/internal/symbols"
)

// Controller wires one live (symbol, timeframe) selection to its venue
// supervisors, aggregator, and momentum watcher, and tears the old
// selection down before standing up a new one on setSymbol/setTimeframe.
type Controller struct {
	logger          *zap.Logger
	writer          *port.Writer
	defaultStateDir string
	defaultSymbol   model.Symbol
	defaultTF       model.Timeframe
	planner         *backfill.Planner
	mirror          *publisher.RedisMirror
	metrics         *metrics.Metrics
	watcher         *momentum.Watcher

	adapterFactory map[string]func() exchanges.Adapter

	mu          sync.Mutex
	store       *statestore.Store
	symbol      model.Symbol
	timeframe   model.Timeframe
	supervisors []*exchanges.Supervisor
	tickerStop  chan struct{}
	initialized bool

	// agg is read by OnTrade off the venue supervisors' own goroutines and
	// must never require c.mu: Supervisor.Disconnect blocks waiting for
	// those goroutines to exit, so a concurrent OnTrade blocked on c.mu
	// while stopSelectionLocked holds it (and is itself waiting on
	// Disconnect) would deadlock the whole controller.
	agg atomic.Pointer[aggregator.Aggregator]
}

// New constructs a Controller. adapterFactory maps venue name to a
// constructor so every selection started later runs on fresh adapter
// instances.
// defaultStateDir is used when an init command omits stateDirPath;
// defaultSymbol/defaultTF seed a fresh (no persisted state) selection.
func New(
	writer *port.Writer,
	defaultStateDir string,
	defaultSymbol model.Symbol,
	defaultTF model.Timeframe,
	planner *backfill.Planner,
	mirror *publisher.RedisMirror,
	m *metrics.Metrics,
	watcher *momentum.Watcher,
	adapterFactory map[string]func() exchanges.Adapter,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		logger:          logger.Named("controller"),
		writer:          writer,
		defaultStateDir: defaultStateDir,
		defaultSymbol:   defaultSymbol,
		defaultTF:       defaultTF,
		planner:         planner,
		mirror:          mirror,
		metrics:         m,
		watcher:         watcher,
		adapterFactory:  adapterFactory,
	}
}

// Handle dispatches one inbound command, writing its ack/error/event
// output via the port.Writer. It never returns an error itself: every
// failure path is surfaced as a protocol-level error envelope.
func (c *Controller) Handle(ctx context.Context, cmd port.Command) (shutdown bool) {
	outcome := "ok"
	defer func() {
		if c.metrics != nil {
			c.metrics.CommandsHandled.WithLabelValues(cmd.Type, outcome).Inc()
		}
	}()

	switch cmd.Type {
	case port.CmdInit:
		c.handleInit(cmd)
	case port.CmdSetSymbol:
		if !c.handleSetSymbol(cmd) {
			outcome = "error"
		}
	case port.CmdSetTimeframe:
		if !c.handleSetTimeframe(cmd) {
			outcome = "error"
		}
	case port.CmdBackfill:
		c.handleBackfill(ctx, cmd)
	case port.CmdShutdown:
		c.handleShutdown(cmd)
		return true
	default:
		outcome = "error"
		c.writeErr(cmd.ReqID, port.ErrUnknownCmd, fmt.Sprintf("unknown command %q", cmd.Type))
	}
	return false
}

func (c *Controller) writeErr(reqID, code, msg string) {
	if err := c.writer.WriteError(reqID, code, msg); err != nil {
		c.logger.Error("failed to write error envelope", zap.Error(err))
	}
}

func (c *Controller) writeAck(reqID string, data interface{}) {
	if err := c.writer.WriteAck(reqID, data); err != nil {
		c.logger.Error("failed to write ack envelope", zap.Error(err))
	}
}

// handleInit resolves the starting selection: the persisted selection at
// stateDirPath if one exists and is still valid, else the configured
// default, then stands up the venue set for it.
func (c *Controller) handleInit(cmd port.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		c.writeErr(cmd.ReqID, port.ErrInternal, "already initialized")
		return
	}

	dir := cmd.StateDirPath
	if dir == "" {
		dir = c.defaultStateDir
	}
	c.store = statestore.New(dir, c.logger)
	if cmd.Debug {
		c.logger.Debug("init requested debug mode", zap.String("stateDirPath", dir))
	}

	symbol, tf := c.defaultSymbol, c.defaultTF
	if savedSym, savedTf, _ := c.store.Load(); savedSym != nil || savedTf != nil {
		if savedSym != nil {
			symbol = *savedSym
		}
		if savedTf != nil {
			tf = *savedTf
		}
	}

	c.startSelectionLocked(symbol, tf)
	c.initialized = true
	c.writeAck(cmd.ReqID, map[string]interface{}{
		"for": port.CmdInit, "ok": true,
		"symbol": string(symbol), "timeframe": string(tf),
	})
}

func (c *Controller) handleSetSymbol(cmd port.Command) bool {
	symbol := model.Symbol(cmd.Symbol)
	if !symbol.IsValid() {
		c.writeErr(cmd.ReqID, port.ErrInvalidArg, fmt.Sprintf("unsupported symbol %q", cmd.Symbol))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		c.writeErr(cmd.ReqID, port.ErrUnavailable, "controller not initialized")
		return false
	}
	tf := c.timeframe
	c.stopSelectionLocked()
	c.startSelectionLocked(symbol, tf)
	c.writeAck(cmd.ReqID, map[string]interface{}{"for": port.CmdSetSymbol, "ok": true})
	return true
}

func (c *Controller) handleSetTimeframe(cmd port.Command) bool {
	tf := model.Timeframe(cmd.Timeframe)
	if !tf.IsValid() {
		c.writeErr(cmd.ReqID, port.ErrInvalidArg, fmt.Sprintf("unsupported timeframe %q", cmd.Timeframe))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		c.writeErr(cmd.ReqID, port.ErrUnavailable, "controller not initialized")
		return false
	}
	symbol := c.symbol
	// A timeframe change only needs a new aggregator; the venue
	// connections stay up since the trade stream is unaffected.
	c.stopAggregatorLocked()
	c.startAggregatorLocked(symbol, tf)
	c.timeframe = tf
	if err := c.store.Save(symbol, tf); err != nil {
		c.logger.Warn("failed to persist selection", zap.Error(err))
	}
	c.writeAck(cmd.ReqID, map[string]interface{}{"for": port.CmdSetTimeframe, "ok": true})
	return true
}

// handleBackfill resolves an omitted symbol/timeframe to the current
// selection, parses the RFC3339 window, and fetches candles via the
// planner.
func (c *Controller) handleBackfill(ctx context.Context, cmd port.Command) {
	c.mu.Lock()
	symbol := c.symbol
	tf := c.timeframe
	c.mu.Unlock()
	if cmd.Symbol != "" {
		symbol = model.Symbol(cmd.Symbol)
	}
	if cmd.Timeframe != "" {
		tf = model.Timeframe(cmd.Timeframe)
	}
	if !symbol.IsValid() || !tf.IsValid() {
		c.writeErr(cmd.ReqID, port.ErrInvalidArg, "backfill requires a valid symbol and timeframe")
		return
	}

	start, err := time.Parse(time.RFC3339, cmd.StartIso)
	if err != nil {
		c.writeErr(cmd.ReqID, port.ErrInvalidArg, "startIso is not a valid RFC3339 timestamp")
		return
	}
	end, err := time.Parse(time.RFC3339, cmd.EndIso)
	if err != nil {
		c.writeErr(cmd.ReqID, port.ErrInvalidArg, "endIso is not a valid RFC3339 timestamp")
		return
	}
	if !end.After(start) {
		c.writeErr(cmd.ReqID, port.ErrInvalidArg, "backfill requires startIso < endIso")
		return
	}
	start, end = start.UTC(), end.UTC()

	timer := prometheusTimer(c.metrics)
	candles, err := c.planner.Fetch(ctx, symbol, tf, start, end)
	timer()
	if c.metrics != nil {
		c.metrics.BackfillRequests.WithLabelValues(string(symbol), string(tf)).Inc()
		c.metrics.BackfillCandles.WithLabelValues(string(symbol), string(tf)).Add(float64(len(candles)))
	}
	if err != nil {
		// A resolvable backfill failure still yields a successful ack with
		// an empty result, never an error envelope.
		c.logger.Warn("backfill planner returned an error", zap.Error(err))
		candles = nil
	}

	if venue, ok := primaryVenue(symbol); ok && c.mirror != nil {
		_ = c.mirror.CacheBackfill(ctx, venue, symbol, tf, candles)
	}

	if err := c.writer.WriteEvent(port.Envelope{Type: port.EventCandle, Data: candles, ReqID: cmd.ReqID}); err != nil {
		c.logger.Error("failed to write candle envelope", zap.Error(err))
	}
	c.writeAck(cmd.ReqID, map[string]interface{}{"for": port.CmdBackfill, "ok": true, "count": len(candles)})
}

func prometheusTimer(m *metrics.Metrics) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.BackfillLatency.WithLabelValues("planner").Observe(time.Since(start).Seconds())
	}
}

func primaryVenue(symbol model.Symbol) (string, bool) {
	order := backfill.VenueOrder(symbol)
	if len(order) == 0 {
		return "", false
	}
	return order[0], true
}

func (c *Controller) handleShutdown(cmd port.Command) {
	c.mu.Lock()
	c.stopSelectionLocked()
	c.mu.Unlock()
	c.writeAck(cmd.ReqID, map[string]interface{}{"for": port.CmdShutdown, "ok": true})
}

// startSelectionLocked stands up the adapter set and aggregator for
// (symbol, tf) and persists the selection. Caller holds c.mu.
func (c *Controller) startSelectionLocked(symbol model.Symbol, tf model.Timeframe) {
	c.symbol = symbol
	c.timeframe = tf

	for _, venue := range symbols.VenuesFor(symbol) {
		factory, ok := c.adapterFactory[venue]
		if !ok {
			continue
		}
		sup := exchanges.NewSupervisor(factory(), symbol, c, c.logger)
		sup.Start()
		c.supervisors = append(c.supervisors, sup)
	}

	c.startAggregatorLocked(symbol, tf)

	if err := c.store.Save(symbol, tf); err != nil {
		c.logger.Warn("failed to persist selection", zap.Error(err))
	}
}

func (c *Controller) startAggregatorLocked(symbol model.Symbol, tf model.Timeframe) {
	if c.watcher != nil {
		c.watcher.Reset(symbol, tf)
	}
	agg := aggregator.New(symbol, tf, c.onAggregate, c.logger)
	c.agg.Store(agg)
	c.tickerStop = make(chan struct{})
	go c.tickLoop(agg, symbol, tf, c.tickerStop)
}

func (c *Controller) tickLoop(agg *aggregator.Aggregator, symbol model.Symbol, tf model.Timeframe, stop chan struct{}) {
	ticker := time.NewTicker(aggregator.TickInterval)
	defer ticker.Stop()
	var lastQueueDrop, lastSanityDrop uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			agg.Tick()
			if c.metrics == nil {
				continue
			}
			if dropped := agg.DroppedCount(); dropped > lastQueueDrop {
				c.metrics.AggregatorQueueDrop.WithLabelValues(string(symbol), string(tf)).Add(float64(dropped - lastQueueDrop))
				lastQueueDrop = dropped
			}
			if dropped := agg.SanityDroppedCount(); dropped > lastSanityDrop {
				c.metrics.TradesDropped.WithLabelValues("all", "stale_timestamp").Add(float64(dropped - lastSanityDrop))
				lastSanityDrop = dropped
			}
		}
	}
}

func (c *Controller) onAggregate(point model.AggregatedDataPoint) {
	if c.metrics != nil {
		amend := "false"
		if point.Amend {
			amend = "true"
		}
		c.metrics.AggregatesEmitted.WithLabelValues(string(point.Symbol), string(point.Timeframe), amend).Inc()
	}
	if c.watcher != nil {
		c.watcher.OnAggregate(point)
	}
	if err := c.writer.WriteEvent(port.Envelope{Type: port.EventAggregated, Data: aggregatedJSON(point)}); err != nil {
		c.logger.Error("failed to write aggregated envelope", zap.Error(err))
	}
}

// aggregatedJSON renders the fixed-point fields as decimal strings for
// the wire, keeping model.AggregatedDataPoint's in-process fields as Fx.
func aggregatedJSON(p model.AggregatedDataPoint) map[string]interface{} {
	return map[string]interface{}{
		"symbol":        p.Symbol,
		"timeframe":     p.Timeframe,
		"timestampUtcS": p.TimestampUTCS,
		"vwap":          p.VWAP.String(),
		"volume":        p.Volume.String(),
		"lastPrice":     p.LastPrice.String(),
		"amend":         p.Amend,
	}
}

// stopSelectionLocked tears down every supervisor and the aggregator for
// the current selection. Caller holds c.mu.
func (c *Controller) stopSelectionLocked() {
	for _, sup := range c.supervisors {
		sup.Disconnect()
	}
	c.supervisors = nil
	c.stopAggregatorLocked()
}

func (c *Controller) stopAggregatorLocked() {
	if c.tickerStop != nil {
		close(c.tickerStop)
		c.tickerStop = nil
	}
	c.agg.Store(nil)
}

// --- exchanges.EventSink ---

func (c *Controller) OnTrade(trade model.NormalizedTrade) {
	agg := c.agg.Load()
	if agg == nil {
		return
	}
	if c.metrics != nil {
		c.metrics.TradesIngested.WithLabelValues(trade.Venue, string(trade.Symbol)).Inc()
	}
	agg.Enqueue(trade)
}

func (c *Controller) OnConnectionChange(venue string, connected bool) {
	if c.metrics != nil {
		v := 0.0
		if connected {
			v = 1.0
		} else {
			c.metrics.ReconnectsTotal.WithLabelValues(venue).Inc()
		}
		c.metrics.ConnectionStatus.WithLabelValues(venue).Set(v)
	}
	if err := c.writer.WriteEvent(port.Envelope{
		Type: port.EventStatus,
		Data: map[string]interface{}{"exchange": venue, "connected": connected},
	}); err != nil {
		c.logger.Error("failed to write status envelope", zap.Error(err))
	}
}

func (c *Controller) OnStatus(status model.ConnectionStatus) {
	if c.metrics != nil {
		c.metrics.ConnectionLatencyMs.WithLabelValues(status.Venue).Set(float64(status.LatencyMsEstimate))
	}
	if err := c.writer.WriteEvent(port.Envelope{
		Type: port.EventStatus,
		Data: map[string]interface{}{
			"exchange":          status.Venue,
			"connected":         status.Connected,
			"lastIngestUtcNs":   status.LastIngestUTCNano,
			"latencyMsEstimate": status.LatencyMsEstimate,
		},
	}); err != nil {
		c.logger.Error("failed to write status envelope", zap.Error(err))
	}
}
