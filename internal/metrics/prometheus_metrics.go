// Package metrics exposes this worker's Prometheus registry and HTTP
// exporter: CounterVec/GaugeVec/HistogramVec families registered up front,
// served from a /metrics+/health mux, covering trade ingestion,
// aggregation, backfill, and supervisor state.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds every Prometheus metric this worker exports.
type Metrics struct {
	TradesIngested      *prometheus.CounterVec
	TradesDropped       *prometheus.CounterVec
	AggregatesEmitted   *prometheus.CounterVec
	AggregatorQueueDrop *prometheus.CounterVec

	ConnectionStatus    *prometheus.GaugeVec
	ConnectionLatencyMs *prometheus.GaugeVec
	ReconnectsTotal     *prometheus.CounterVec
	BackoffSeconds      *prometheus.HistogramVec

	BackfillRequests *prometheus.CounterVec
	BackfillLatency  *prometheus.HistogramVec
	BackfillCandles  *prometheus.CounterVec

	CommandsHandled *prometheus.CounterVec

	logger *zap.Logger
	server *http.Server
}

// New constructs and registers every metric family against the default
// Prometheus registry.
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		logger: logger.Named("metrics"),

		TradesIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptotick_trades_ingested_total",
				Help: "Total normalized trades ingested per venue and symbol",
			},
			[]string{"venue", "symbol"},
		),
		TradesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptotick_trades_dropped_total",
				Help: "Total trades dropped by the sanity filter or parse failures",
			},
			[]string{"venue", "reason"},
		),
		AggregatesEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptotick_aggregates_emitted_total",
				Help: "Total AggregatedDataPoint events emitted",
			},
			[]string{"symbol", "timeframe", "amend"},
		),
		AggregatorQueueDrop: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptotick_aggregator_queue_drops_total",
				Help: "Total trades dropped for aggregator intake queue overflow",
			},
			[]string{"symbol", "timeframe"},
		),

		ConnectionStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cryptotick_connection_status",
				Help: "Venue connection status (1=connected, 0=disconnected)",
			},
			[]string{"venue"},
		),
		ConnectionLatencyMs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cryptotick_connection_latency_ms",
				Help: "Estimated time since last ingested frame, in milliseconds",
			},
			[]string{"venue"},
		),
		ReconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptotick_reconnects_total",
				Help: "Total supervisor reconnect attempts per venue",
			},
			[]string{"venue"},
		),
		BackoffSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptotick_backoff_seconds",
				Help:    "Distribution of supervisor backoff sleep durations",
				Buckets: []float64{0.5, 1, 2, 4, 8, 15, 30},
			},
			[]string{"venue"},
		),

		BackfillRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptotick_backfill_requests_total",
				Help: "Total backfill requests by symbol and timeframe",
			},
			[]string{"symbol", "timeframe"},
		),
		BackfillLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptotick_backfill_latency_seconds",
				Help:    "Backfill request latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"venue"},
		),
		BackfillCandles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptotick_backfill_candles_total",
				Help: "Total candles returned by backfill requests",
			},
			[]string{"symbol", "timeframe"},
		),

		CommandsHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptotick_commands_handled_total",
				Help: "Total message-port commands handled by type and outcome",
			},
			[]string{"type", "outcome"},
		),
	}

	prometheus.MustRegister(
		m.TradesIngested,
		m.TradesDropped,
		m.AggregatesEmitted,
		m.AggregatorQueueDrop,
		m.ConnectionStatus,
		m.ConnectionLatencyMs,
		m.ReconnectsTotal,
		m.BackoffSeconds,
		m.BackfillRequests,
		m.BackfillLatency,
		m.BackfillCandles,
		m.CommandsHandled,
	)

	return m
}

// Start begins serving /metrics and /health on addr.
func (m *Metrics) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	m.server = &http.Server{Addr: addr, Handler: mux}
	m.logger.Info("starting metrics server", zap.String("addr", addr))

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts down the metrics HTTP server.
func (m *Metrics) Stop() error {
	if m.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}
