package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cryptotick/internal/backfill"
	"cryptotick/internal/config"
	"cryptotick/internal/controller"
	"cryptotick/internal/exchanges"
	"cryptotick/internal/metrics"
	"cryptotick/internal/model"
	"cryptotick/internal/momentum"
	"cryptotick/internal/port"
	"cryptotick/internal/publisher"
	"cryptotick/pkg/broadcaster"
	redisclient "cryptotick/pkg/redis"
)

// Worker is the application: a message-port process that speaks
// length-delimited JSON over stdin/stdout, generalized from the
// teacher's P9MicroStream app struct (cmd/main.go) - the same
// initialize/start/waitForShutdown/shutdown lifecycle, with the
// teacher's fixed-at-startup WebSocket worker set replaced by the
// controller's runtime symbol/timeframe selection.
type Worker struct {
	config  *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	ctrl    *controller.Controller
	writer  *port.Writer
	debugBC *broadcaster.Broadcaster
	mirror  *publisher.RedisMirror

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml (omit to use built-in defaults)")
	flag.Parse()

	w := &Worker{}
	if err := w.initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := w.start(); err != nil {
		w.logger.Error("failed to start", zap.Error(err))
		os.Exit(1)
	}

	w.waitForShutdown()
	w.shutdown()
}

func (w *Worker) initialize(configPath string) error {
	var err error
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.logger, err = setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}

	if configPath == "" {
		w.config = config.Default()
	} else {
		loader := config.NewConfigLoader()
		w.config, err = loader.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	w.logger.Info("configuration loaded",
		zap.String("default_symbol", w.config.Defaults.Symbol),
		zap.String("default_timeframe", w.config.Defaults.Timeframe))

	if w.config.Metrics.Enabled {
		w.metrics = metrics.New(w.logger)
	}

	if w.config.Debug.Enabled {
		w.debugBC = broadcaster.NewBroadcaster(w.logger)
	}

	if w.config.Redis.Host != "" {
		rdb, err := redisclient.Dial(w.ctx, redisclient.ClientConfig{
			Host:     w.config.Redis.Host,
			Port:     w.config.Redis.Port,
			Password: w.config.Redis.Password,
			DB:       w.config.Redis.DB,
			PoolSize: w.config.Redis.PoolSize,
		}, w.logger)
		if err != nil {
			w.logger.Warn("redis unavailable, continuing without cache/mirror", zap.Error(err))
		} else {
			w.mirror = publisher.NewRedisMirror(rdb, w.config.Redis.CacheTTLHours, w.logger)
		}
	}

	stateDir := w.config.StateDir
	if stateDir == "" {
		stateDir = "."
	}

	defaultSymbol := model.Symbol(w.config.Defaults.Symbol)
	if !defaultSymbol.IsValid() {
		defaultSymbol = model.SymbolBTCUSDT
	}
	defaultTF := model.Timeframe(w.config.Defaults.Timeframe)
	if !defaultTF.IsValid() {
		defaultTF = model.TF1m
	}

	adapters := buildAdapters(w.config.Exchanges)
	adapterFactory := buildAdapterFactories(w.config.Exchanges)
	planner := backfill.New(adapters, w.logger)

	var watcher *momentum.Watcher
	if w.config.Momentum.Enabled {
		watcher = momentum.New(w.config.Momentum.LookbackBuckets, w.config.Momentum.ThresholdPercent, w.momentumAlert, w.logger)
	}

	w.writer = port.NewWriter(stdoutWriter())
	w.ctrl = controller.New(w.writer, stateDir, defaultSymbol, defaultTF, planner, w.mirror, w.metrics, watcher, adapterFactory, w.logger)

	return nil
}

func setupLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	// stdout is the message port itself; logs go to stderr so the two
	// streams never interleave.
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// stdoutWriter returns os.Stdout, the stream the message port is written
// to; it does not guard against other writes to stdout.
func stdoutWriter() io.Writer {
	return os.Stdout
}

func buildAdapters(cfg config.ExchangesConfig) map[string]exchanges.Adapter {
	m := make(map[string]exchanges.Adapter)
	if cfg.Binance {
		m["binance"] = exchanges.NewBinanceAdapter()
	}
	if cfg.OKX {
		m["okx"] = exchanges.NewOKXAdapter()
	}
	if cfg.Bitget {
		m["bitget"] = exchanges.NewBitgetAdapter()
	}
	if cfg.Coinbase {
		m["coinbase"] = exchanges.NewCoinbaseAdapter()
	}
	if cfg.Bitstamp {
		m["bitstamp"] = exchanges.NewBitstampAdapter()
	}
	if cfg.Kraken {
		m["kraken"] = exchanges.NewKrakenAdapter()
	}
	if cfg.Bitvavo {
		m["bitvavo"] = exchanges.NewBitvavoAdapter()
	}
	return m
}

// buildAdapterFactories mirrors buildAdapters but returns constructors:
// the controller needs a fresh adapter (and thus a fresh *websocket.Conn
// owner) every time a symbol is selected, since a venue's Supervisor owns
// its VenueDriver for the supervisor's lifetime.
func buildAdapterFactories(cfg config.ExchangesConfig) map[string]func() exchanges.Adapter {
	m := make(map[string]func() exchanges.Adapter)
	if cfg.Binance {
		m["binance"] = func() exchanges.Adapter { return exchanges.NewBinanceAdapter() }
	}
	if cfg.OKX {
		m["okx"] = func() exchanges.Adapter { return exchanges.NewOKXAdapter() }
	}
	if cfg.Bitget {
		m["bitget"] = func() exchanges.Adapter { return exchanges.NewBitgetAdapter() }
	}
	if cfg.Coinbase {
		m["coinbase"] = func() exchanges.Adapter { return exchanges.NewCoinbaseAdapter() }
	}
	if cfg.Bitstamp {
		m["bitstamp"] = func() exchanges.Adapter { return exchanges.NewBitstampAdapter() }
	}
	if cfg.Kraken {
		m["kraken"] = func() exchanges.Adapter { return exchanges.NewKrakenAdapter() }
	}
	if cfg.Bitvavo {
		m["bitvavo"] = func() exchanges.Adapter { return exchanges.NewBitvavoAdapter() }
	}
	return m
}

func (w *Worker) momentumAlert(alert momentum.Alert) {
	if err := w.writer.WriteEvent(port.Envelope{Type: port.EventMomentum, Data: alert}); err != nil {
		w.logger.Error("failed to write momentum envelope", zap.Error(err))
	}

	if w.debugBC == nil {
		return
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return
	}
	w.debugBC.Broadcast(data)
}

func (w *Worker) start() error {
	w.logger.Info("starting worker")

	if w.metrics != nil {
		if err := w.metrics.Start(w.config.Metrics.Addr); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	if w.debugBC != nil {
		go w.debugBC.Run()
		go w.startDebugServer()
	}

	go w.commandLoop()

	w.logger.Info("worker started", zap.Bool("metrics", w.metrics != nil), zap.Bool("debug", w.debugBC != nil))
	return nil
}

func (w *Worker) commandLoop() {
	reader := port.NewReader(os.Stdin)
	for {
		cmd, err := reader.ReadCommand()
		if err != nil {
			var decodeErr *port.DecodeError
			if errors.As(err, &decodeErr) {
				w.logger.Warn("dropping undecodable command frame", zap.Error(decodeErr.Err))
				if werr := w.writer.WriteError(decodeErr.ReqID, port.ErrBadPayload, "command payload did not decode"); werr != nil {
					w.logger.Error("failed to write error envelope", zap.Error(werr))
				}
				continue
			}
			w.logger.Info("message port closed, shutting down", zap.Error(err))
			w.cancel()
			return
		}
		if w.ctrl.Handle(w.ctx, cmd) {
			w.cancel()
			return
		}
	}
}

func (w *Worker) waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		w.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-w.ctx.Done():
		w.logger.Info("shutdown triggered by message port")
	}
}

func (w *Worker) shutdown() {
	w.logger.Info("shutting down")
	w.cancel()

	if w.metrics != nil {
		if err := w.metrics.Stop(); err != nil {
			w.logger.Error("error stopping metrics server", zap.Error(err))
		}
	}
	if w.mirror != nil {
		if err := w.mirror.Close(); err != nil {
			w.logger.Error("error closing redis mirror", zap.Error(err))
		}
	}

	w.logger.Info("shutdown complete")
}

// startDebugServer serves the debug WebSocket mirror, grounded on the
// teacher's startWebSocketServer (cmd/main.go): an Upgrader that accepts
// any origin, registers each client with the broadcaster, and blocks on
// ReadMessage solely to detect client disconnects.
func (w *Worker) startDebugServer() {
	upgrader := websocket.Upgrader{
		CheckOrigin:       func(r *http.Request) bool { return true },
		EnableCompression: true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			w.logger.Error("debug websocket upgrade failed", zap.Error(err))
			return
		}
		w.debugBC.Register(conn)
		defer w.debugBC.Unregister(conn)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	addr := w.config.Debug.Addr
	w.logger.Info("debug websocket mirror listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		w.logger.Error("debug server error", zap.Error(err))
	}
}
