package exchanges

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cryptotick/internal/model"
)

// State is one of the five supervisor states.
type State string

const (
	StateConnecting  State = "connecting"
	StateSubscribing State = "subscribing"
	StateStreaming   State = "streaming"
	StateBackoff     State = "backoff"
	StateTerminal    State = "terminal"
)

// Supervisor runs the connect/resubscribe/backoff/inactivity-timeout loop
// for a single venue+symbol pair, driving an arbitrary VenueDriver through
// a five-state machine with fixed timings: ping every 15s, inactivity
// close after 30s silence, status beacon every 1s, backoff
// min(30s, 0.5*2^n) with +/-10% jitter.
type Supervisor struct {
	driver VenueDriver
	symbol model.Symbol
	sink   EventSink
	logger *zap.Logger

	mu         sync.RWMutex
	state      State
	conn       *websocket.Conn
	backoffN   int
	stopped    bool

	lastIngest atomic.Int64 // unix nanoseconds

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor constructs a supervisor for driver, not yet started.
func NewSupervisor(driver VenueDriver, symbol model.Symbol, sink EventSink, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		driver: driver,
		symbol: symbol,
		sink:   sink,
		logger: logger.Named("supervisor").With(zap.String("venue", driver.Venue()), zap.String("symbol", string(symbol))),
		state:  StateConnecting,
		done:   make(chan struct{}),
	}
}

// Start begins the supervisor loop in its own goroutine.
func (s *Supervisor) Start() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.run()
}

// Disconnect requests termination. Idempotent: calling it twice, or
// calling it before Start, is safe. Blocks until the WebSocket and timers
// have been released.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-s.done
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the current supervisor state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) run() {
	defer close(s.done)
	defer s.teardown()

	for {
		if s.ctx.Err() != nil {
			s.setState(StateTerminal)
			return
		}

		switch s.State() {
		case StateConnecting:
			conn, err := s.driver.Dial(s.ctx, s.symbol)
			if err != nil {
				if s.ctx.Err() != nil {
					s.setState(StateTerminal)
					return
				}
				s.logger.Warn("dial failed", zap.Error(err))
				s.setState(StateBackoff)
				continue
			}
			s.mu.Lock()
			s.conn = conn
			s.mu.Unlock()
			s.lastIngest.Store(time.Now().UnixNano())
			s.setState(StateSubscribing)

		case StateSubscribing:
			frames, err := s.driver.SubscribeFrames(s.symbol)
			if err != nil {
				s.logger.Warn("subscribe frame build failed", zap.Error(err))
				s.closeConn()
				s.setState(StateBackoff)
				continue
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			subscribeFailed := false
			for _, f := range frames {
				if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
					s.logger.Warn("subscribe write failed", zap.Error(err))
					subscribeFailed = true
					break
				}
			}
			if subscribeFailed {
				s.closeConn()
				s.setState(StateBackoff)
				continue
			}
			s.setState(StateStreaming)
			s.sink.OnConnectionChange(s.driver.Venue(), true)

		case StateStreaming:
			s.streamSession()
			s.sink.OnConnectionChange(s.driver.Venue(), false)
			if s.ctx.Err() != nil {
				s.setState(StateTerminal)
				return
			}
			s.setState(StateBackoff)

		case StateBackoff:
			if !s.sleepBackoff() {
				s.setState(StateTerminal)
				return
			}
			s.setState(StateConnecting)

		case StateTerminal:
			return
		}
	}
}

// streamSession runs the Streaming state: periodic inactivity check,
// periodic status beacon, and the blocking read loop, all scoped to one
// sub-context that ends when the connection drops or the supervisor is
// asked to stop.
func (s *Supervisor) streamSession() {
	subCtx, subCancel := context.WithCancel(s.ctx)
	defer subCancel()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.inactivityLoop(subCtx)
	}()
	go func() {
		defer wg.Done()
		s.statusBeacon(subCtx)
	}()

	s.readLoop(subCtx)
	subCancel()
	wg.Wait()
	s.closeConn()
}

func (s *Supervisor) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(InactivityCheckEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastIngest.Load())
			if time.Since(last) > InactivityTimeout {
				s.logger.Warn("inactivity timeout, forcing reconnect")
				s.closeConn()
				return
			}
		}
	}
}

func (s *Supervisor) statusBeacon(ctx context.Context) {
	ticker := time.NewTicker(StatusBeaconEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			last := s.lastIngest.Load()
			latencyMs := (now.UnixNano() - last) / int64(time.Millisecond)
			if latencyMs < 0 {
				latencyMs = 0
			}
			s.sink.OnStatus(model.ConnectionStatus{
				Venue:             s.driver.Venue(),
				Connected:         true,
				LastIngestUTCNano: last,
				LatencyMsEstimate: latencyMs,
			})
		}
	}
}

// readLoop blocks reading frames until the connection errors, EOF, or the
// context is cancelled. The first frame received in this session resets
// the backoff sequence, so a brief disconnect doesn't escalate the delay
// for a connection that is otherwise healthy.
func (s *Supervisor) readLoop(ctx context.Context) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	resetDone := false
	pingTicker := time.NewTicker(PingInterval)
	defer pingTicker.Stop()

	msgCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case msgCh <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			s.logger.Debug("read error", zap.Error(err))
			return
		case <-pingTicker.C:
			_ = conn.WriteMessage(websocket.PingMessage, nil)
		case data := <-msgCh:
			s.lastIngest.Store(time.Now().UnixNano())
			if !resetDone {
				s.mu.Lock()
				s.backoffN = 0
				s.mu.Unlock()
				resetDone = true
			}
			trades, err := s.driver.ParseMessage(data)
			if err != nil || trades == nil {
				continue
			}
			for _, t := range trades {
				s.sink.OnTrade(t)
			}
		}
	}
}

// sleepBackoff waits min(30s, 0.5*2^n) +/-10% jitter, then increments n.
// Returns false if the context was cancelled during the wait.
func (s *Supervisor) sleepBackoff() bool {
	s.mu.Lock()
	n := s.backoffN
	s.backoffN++
	s.mu.Unlock()

	d := time.Duration(float64(BackoffBase) * pow2(n))
	if d > BackoffCap {
		d = BackoffCap
	}
	jitter := (rand.Float64()*2 - 1) * BackoffJitter
	d = time.Duration(float64(d) * (1 + jitter))
	if d < 0 {
		d = 0
	}

	s.logger.Debug("backoff", zap.Duration("delay", d), zap.Int("attempt", n))

	select {
	case <-time.After(d):
		return true
	case <-s.ctx.Done():
		return false
	}
}

func pow2(n int) float64 {
	if n < 0 {
		return 1
	}
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
		if v*float64(BackoffBase) >= float64(BackoffCap) {
			return v
		}
	}
	return v
}

func (s *Supervisor) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
}

func (s *Supervisor) teardown() {
	s.closeConn()
}
