package shade

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/ble"
)

// Defaults applied when Options leaves a field unset.
const (
	defaultMaxAttempts    = 5
	defaultRetryDelay     = 5 * time.Second
	defaultConnectTimeout = 20 * time.Second
)

// State is the link state of one blind controller.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// Connector opens radio links. ble.Adapter satisfies it.
type Connector interface {
	Connect(ctx context.Context, p ble.Peripheral) (ble.Connection, error)
}

// Logger defines the logging interface used by a Shade.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Shade.
type Options struct {
	ID         string
	Peripheral ble.Peripheral
	Connector  Connector

	// Optional.
	Logger         Logger
	MaxAttempts    int
	RetryDelay     time.Duration
	ConnectTimeout time.Duration
}

// Shade is the control-layer component for one SOMA blind controller.
//
// It owns the radio link. The blind positioning protocol is not
// implemented; the shade only establishes and tracks the connection.
type Shade struct {
	id             string
	peripheral     ble.Peripheral
	connector      Connector
	logger         Logger
	maxAttempts    int
	retryDelay     time.Duration
	connectTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	conn      ble.Connection
	listeners []func(State)
}

// New creates a disconnected Shade.
func New(opts Options) (*Shade, error) {
	if opts.ID == "" {
		return nil, errors.New("id is required")
	}
	if opts.Peripheral == nil {
		return nil, errors.New("peripheral is required")
	}
	if opts.Connector == nil {
		return nil, errors.New("connector is required")
	}

	s := &Shade{
		id:             opts.ID,
		peripheral:     opts.Peripheral,
		connector:      opts.Connector,
		logger:         opts.Logger,
		maxAttempts:    opts.MaxAttempts,
		retryDelay:     opts.RetryDelay,
		connectTimeout: opts.ConnectTimeout,
		state:          StateDisconnected,
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.retryDelay <= 0 {
		s.retryDelay = defaultRetryDelay
	}
	if s.connectTimeout <= 0 {
		s.connectTimeout = defaultConnectTimeout
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// ID returns the device identity value.
func (s *Shade) ID() string {
	return s.id
}

// State returns the current link state.
func (s *Shade) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange registers fn for every state transition.
// fn runs on the shade's connect goroutine and must not block.
func (s *Shade) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Connect starts connecting in the background and returns immediately.
// It does nothing while connecting, connected or closed.
func (s *Shade) Connect() {
	s.mu.Lock()
	if s.state != StateDisconnected && s.state != StateFailed {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	listeners := s.snapshotListeners()
	s.wg.Add(1)
	s.mu.Unlock()

	notify(listeners, StateConnecting)
	go s.connectLoop()
}

func (s *Shade) connectLoop() {
	defer s.wg.Done()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(s.ctx, s.connectTimeout)
		conn, err := s.connector.Connect(ctx, s.peripheral)
		cancel()

		if err == nil {
			s.mu.Lock()
			if s.state == StateClosed {
				s.mu.Unlock()
				conn.Disconnect() //nolint:errcheck // closed while connecting
				return
			}
			s.conn = conn
			s.mu.Unlock()

			s.logger.Info("shade connected", "id", s.id, "attempt", attempt)
			s.setState(StateConnected)
			return
		}

		if s.ctx.Err() != nil {
			return
		}
		s.logger.Warn("shade connect failed", "id", s.id, "attempt", attempt, "max_attempts", s.maxAttempts, "error", err)

		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-time.After(s.retryDelay):
		case <-s.ctx.Done():
			return
		}
	}

	s.logger.Error("shade unreachable", "id", s.id, "attempts", s.maxAttempts)
	s.setState(StateFailed)
}

// setState records a transition and notifies listeners outside the lock.
func (s *Shade) setState(state State) {
	s.mu.Lock()
	if s.state == state || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = state
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners, state)
}

// snapshotListeners must be called with s.mu held.
func (s *Shade) snapshotListeners() []func(State) {
	listeners := make([]func(State), len(s.listeners))
	copy(listeners, s.listeners)
	return listeners
}

func notify(listeners []func(State), state State) {
	for _, fn := range listeners {
		fn(state)
	}
}

// Close stops any connect attempt and drops the link.
func (s *Shade) Close() error {
	s.setState(StateClosed)
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		return conn.Disconnect()
	}
	return nil
}
