package shade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/ble"
)

type fakePeripheral string

func (p fakePeripheral) Address() string { return string(p) }

type fakeConn struct {
	mu           sync.Mutex
	disconnected bool
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
	return nil
}

// fakeConnector fails the first failures attempts, then succeeds.
type fakeConnector struct {
	mu       sync.Mutex
	failures int
	attempts int
	block    bool
	conn     *fakeConn
}

func (f *fakeConnector) Connect(ctx context.Context, _ ble.Peripheral) (ble.Connection, error) {
	f.mu.Lock()
	f.attempts++
	attempt := f.attempts
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if attempt <= f.failures {
		return nil, errors.New("le-connection-abort-by-local")
	}
	return f.conn, nil
}

func (f *fakeConnector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func newTestShade(t *testing.T, c Connector, maxAttempts int) *Shade {
	t.Helper()
	s, err := New(Options{
		ID:             "RISE108",
		Peripheral:     fakePeripheral("aa:bb:cc:dd:ee:ff"),
		Connector:      c,
		MaxAttempts:    maxAttempts,
		RetryDelay:     time.Millisecond,
		ConnectTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() }) //nolint:errcheck // test cleanup
	return s
}

func collectStates(s *Shade) (<-chan State, func() []State) {
	ch := make(chan State, 16)
	var mu sync.Mutex
	var seen []State
	s.OnStateChange(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
		ch <- st
	})
	return ch, func() []State {
		mu.Lock()
		defer mu.Unlock()
		return append([]State(nil), seen...)
	}
}

func waitState(t *testing.T, ch <-chan State, want State) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case st := <-ch:
			if st == want {
				return
			}
		case <-timeout:
			t.Fatalf("state %q not reached", want)
		}
	}
}

func TestShade_ConnectSucceedsAfterRetries(t *testing.T) {
	c := &fakeConnector{failures: 2, conn: &fakeConn{}}
	s := newTestShade(t, c, 5)
	ch, seen := collectStates(s)

	s.Connect()
	waitState(t, ch, StateConnected)

	if c.count() != 3 {
		t.Errorf("attempts = %d, want 3", c.count())
	}
	if got := seen(); len(got) != 2 || got[0] != StateConnecting || got[1] != StateConnected {
		t.Errorf("states = %v, want [connecting connected]", got)
	}
}

func TestShade_ConnectGivesUp(t *testing.T) {
	c := &fakeConnector{failures: 10}
	s := newTestShade(t, c, 3)
	ch, _ := collectStates(s)

	s.Connect()
	waitState(t, ch, StateFailed)

	if c.count() != 3 {
		t.Errorf("attempts = %d, want 3", c.count())
	}

	// A failed shade can be asked again.
	c.mu.Lock()
	c.failures = 0
	c.conn = &fakeConn{}
	c.mu.Unlock()
	s.Connect()
	waitState(t, ch, StateConnected)
}

func TestShade_ConnectIsIdempotent(t *testing.T) {
	c := &fakeConnector{block: true}
	s := newTestShade(t, c, 1)

	s.Connect()
	s.Connect()
	s.Connect()

	deadline := time.Now().Add(5 * time.Second)
	for c.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	if c.count() != 1 {
		t.Errorf("attempts = %d, want 1", c.count())
	}
	if s.State() != StateConnecting {
		t.Errorf("State() = %q, want connecting", s.State())
	}
}

func TestShade_CloseDisconnects(t *testing.T) {
	conn := &fakeConn{}
	c := &fakeConnector{conn: conn}
	s := newTestShade(t, c, 1)
	ch, _ := collectStates(s)

	s.Connect()
	waitState(t, ch, StateConnected)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !conn.disconnected {
		t.Error("connection not closed")
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %q, want closed", s.State())
	}

	s.Connect()
	if s.State() != StateClosed {
		t.Error("Connect() after Close() changed state")
	}
}

func TestShade_CloseCancelsConnect(t *testing.T) {
	c := &fakeConnector{block: true}
	s := newTestShade(t, c, 5)

	s.Connect()
	done := make(chan struct{})
	go func() {
		s.Close() //nolint:errcheck // nothing connected
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close() blocked on a pending connect")
	}
}

func TestNew_Validation(t *testing.T) {
	c := &fakeConnector{}
	p := fakePeripheral("x")

	if _, err := New(Options{Peripheral: p, Connector: c}); err == nil {
		t.Error("New() without id succeeded")
	}
	if _, err := New(Options{ID: "a", Connector: c}); err == nil {
		t.Error("New() without peripheral succeeded")
	}
	if _, err := New(Options{ID: "a", Peripheral: p}); err == nil {
		t.Error("New() without connector succeeded")
	}
}
