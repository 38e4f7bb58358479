package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/ble"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/device"
)

type fakeAdapter struct {
	mu       sync.Mutex
	feed     chan ble.Event
	starts   int
	stops    int
	startErr error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{feed: make(chan ble.Event, 32)}
}

func (f *fakeAdapter) Run(ctx context.Context, out chan<- ble.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-f.feed:
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (f *fakeAdapter) StartScanning() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeAdapter) StopScanning() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeAdapter) Connect(context.Context, ble.Peripheral) (ble.Connection, error) {
	return nil, errors.New("not used")
}

func (f *fakeAdapter) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

type fakeTimer struct {
	d time.Duration
	c chan time.Time
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }
func (t *fakeTimer) Stop() bool          { return true }

type fakeClock struct {
	created chan *fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{created: make(chan *fakeTimer, 4)}
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	t := &fakeTimer{d: d, c: make(chan time.Time, 1)}
	c.created <- t
	return t
}

type fakeController struct {
	mu       sync.Mutex
	connects int
}

func (c *fakeController) Connect() {
	c.mu.Lock()
	c.connects++
	c.mu.Unlock()
}

func (c *fakeController) Close() error { return nil }

func (c *fakeController) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

type fakeDispatcher struct {
	mu      sync.Mutex
	devices []device.Device
}

func (d *fakeDispatcher) Dispatch(dev device.Device) {
	d.mu.Lock()
	d.devices = append(d.devices, dev)
	d.mu.Unlock()
}

func (d *fakeDispatcher) ids() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.devices))
	for _, dev := range d.devices {
		out = append(out, dev.ID.String())
	}
	return out
}

type fakeTelemetry struct {
	mu        sync.Mutex
	decisions []Decision
	stopped   []StopReason
}

func (f *fakeTelemetry) RecordAdvertisement(_ ble.Advertisement, _ device.Identity, d Decision) {
	f.mu.Lock()
	f.decisions = append(f.decisions, d)
	f.mu.Unlock()
}

func (f *fakeTelemetry) RecordScanStopped(_ TargetKind, reason StopReason, _ int, _ time.Duration) {
	f.mu.Lock()
	f.stopped = append(f.stopped, reason)
	f.mu.Unlock()
}

type harness struct {
	orch        *Orchestrator
	adapter     *fakeAdapter
	clock       *fakeClock
	registry    *device.Registry
	dispatcher  *fakeDispatcher
	telemetry   *fakeTelemetry
	controllers map[device.Identity]*fakeController
	mu          sync.Mutex
}

func newHarness(t *testing.T, allow, ignore []string, expected int, timeout time.Duration) *harness {
	t.Helper()

	h := &harness{
		adapter:     newFakeAdapter(),
		clock:       newFakeClock(),
		registry:    device.NewRegistry(),
		dispatcher:  &fakeDispatcher{},
		telemetry:   &fakeTelemetry{},
		controllers: make(map[device.Identity]*fakeController),
	}
	filter := NewFilter(allow, ignore)

	orch, err := New(Options{
		Adapter:  h.adapter,
		Filter:   filter,
		Target:   NewScanTarget(filter.Allow(), expected, timeout),
		Registry: h.registry,
		NewController: func(id device.Identity, _ ble.Peripheral) device.Controller {
			c := &fakeController{}
			h.mu.Lock()
			h.controllers[id] = c
			h.mu.Unlock()
			return c
		},
		Dispatcher: h.dispatcher,
		Telemetry:  h.telemetry,
		Clock:      h.clock,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.orch = orch
	return h
}

func (h *harness) connects(id device.Identity) int {
	h.mu.Lock()
	c := h.controllers[id]
	h.mu.Unlock()
	if c == nil {
		return 0
	}
	return c.count()
}

func (h *harness) state(t *testing.T, value string) device.ConnState {
	t.Helper()
	dev, err := h.registry.Get(value)
	if err != nil {
		t.Fatalf("Get(%q) error = %v", value, err)
	}
	return dev.State
}

func rise(name string) ble.Event {
	return ble.DiscoveredEvent{Advertisement: ble.Advertisement{LocalName: name}}
}

func addr(name, address string) ble.Event {
	return ble.DiscoveredEvent{Advertisement: ble.Advertisement{LocalName: name, Address: address}}
}

func mustHandle(t *testing.T, h *harness, ev ble.Event) (time.Duration, bool) {
	t.Helper()
	arm, done, err := h.orch.handle(ev)
	if err != nil {
		t.Fatalf("handle(%T) error = %v", ev, err)
	}
	return arm, done
}

func TestOrchestrator_ExplicitMode(t *testing.T) {
	h := newHarness(t, []string{"RISE1", "RISE2"}, nil, 0, time.Minute)

	if arm, _ := mustHandle(t, h, ble.ReadyEvent{}); arm != 0 {
		t.Errorf("explicit mode armed a %v timer", arm)
	}

	// Listed device connects immediately.
	if _, done := mustHandle(t, h, rise("RISE1")); done {
		t.Fatal("done after first device")
	}
	if h.state(t, "RISE1") != device.StateConnecting {
		t.Errorf("RISE1 state = %v, want connecting", h.state(t, "RISE1"))
	}
	if h.connects(device.NameIdentity("RISE1")) != 1 {
		t.Error("RISE1 not connected on sight")
	}

	// Unlisted and duplicate devices change nothing.
	mustHandle(t, h, rise("RISE3"))
	mustHandle(t, h, rise("RISE1"))
	if h.registry.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", h.registry.Count())
	}

	if _, done := mustHandle(t, h, rise("RISE2")); !done {
		t.Fatal("not done after every listed device")
	}

	if _, stops := h.adapter.counts(); stops != 1 {
		t.Errorf("StopScanning called %d times, want 1", stops)
	}
	for _, name := range []string{"RISE1", "RISE2"} {
		if n := h.connects(device.NameIdentity(name)); n != 1 {
			t.Errorf("%s connected %d times, want 1", name, n)
		}
	}
	if got := h.dispatcher.ids(); len(got) != 2 || got[0] != "RISE1" || got[1] != "RISE2" {
		t.Errorf("dispatched %v, want [RISE1 RISE2]", got)
	}
}

func TestOrchestrator_ExplicitModeByAddress(t *testing.T) {
	h := newHarness(t, []string{"AA:BB:CC:DD:EE:FF"}, nil, 0, time.Minute)
	mustHandle(t, h, ble.ReadyEvent{})

	if _, done := mustHandle(t, h, addr("S", "AA:BB:CC:DD:EE:FF")); !done {
		t.Fatal("not done after the only listed device")
	}
	dev, err := h.registry.Get("aabbccddeeff")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if dev.ID.Kind != device.ByAddress || dev.State != device.StateConnecting {
		t.Errorf("device = %+v", dev)
	}
}

func TestOrchestrator_CountMode(t *testing.T) {
	h := newHarness(t, nil, nil, 2, time.Minute)
	mustHandle(t, h, ble.ReadyEvent{})

	mustHandle(t, h, rise("RISE1"))
	if h.state(t, "RISE1") != device.StateDiscovered {
		t.Error("count mode connected before the target was reached")
	}

	if _, done := mustHandle(t, h, rise("RISE2")); !done {
		t.Fatal("not done at count")
	}
	for _, name := range []string{"RISE1", "RISE2"} {
		if h.state(t, name) != device.StateConnecting {
			t.Errorf("%s not connecting after bulk connect", name)
		}
	}

	// The (n+1)th device is never registered or connected.
	mustHandle(t, h, rise("RISE3"))
	if h.registry.Count() != 2 {
		t.Errorf("Count() = %d after stop, want 2", h.registry.Count())
	}
	if h.connects(device.NameIdentity("RISE3")) != 0 {
		t.Error("RISE3 connected after stop")
	}
}

func TestOrchestrator_TimeoutMode(t *testing.T) {
	h := newHarness(t, nil, nil, 0, 30*time.Second)

	arm, _ := mustHandle(t, h, ble.ReadyEvent{})
	if arm != 30*time.Second {
		t.Fatalf("arm = %v, want 30s", arm)
	}

	mustHandle(t, h, rise("RISE1"))
	mustHandle(t, h, addr("S", "11:22:33:44:55:66"))
	if h.state(t, "RISE1") != device.StateDiscovered {
		t.Error("timeout mode connected before expiry")
	}

	if err := h.orch.handleTimeout(); err != nil {
		t.Fatalf("handleTimeout() error = %v", err)
	}
	if h.state(t, "RISE1") != device.StateConnecting || h.state(t, "112233445566") != device.StateConnecting {
		t.Error("devices not connecting after expiry")
	}
	if h.orch.Status().State != "stopped" {
		t.Errorf("Status().State = %q, want stopped", h.orch.Status().State)
	}
	if len(h.telemetry.stopped) != 1 || h.telemetry.stopped[0] != StopTimeout {
		t.Errorf("telemetry stops = %v", h.telemetry.stopped)
	}
}

func TestOrchestrator_ExpireHandlesQueuedDiscoveries(t *testing.T) {
	tests := []struct {
		name    string
		queued  []ble.Event
		wantErr error
		wantIDs []string
	}{
		{
			name:    "queued discoveries registered before expiry",
			queued:  []ble.Event{rise("RISE1"), rise("RISE2")},
			wantIDs: []string{"RISE1", "RISE2"},
		},
		{
			name:    "queued discovery avoids starvation",
			queued:  []ble.Event{rise("RISE1")},
			wantIDs: []string{"RISE1"},
		},
		{
			name:    "nothing queued",
			wantErr: ErrNoDevicesFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, nil, 0, 30*time.Second)
			mustHandle(t, h, ble.ReadyEvent{})

			events := make(chan ble.Event, 4)
			for _, ev := range tt.queued {
				events <- ev
			}

			err := h.orch.expire(events)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expire() error = %v, want %v", err, tt.wantErr)
			}
			if len(events) != 0 {
				t.Errorf("%d events left queued", len(events))
			}
			for _, id := range tt.wantIDs {
				if got := h.state(t, id); got != device.StateConnecting {
					t.Errorf("%s state = %q, want connecting", id, got)
				}
			}
			if h.orch.Status().State != "stopped" {
				t.Errorf("Status().State = %q, want stopped", h.orch.Status().State)
			}
		})
	}
}

func TestOrchestrator_TimeoutStarvation(t *testing.T) {
	h := newHarness(t, nil, nil, 0, 30*time.Second)
	mustHandle(t, h, ble.ReadyEvent{})

	if err := h.orch.handleTimeout(); !errors.Is(err, ErrNoDevicesFound) {
		t.Fatalf("handleTimeout() error = %v, want ErrNoDevicesFound", err)
	}
	if _, stops := h.adapter.counts(); stops != 1 {
		t.Errorf("StopScanning called %d times, want 1", stops)
	}
}

func TestOrchestrator_IgnoreWins(t *testing.T) {
	h := newHarness(t, nil, []string{"RISE1"}, 0, time.Minute)
	mustHandle(t, h, ble.ReadyEvent{})

	mustHandle(t, h, rise("RISE1"))
	mustHandle(t, h, rise("RISE2"))

	if h.registry.Has(device.NameIdentity("RISE1")) {
		t.Error("ignored device registered")
	}
	if !h.registry.Has(device.NameIdentity("RISE2")) {
		t.Error("open world rejected RISE2")
	}
	if len(h.telemetry.decisions) != 2 || h.telemetry.decisions[0] != Ignored {
		t.Errorf("decisions = %v", h.telemetry.decisions)
	}
}

func TestOrchestrator_DropsNonCandidatesAndUnresolvable(t *testing.T) {
	h := newHarness(t, nil, nil, 0, time.Minute)
	mustHandle(t, h, ble.ReadyEvent{})

	mustHandle(t, h, addr("Speaker", "de:ad:be:ef:00:01"))
	mustHandle(t, h, rise("S"))

	if h.registry.Count() != 0 {
		t.Errorf("Count() = %d, want 0", h.registry.Count())
	}
}

func TestOrchestrator_ReadyHandling(t *testing.T) {
	h := newHarness(t, nil, nil, 1, time.Minute)

	mustHandle(t, h, ble.ReadyEvent{})
	mustHandle(t, h, ble.ReadyEvent{})
	if starts, _ := h.adapter.counts(); starts != 2 {
		t.Errorf("StartScanning called %d times, want 2 (restart while scanning)", starts)
	}

	mustHandle(t, h, rise("RISE1"))
	mustHandle(t, h, ble.ReadyEvent{})
	if starts, _ := h.adapter.counts(); starts != 2 {
		t.Errorf("StartScanning called after stop")
	}
}

func TestOrchestrator_StartScanFailure(t *testing.T) {
	h := newHarness(t, nil, nil, 0, time.Minute)
	h.adapter.startErr = errors.New("adapter busy")

	_, _, err := h.orch.handle(ble.ReadyEvent{})
	if !errors.Is(err, ErrScanFailed) {
		t.Fatalf("handle(Ready) error = %v, want ErrScanFailed", err)
	}
}

func TestNew_Validation(t *testing.T) {
	valid := Options{
		Adapter:       newFakeAdapter(),
		Filter:        NewFilter(nil, nil),
		Target:        NewScanTarget(NewIDSet(nil), 0, time.Minute),
		Registry:      device.NewRegistry(),
		NewController: func(device.Identity, ble.Peripheral) device.Controller { return nil },
	}

	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"no adapter", func(o *Options) { o.Adapter = nil }},
		{"no filter", func(o *Options) { o.Filter = nil }},
		{"no registry", func(o *Options) { o.Registry = nil }},
		{"no factory", func(o *Options) { o.NewController = nil }},
		{"zero timeout", func(o *Options) { o.Target = ScanTarget{Kind: TargetTimeout} }},
		{"zero count", func(o *Options) { o.Target = ScanTarget{Kind: TargetCount} }},
	}

	if _, err := New(valid); err != nil {
		t.Fatalf("New(valid) error = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.modify(&opts)
			if _, err := New(opts); err == nil {
				t.Error("New() error = nil")
			}
		})
	}
}

func runAsync(ctx context.Context, o *Orchestrator) <-chan error {
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	return done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
		return nil
	}
}

func TestOrchestrator_RunTimeout(t *testing.T) {
	h := newHarness(t, nil, nil, 0, 30*time.Second)
	done := runAsync(context.Background(), h.orch)

	h.adapter.feed <- ble.ReadyEvent{}
	h.adapter.feed <- rise("RISE1")

	var timer *fakeTimer
	select {
	case timer = <-h.clock.created:
	case <-time.After(5 * time.Second):
		t.Fatal("timer was not armed")
	}
	if timer.d != 30*time.Second {
		t.Errorf("timer duration = %v, want 30s", timer.d)
	}

	// Wait for the discovery to be processed before firing.
	deadline := time.Now().Add(5 * time.Second)
	for h.registry.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	timer.c <- time.Now()

	if err := waitErr(t, done); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.state(t, "RISE1") != device.StateConnecting {
		t.Error("RISE1 not connecting after Run")
	}
}

func TestOrchestrator_RunStarvation(t *testing.T) {
	h := newHarness(t, nil, nil, 0, 30*time.Second)
	done := runAsync(context.Background(), h.orch)

	h.adapter.feed <- ble.ReadyEvent{}
	timer := <-h.clock.created
	timer.c <- time.Now()

	if err := waitErr(t, done); !errors.Is(err, ErrNoDevicesFound) {
		t.Fatalf("Run() error = %v, want ErrNoDevicesFound", err)
	}
}

func TestOrchestrator_RunCount(t *testing.T) {
	h := newHarness(t, nil, nil, 1, time.Minute)
	done := runAsync(context.Background(), h.orch)

	h.adapter.feed <- ble.ReadyEvent{}
	h.adapter.feed <- rise("RISE9")

	if err := waitErr(t, done); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.connects(device.NameIdentity("RISE9")) != 1 {
		t.Error("RISE9 not connected")
	}
}

func TestOrchestrator_RunCancelled(t *testing.T) {
	h := newHarness(t, []string{"RISE1"}, nil, 0, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, h.orch)

	h.adapter.feed <- ble.ReadyEvent{}
	cancel()

	if err := waitErr(t, done); err != nil {
		t.Fatalf("Run() error = %v, want nil on cancel", err)
	}
}
