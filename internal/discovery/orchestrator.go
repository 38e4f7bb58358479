package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/ble"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/device"
)

// defaultEventBuffer is the adapter event channel depth when Options leaves it unset.
const defaultEventBuffer = 64

// Logger defines the logging interface used by the Orchestrator.
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

// ControllerFactory builds the control-layer component for a newly accepted device.
type ControllerFactory func(id device.Identity, p ble.Peripheral) device.Controller

// Dispatcher hands a device that entered StateConnecting to its bindings.
// It must not block.
type Dispatcher interface {
	Dispatch(dev device.Device)
}

// Telemetry receives discovery measurements. Implementations must not block.
type Telemetry interface {
	RecordAdvertisement(adv ble.Advertisement, id device.Identity, decision Decision)
	RecordScanStopped(mode TargetKind, reason StopReason, registered int, elapsed time.Duration)
}

// Timer is the subset of time.Timer the loop needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Clock creates timers. Tests substitute a manual clock.
type Clock interface {
	NewTimer(d time.Duration) Timer
}

// Options configures an Orchestrator.
type Options struct {
	Adapter       ble.Adapter
	Filter        *Filter
	Target        ScanTarget
	Registry      *device.Registry
	NewController ControllerFactory

	// Optional.
	Dispatcher  Dispatcher
	Telemetry   Telemetry
	Logger      Logger
	Clock       Clock
	EventBuffer int
}

// Orchestrator runs the discovery event loop: it resolves and filters
// advertisements, registers accepted devices, applies the stop condition
// and issues connects.
type Orchestrator struct {
	adapter       ble.Adapter
	filter        *Filter
	session       *Session
	registry      *device.Registry
	newController ControllerFactory
	dispatcher    Dispatcher
	telemetry     Telemetry
	logger        Logger
	clock         Clock
	eventBuffer   int

	statusMu sync.RWMutex
	status   Status
}

// New validates opts and creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Adapter == nil {
		return nil, errors.New("adapter is required")
	}
	if opts.Filter == nil {
		return nil, errors.New("filter is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if opts.NewController == nil {
		return nil, errors.New("controller factory is required")
	}
	if opts.Target.Kind == TargetTimeout && opts.Target.Timeout <= 0 {
		return nil, errors.New("timeout must be positive in timeout mode")
	}
	if opts.Target.Bounded() && opts.Target.Count <= 0 {
		return nil, errors.New("count must be positive in count mode")
	}

	o := &Orchestrator{
		adapter:       opts.Adapter,
		filter:        opts.Filter,
		session:       NewSession(opts.Target),
		registry:      opts.Registry,
		newController: opts.NewController,
		dispatcher:    opts.Dispatcher,
		telemetry:     opts.Telemetry,
		logger:        opts.Logger,
		clock:         opts.Clock,
		eventBuffer:   opts.EventBuffer,
	}
	if o.logger == nil {
		o.logger = noopLogger{}
	}
	if o.clock == nil {
		o.clock = realClock{}
	}
	if o.eventBuffer <= 0 {
		o.eventBuffer = defaultEventBuffer
	}
	o.publishStatus()
	return o, nil
}

// Status returns the latest session status. Safe for concurrent use.
func (o *Orchestrator) Status() Status {
	o.statusMu.RLock()
	defer o.statusMu.RUnlock()
	return o.status
}

// Run drives the scan until the stop condition has been handled.
//
// It returns nil once scanning has stopped and every registered device has
// been told to connect, ErrNoDevicesFound when the timeout expires with an
// empty registry, ErrScanFailed if the adapter cannot scan, and nil if ctx
// is cancelled first.
func (o *Orchestrator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan ble.Event, o.eventBuffer)
	adapterDone := make(chan error, 1)
	go func() {
		adapterDone <- o.adapter.Run(runCtx, events)
	}()

	o.logger.Info("discovery started", "mode", o.session.Target().Kind.String(), "plan", o.session.Target().Describe())

	var timer Timer
	var timeout <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			o.session.Cancel()
			o.publishStatus()
			return nil

		case err := <-adapterDone:
			if err != nil {
				return fmt.Errorf("bluetooth adapter: %w", err)
			}
			if ctx.Err() != nil {
				return nil
			}
			return errors.New("bluetooth adapter stopped unexpectedly")

		case <-timeout:
			timeout = nil
			return o.expire(events)

		case ev := <-events:
			arm, done, err := o.handle(ev)
			if err != nil {
				return err
			}
			if arm > 0 && timer == nil {
				timer = o.clock.NewTimer(arm)
				timeout = timer.C()
				o.logger.Info("scan timer armed", "timeout", arm.String())
			}
			if done {
				return nil
			}
		}
	}
}

// handle processes one adapter event on the loop goroutine.
// It returns a timer duration to arm, whether the run is complete, or a fatal error.
func (o *Orchestrator) handle(ev ble.Event) (arm time.Duration, done bool, err error) {
	switch e := ev.(type) {
	case ble.ReadyEvent:
		arm, err = o.handleReady()
		return arm, false, err
	case ble.PoweredOffEvent:
		o.logger.Warn("bluetooth adapter powered off", "state", o.session.State().String())
		return 0, false, nil
	case ble.DiscoveredEvent:
		return 0, o.handleDiscovered(e.Advertisement), nil
	default:
		o.logger.Debug("ignoring unknown adapter event", "type", fmt.Sprintf("%T", ev))
		return 0, false, nil
	}
}

func (o *Orchestrator) handleReady() (time.Duration, error) {
	arm, started, rescan := o.session.Begin()
	if !started && !rescan {
		o.logger.Debug("adapter ready after scan stopped, ignoring")
		return 0, nil
	}

	if err := o.adapter.StartScanning(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrScanFailed, err)
	}
	if rescan {
		o.logger.Info("adapter ready again, scan restarted")
		return 0, nil
	}

	o.logger.Info("scanning started")
	o.publishStatus()
	return arm, nil
}

// handleDiscovered returns true when this discovery completed the run.
func (o *Orchestrator) handleDiscovered(adv ble.Advertisement) bool {
	if !o.session.Accepting() {
		return false
	}
	if !o.filter.IsCandidate(adv) {
		return false
	}

	id, ok := Resolve(adv)
	if !ok {
		o.logger.Debug("dropping advertisement without name or address")
		return false
	}

	addressKey := NormalizeAddress(adv.Address)
	decision := o.filter.Decide(id, addressKey)
	if o.telemetry != nil {
		o.telemetry.RecordAdvertisement(adv, id, decision)
	}
	if decision != Accepted {
		o.logger.Debug("found device", "id", id.String(), "address", adv.Address, "result", decision.String())
		return false
	}

	if o.registry.Has(id) {
		return false
	}

	_, created := o.registry.Register(id, device.Registration{
		Name:       adv.LocalName,
		Address:    adv.Address,
		Peripheral: adv.Peripheral,
		Controller: o.newController(id, adv.Peripheral),
	})
	if !created {
		return false
	}

	count := o.registry.Count()
	o.logger.Info("discovered device", "id", id.String(), "address", adv.Address, "rssi", adv.RSSI, "registered", count)

	if o.session.ConnectOnRegister() {
		o.connect(id)
	}

	if o.session.Registered(count) {
		o.stopScanning()
		o.connectAll()
		return true
	}

	o.publishStatus()
	return false
}

// expire handles timer expiry. Events already queued when the timer fired
// arrived before it, so they are handled first.
func (o *Orchestrator) expire(events <-chan ble.Event) error {
	for pending := len(events); pending > 0; pending-- {
		_, done, err := o.handle(<-events)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return o.handleTimeout()
}

func (o *Orchestrator) handleTimeout() error {
	if !o.session.Expire() {
		return nil
	}
	o.stopScanning()

	if o.registry.Count() == 0 {
		o.logger.Error("no devices found before timeout", "timeout", o.session.Target().Timeout.String())
		return ErrNoDevicesFound
	}
	o.connectAll()
	return nil
}

func (o *Orchestrator) stopScanning() {
	if err := o.adapter.StopScanning(); err != nil {
		o.logger.Warn("stopping scan", "error", err)
	}

	registered := o.registry.Count()
	status := o.session.Status(registered)
	var elapsed time.Duration
	if status.StartedAt != nil && status.StoppedAt != nil {
		elapsed = status.StoppedAt.Sub(*status.StartedAt)
	}
	o.logger.Info("scanning stopped", "reason", status.StopReason, "registered", registered)
	if o.telemetry != nil {
		o.telemetry.RecordScanStopped(o.session.Target().Kind, StopReason(status.StopReason), registered, elapsed)
	}
	o.publishStatus()
}

// connectAll issues a connect for every device still in StateDiscovered.
func (o *Orchestrator) connectAll() {
	for _, id := range o.registry.Pending() {
		o.connect(id)
	}
}

// connect moves one device to StateConnecting, starts its controller and
// dispatches it. Repeated calls for the same device do nothing.
func (o *Orchestrator) connect(id device.Identity) {
	dev, ok := o.registry.BeginConnect(id)
	if !ok {
		return
	}
	o.logger.Info("connecting device", "id", id.String())

	if dev.Controller != nil {
		dev.Controller.Connect()
	}
	if o.dispatcher != nil {
		o.dispatcher.Dispatch(dev)
	}
}

func (o *Orchestrator) publishStatus() {
	st := o.session.Status(o.registry.Count())
	o.statusMu.Lock()
	o.status = st
	o.statusMu.Unlock()
}

type realClock struct{}

func (realClock) NewTimer(d time.Duration) Timer {
	return realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }
