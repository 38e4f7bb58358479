package device

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds every accepted blind controller for the life of the process.
//
// The discovery loop is the only writer of registrations and connect
// transitions. Control-layer goroutines report MarkConnected. Readers
// (dashboard, publishers) receive value snapshots.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices map[Identity]*Device
	order   []Identity

	watchMu   sync.RWMutex
	watchers  map[int]func(Event)
	nextWatch int

	logger Logger
	now    func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices:  make(map[Identity]*Device),
		watchers: make(map[int]func(Event)),
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register records a newly accepted device in StateDiscovered.
//
// Registering an identity that is already present changes nothing and
// returns the existing snapshot with created == false.
func (r *Registry) Register(id Identity, reg Registration) (dev Device, created bool) {
	r.mu.Lock()
	if existing, ok := r.devices[id]; ok {
		snapshot := *existing
		r.mu.Unlock()
		return snapshot, false
	}

	now := r.now()
	d := &Device{
		ID:             id,
		Name:           reg.Name,
		Address:        reg.Address,
		State:          StateDiscovered,
		RegisteredAt:   now,
		StateChangedAt: now,
		Peripheral:     reg.Peripheral,
		Controller:     reg.Controller,
	}
	r.devices[id] = d
	r.order = append(r.order, id)
	snapshot := *d
	r.mu.Unlock()

	r.logger.Debug("device registered", "id", id.String(), "kind", string(id.Kind))
	r.notify(Event{Type: EventRegistered, Device: snapshot})
	return snapshot, true
}

// Has reports whether the identity is registered.
func (r *Registry) Has(id Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[id]
	return ok
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// BeginConnect moves a device from StateDiscovered to StateConnecting.
//
// It reports ok == true exactly once per device; the caller then issues the
// connect and dispatches bindings. Later calls return false.
func (r *Registry) BeginConnect(id Identity) (dev Device, ok bool) {
	return r.transition(id, StateDiscovered, StateConnecting)
}

// MarkConnected records that the control layer established a link.
// It returns ErrDeviceNotFound for unknown identities and false when the
// device was not connecting.
func (r *Registry) MarkConnected(id Identity) (bool, error) {
	if !r.Has(id) {
		return false, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	_, ok := r.transition(id, StateConnecting, StateConnected)
	return ok, nil
}

func (r *Registry) transition(id Identity, from, to ConnState) (Device, bool) {
	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok || d.State != from {
		r.mu.Unlock()
		return Device{}, false
	}
	d.State = to
	d.StateChangedAt = r.now()
	snapshot := *d
	r.mu.Unlock()

	r.logger.Debug("device state changed", "id", id.String(), "from", string(from), "to", string(to))
	r.notify(Event{Type: EventStateChanged, Device: snapshot})
	return snapshot, true
}

// Pending returns the identities still in StateDiscovered, in registration order.
func (r *Registry) Pending() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []Identity
	for _, id := range r.order {
		if r.devices[id].State == StateDiscovered {
			ids = append(ids, id)
		}
	}
	return ids
}

// Get finds a device by its identity value, trying names before addresses.
// Returns ErrDeviceNotFound if no device matches.
func (r *Registry) Get(value string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, kind := range []IdentityKind{ByName, ByAddress} {
		if d, ok := r.devices[Identity{Kind: kind, Value: value}]; ok {
			return *d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, value)
}

// List returns snapshots of every device in registration order.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.order))
	for _, id := range r.order {
		devices = append(devices, *r.devices[id])
	}
	return devices
}

// Stats returns device counts by state.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Total:   len(r.devices),
		ByState: make(map[ConnState]int, len(AllStates())),
	}
	for _, s := range AllStates() {
		stats.ByState[s] = 0
	}
	for _, d := range r.devices {
		stats.ByState[d.State]++
	}
	return stats
}

// Watch registers fn for every registry change and returns a function that
// removes it. fn runs on the goroutine that made the change and must not block.
func (r *Registry) Watch(fn func(Event)) (unwatch func()) {
	r.watchMu.Lock()
	id := r.nextWatch
	r.nextWatch++
	r.watchers[id] = fn
	r.watchMu.Unlock()

	return func() {
		r.watchMu.Lock()
		delete(r.watchers, id)
		r.watchMu.Unlock()
	}
}

func (r *Registry) notify(ev Event) {
	r.watchMu.RLock()
	fns := make([]func(Event), 0, len(r.watchers))
	for _, fn := range r.watchers {
		fns = append(fns, fn)
	}
	r.watchMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Close closes every device controller. Errors are joined.
func (r *Registry) Close() error {
	r.mu.RLock()
	controllers := make([]Controller, 0, len(r.devices))
	for _, id := range r.order {
		if c := r.devices[id].Controller; c != nil {
			controllers = append(controllers, c)
		}
	}
	r.mu.RUnlock()

	var errs []error
	for _, c := range controllers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
