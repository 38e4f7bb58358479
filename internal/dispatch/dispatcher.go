package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/device"
)

// Binding is an output that receives every device entering the connecting state.
type Binding interface {
	// Name identifies the binding in logs.
	Name() string

	// Bind attaches the binding to dev. It may block; ctx ends at shutdown.
	Bind(ctx context.Context, dev device.Device) error
}

// Logger defines the logging interface used by the Dispatcher.
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

// Dispatcher fans each device out to every configured binding.
//
// Every Bind call runs in its own goroutine. A failing or panicking binding
// is logged and affects neither other bindings nor discovery.
type Dispatcher struct {
	bindings []Binding
	logger   Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a Dispatcher. Nil bindings are skipped.
func New(bindings ...Binding) *Dispatcher {
	d := &Dispatcher{logger: noopLogger{}}
	for _, b := range bindings {
		if b != nil {
			d.bindings = append(d.bindings, b)
		}
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Bindings returns the names of the configured bindings.
func (d *Dispatcher) Bindings() []string {
	names := make([]string, 0, len(d.bindings))
	for _, b := range d.bindings {
		names = append(names, b.Name())
	}
	return names
}

// Dispatch starts every binding for dev and returns immediately.
// It does nothing after Close.
func (d *Dispatcher) Dispatch(dev device.Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	for _, b := range d.bindings {
		d.wg.Add(1)
		go d.run(b, dev)
	}
}

func (d *Dispatcher) run(b Binding, dev device.Device) {
	defer d.wg.Done()

	err := d.safeBind(b, dev)
	if err != nil {
		d.logger.Error("binding failed", "binding", b.Name(), "id", dev.ID.String(), "error", err)
		return
	}
	d.logger.Debug("binding attached", "binding", b.Name(), "id", dev.ID.String())
}

// safeBind converts a panic inside Bind into an error.
func (d *Dispatcher) safeBind(b Binding, dev device.Device) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return b.Bind(d.ctx, dev)
}

// Wait blocks until every started Bind call has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels in-flight bindings and waits for them.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
