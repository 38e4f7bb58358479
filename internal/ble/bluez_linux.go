//go:build linux

package ble

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/config"
)

// BlueZ D-Bus names.
const (
	bluezService       = "org.bluez"
	bluezAdapterIface  = "org.bluez.Adapter1"
	propertiesIface    = "org.freedesktop.DBus.Properties"
	propertiesChanged  = propertiesIface + ".PropertiesChanged"
	poweredProperty    = "Powered"
	adapterPathPrefix  = "/org/bluez/"
	signalChannelDepth = 16
)

// BlueZ drives a local HCI adapter through BlueZ.
type BlueZ struct {
	id      string
	adapter *bluetooth.Adapter
	logger  Logger

	mu       sync.Mutex
	ctx      context.Context
	events   chan<- Event
	scanning bool
}

// NewBlueZ creates an adapter backed by the BlueZ default adapter.
// The bluetooth driver only exposes hci0 on Linux, so cfg.Adapter must
// name it (config.Validate enforces this).
// Nothing touches the system bus until Run is called.
func NewBlueZ(cfg config.BluetoothConfig) *BlueZ {
	id := cfg.Adapter
	if id == "" {
		id = config.SupportedAdapter
	}
	return &BlueZ{
		id:      id,
		adapter: bluetooth.DefaultAdapter,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the adapter.
func (b *BlueZ) SetLogger(logger Logger) {
	b.logger = logger
}

// Run enables the adapter and reports power state changes until ctx is done.
// A ReadyEvent is sent immediately if the adapter is already powered.
func (b *BlueZ) Run(ctx context.Context, events chan<- Event) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connecting to system bus: %w", err)
	}
	defer conn.Close() //nolint:errcheck // best effort on shutdown

	path := dbus.ObjectPath(adapterPathPrefix + b.id)
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("subscribing to adapter properties: %w", err)
	}
	signals := make(chan *dbus.Signal, signalChannelDepth)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("enabling adapter %s: %w", b.id, err)
	}

	b.mu.Lock()
	b.ctx = ctx
	b.events = events
	b.mu.Unlock()

	defer func() {
		if err := b.StopScanning(); err != nil {
			b.logger.Warn("stopping scan on shutdown", "error", err)
		}
		b.mu.Lock()
		b.events = nil
		b.mu.Unlock()
	}()

	powered, err := readPowered(conn.Object(bluezService, path))
	if err != nil {
		return fmt.Errorf("reading adapter power state: %w", err)
	}
	b.logger.Info("bluetooth adapter opened", "adapter", b.id, "powered", powered)
	if powered {
		b.emit(ReadyEvent{})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			on, changed := poweredChange(sig)
			if !changed {
				continue
			}
			b.logger.Info("bluetooth adapter power changed", "adapter", b.id, "powered", on)
			if on {
				b.emit(ReadyEvent{})
				continue
			}
			b.mu.Lock()
			b.scanning = false
			b.mu.Unlock()
			b.emit(PoweredOffEvent{})
		}
	}
}

// StartScanning starts a scan in the background. Calling it while a scan
// is already running is a no-op.
func (b *BlueZ) StartScanning() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.events == nil {
		return ErrNotRunning
	}
	if b.scanning {
		return nil
	}
	b.scanning = true

	go func() {
		err := b.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			b.emit(DiscoveredEvent{Advertisement: Advertisement{
				LocalName:  result.LocalName(),
				Address:    result.Address.String(),
				RSSI:       result.RSSI,
				Peripheral: peripheral{addr: result.Address},
			}})
		})

		b.mu.Lock()
		b.scanning = false
		b.mu.Unlock()

		if err != nil {
			b.logger.Error("bluetooth scan ended", "adapter", b.id, "error", err)
			return
		}
		b.logger.Debug("bluetooth scan stopped", "adapter", b.id)
	}()

	return nil
}

// StopScanning stops a running scan.
func (b *BlueZ) StopScanning() error {
	b.mu.Lock()
	scanning := b.scanning
	b.mu.Unlock()

	if !scanning {
		return nil
	}
	if err := b.adapter.StopScan(); err != nil {
		return fmt.Errorf("stopping scan: %w", err)
	}
	return nil
}

// Connect connects to a peripheral produced by this adapter's scan.
//
// The driver call itself cannot be cancelled. If ctx ends first the
// late connection, if any, is closed in the background.
func (b *BlueZ) Connect(ctx context.Context, p Peripheral) (Connection, error) {
	pp, ok := p.(peripheral)
	if !ok {
		return nil, ErrUnknownPeripheral
	}

	type result struct {
		dev bluetooth.Device
		err error
	}
	done := make(chan result, 1)

	go func() {
		dev, err := b.adapter.Connect(pp.addr, bluetooth.ConnectionParams{})
		done <- result{dev: dev, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConnectFailed, pp.Address(), r.err)
		}
		return &connection{dev: r.dev}, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				r.dev.Disconnect() //nolint:errcheck // abandoned attempt
			}
		}()
		return nil, ctx.Err()
	}
}

// emit forwards an event unless Run has returned.
func (b *BlueZ) emit(ev Event) {
	b.mu.Lock()
	ctx, events := b.ctx, b.events
	b.mu.Unlock()

	if events == nil {
		return
	}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

type peripheral struct {
	addr bluetooth.Address
}

func (p peripheral) Address() string {
	return p.addr.String()
}

type connection struct {
	dev bluetooth.Device
}

func (c *connection) Disconnect() error {
	return c.dev.Disconnect()
}

// propertyGetter is the part of dbus.BusObject readPowered needs.
type propertyGetter interface {
	GetProperty(p string) (dbus.Variant, error)
}

func readPowered(obj propertyGetter) (bool, error) {
	v, err := obj.GetProperty(bluezAdapterIface + "." + poweredProperty)
	if err != nil {
		return false, err
	}
	on, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("unexpected %s type %T", poweredProperty, v.Value())
	}
	return on, nil
}

// poweredChange extracts the Powered value from an Adapter1
// PropertiesChanged signal.
func poweredChange(sig *dbus.Signal) (powered, ok bool) {
	if sig == nil || sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return false, false
	}
	iface, _ := sig.Body[0].(string)
	if iface != bluezAdapterIface {
		return false, false
	}
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	v, found := changed[poweredProperty]
	if !found {
		return false, false
	}
	powered, ok = v.Value().(bool)
	return powered, ok
}
