package ble

import "context"

// Peripheral is an opaque handle to a discovered radio peripheral.
// Implementations carry whatever the driver needs to connect later.
type Peripheral interface {
	// Address returns the peripheral's address as reported by the driver.
	Address() string
}

// Connection is an established link to a peripheral.
type Connection interface {
	Disconnect() error
}

// Advertisement is one discovery event from the adapter.
// It is not retained after it has been processed.
type Advertisement struct {
	LocalName  string
	Address    string
	RSSI       int16
	Peripheral Peripheral
}

// Event is anything the adapter reports to its consumer.
type Event interface {
	isEvent()
}

// ReadyEvent reports that the adapter is powered and able to scan.
// It may be delivered more than once if the adapter is power cycled.
type ReadyEvent struct{}

// PoweredOffEvent reports that the adapter lost power.
type PoweredOffEvent struct{}

// DiscoveredEvent carries one advertisement.
type DiscoveredEvent struct {
	Advertisement Advertisement
}

func (ReadyEvent) isEvent()      {}
func (PoweredOffEvent) isEvent() {}
func (DiscoveredEvent) isEvent() {}

// Adapter is the radio capability the orchestrator drives.
type Adapter interface {
	// Run delivers adapter events to events until ctx is cancelled.
	// StartScanning and StopScanning are only valid while Run is active.
	Run(ctx context.Context, events chan<- Event) error

	// StartScanning begins delivering DiscoveredEvents. Duplicate
	// advertisements for one peripheral may be reported.
	StartScanning() error

	// StopScanning stops discovery. Stopping an idle adapter is a no-op.
	StopScanning() error

	// Connect blocks until the peripheral is connected, the attempt fails
	// or ctx is done.
	Connect(ctx context.Context, p Peripheral) (Connection, error)
}
