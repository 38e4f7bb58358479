package device

import (
	"time"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/ble"
)

// IdentityKind says which id space an Identity belongs to.
type IdentityKind string

const (
	// ByName identities are advertised RISE device names.
	ByName IdentityKind = "name"

	// ByAddress identities are normalised radio addresses.
	ByAddress IdentityKind = "address"
)

// Identity is the stable key of a blind controller.
//
// Name and address identities live in separate spaces: a device named
// "abc" and one whose address key is "abc" are different devices.
// Identity is comparable and used directly as a map key.
type Identity struct {
	Kind  IdentityKind
	Value string
}

// NameIdentity returns a ByName identity.
func NameIdentity(name string) Identity {
	return Identity{Kind: ByName, Value: name}
}

// AddressIdentity returns a ByAddress identity for an already normalised address key.
func AddressIdentity(key string) Identity {
	return Identity{Kind: ByAddress, Value: key}
}

// String returns the identity value used in topics, URLs and logs.
func (id Identity) String() string {
	return id.Value
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id.Value == ""
}

// ConnState is the connection progress of a registered device.
type ConnState string

const (
	// StateDiscovered means the device is registered but no connect was issued.
	StateDiscovered ConnState = "discovered"

	// StateConnecting means a connect was issued and bindings were dispatched.
	StateConnecting ConnState = "connecting"

	// StateConnected means the control layer reported an established link.
	StateConnected ConnState = "connected"
)

// AllStates returns every ConnState in lifecycle order.
func AllStates() []ConnState {
	return []ConnState{StateDiscovered, StateConnecting, StateConnected}
}

// Controller is the control-layer component bound to one device.
type Controller interface {
	// Connect requests a connection and returns immediately.
	Connect()

	// Close releases the link, if any.
	Close() error
}

// Registration carries what the orchestrator knows about a newly accepted device.
type Registration struct {
	Name       string
	Address    string
	Peripheral ble.Peripheral
	Controller Controller
}

// Device is a read-only snapshot of a registered blind controller.
type Device struct {
	ID             Identity       `json:"-"`
	Name           string         `json:"name,omitempty"`
	Address        string         `json:"address,omitempty"`
	State          ConnState      `json:"state"`
	RegisteredAt   time.Time      `json:"registered_at"`
	StateChangedAt time.Time      `json:"state_changed_at"`
	Peripheral     ble.Peripheral `json:"-"`
	Controller     Controller     `json:"-"`
}

// EventType names a registry change.
type EventType string

const (
	// EventRegistered is emitted once per device, on first acceptance.
	EventRegistered EventType = "device.registered"

	// EventStateChanged is emitted on every ConnState transition.
	EventStateChanged EventType = "device.state_changed"
)

// Event describes one registry change.
type Event struct {
	Type   EventType
	Device Device
}

// Stats summarises the registry contents.
type Stats struct {
	Total   int               `json:"total"`
	ByState map[ConnState]int `json:"by_state"`
}
