package hass

import (
	"encoding/json"
	"time"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/device"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/discovery"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/mqtt"
)

// Device metadata advertised to Home Assistant.
const (
	manufacturer = "SOMA"
	model        = "Smart Shades"
	deviceClass  = "shade"
)

// DiscoveryConfig is the Home Assistant MQTT discovery payload for a cover.
type DiscoveryConfig struct {
	Name                string          `json:"name"`
	UniqueID            string          `json:"unique_id"`
	ObjectID            string          `json:"object_id"`
	DeviceClass         string          `json:"device_class"`
	AvailabilityTopic   string          `json:"availability_topic"`
	PayloadAvailable    string          `json:"payload_available"`
	PayloadNotAvailable string          `json:"payload_not_available"`
	JSONAttributesTopic string          `json:"json_attributes_topic"`
	Device              DiscoveryDevice `json:"device"`
}

// DiscoveryDevice groups entities under one device in Home Assistant.
type DiscoveryDevice struct {
	Identifiers  []string   `json:"identifiers"`
	Connections  [][]string `json:"connections,omitempty"`
	Name         string     `json:"name"`
	Manufacturer string     `json:"manufacturer"`
	Model        string     `json:"model"`
	SWVersion    string     `json:"sw_version,omitempty"`
}

// StateDocument is the JSON body published on a cover's state topic.
type StateDocument struct {
	ID             string           `json:"id"`
	Kind           string           `json:"kind"`
	Name           string           `json:"name,omitempty"`
	Address        string           `json:"address,omitempty"`
	State          device.ConnState `json:"state"`
	Available      bool             `json:"available"`
	RegisteredAt   time.Time        `json:"registered_at"`
	StateChangedAt time.Time        `json:"state_changed_at"`
}

func buildDiscoveryConfig(topics mqtt.Topics, dev device.Device, version string) ([]byte, error) {
	id := dev.ID.Value
	name := dev.Name
	if name == "" || name == discovery.SentinelName {
		name = id
	}

	cfg := DiscoveryConfig{
		Name:                name,
		UniqueID:            "soma_" + mqtt.SanitizeSegment(id),
		ObjectID:            mqtt.SanitizeSegment(id),
		DeviceClass:         deviceClass,
		AvailabilityTopic:   topics.Availability(id),
		PayloadAvailable:    mqtt.PayloadOnline,
		PayloadNotAvailable: mqtt.PayloadOffline,
		JSONAttributesTopic: topics.State(id),
		Device: DiscoveryDevice{
			Identifiers:  []string{"soma_" + mqtt.SanitizeSegment(id)},
			Name:         name,
			Manufacturer: manufacturer,
			Model:        model,
			SWVersion:    version,
		},
	}
	if dev.Address != "" {
		cfg.Device.Connections = [][]string{{"mac", dev.Address}}
	}

	return json.Marshal(cfg)
}

func buildStateDocument(dev device.Device) ([]byte, error) {
	return json.Marshal(StateDocument{
		ID:             dev.ID.Value,
		Kind:           string(dev.ID.Kind),
		Name:           dev.Name,
		Address:        dev.Address,
		State:          dev.State,
		Available:      isAvailable(dev),
		RegisteredAt:   dev.RegisteredAt,
		StateChangedAt: dev.StateChangedAt,
	})
}

func availabilityPayload(dev device.Device) []byte {
	if isAvailable(dev) {
		return []byte(mqtt.PayloadOnline)
	}
	return []byte(mqtt.PayloadOffline)
}

func isAvailable(dev device.Device) bool {
	return dev.State == device.StateConnected
}
