package hass

import (
	"errors"
	"strings"
	"sync"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/device"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of *mqtt.Client a Publisher uses.
// This allows mocking in tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
	SetOnConnect(callback func())
	Close() error
}

// DeviceSource is the registry view a Publisher follows.
// It is satisfied by *device.Registry.
type DeviceSource interface {
	Watch(fn func(device.Event)) (unwatch func())
	Get(value string) (device.Device, error)
}

// Logger defines the logging interface used by this package.
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

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	// Device is the snapshot handed over at dispatch.
	Device device.Device

	Client MQTTClient
	Source DeviceSource
	Topics mqtt.Topics
	QoS    byte

	// Optional.
	Version string
	Logger  Logger
}

// Publisher mirrors one device to Home Assistant over its own session.
//
// Registry events are coalesced: only the most advanced snapshot is
// published, from a single goroutine, so watchers never block.
type Publisher struct {
	id      device.Identity
	client  MQTTClient
	source  DeviceSource
	topics  mqtt.Topics
	qos     byte
	version string
	logger  Logger

	mu         sync.Mutex
	latest     device.Device
	sendConfig bool
	wake       chan struct{}

	unwatch   func()
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

// NewPublisher validates opts and creates a Publisher. Call Start to begin.
func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	if opts.Device.ID.IsZero() {
		return nil, errors.New("device identity is required")
	}
	if opts.Client == nil {
		return nil, errors.New("MQTT client is required")
	}
	if opts.Source == nil {
		return nil, errors.New("device source is required")
	}

	p := &Publisher{
		id:      opts.Device.ID,
		client:  opts.Client,
		source:  opts.Source,
		topics:  opts.Topics,
		qos:     opts.QoS,
		version: opts.Version,
		logger:  opts.Logger,
		latest:  opts.Device,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	return p, nil
}

// Start follows the registry and publishes the initial config, availability
// and state. Calling it more than once has no effect.
func (p *Publisher) Start() {
	p.startOnce.Do(func() {
		p.unwatch = p.source.Watch(p.onEvent)

		// Transitions made before Watch returned would otherwise be lost.
		if dev, err := p.source.Get(p.id.Value); err == nil && dev.ID == p.id {
			p.update(dev)
		}

		p.client.SetOnConnect(p.requestConfig)
		if err := p.client.Subscribe(p.topics.HAStatus(), p.qos, p.handleHAStatus); err != nil {
			p.logger.Warn("subscribing to home assistant status", "id", p.id.String(), "error", err)
		}

		p.wg.Add(1)
		go p.run()
		p.requestConfig()
	})
}

// Latest returns the snapshot the publisher will publish next.
func (p *Publisher) Latest() device.Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

func (p *Publisher) onEvent(ev device.Event) {
	if ev.Device.ID != p.id {
		return
	}
	p.update(ev.Device)
}

// update keeps the snapshot with the furthest-advanced state. Events from
// different goroutines may arrive out of order; states only move forward.
func (p *Publisher) update(dev device.Device) {
	p.mu.Lock()
	if stateRank(dev.State) >= stateRank(p.latest.State) {
		p.latest = dev
	}
	p.mu.Unlock()
	p.signal()
}

func (p *Publisher) requestConfig() {
	p.mu.Lock()
	p.sendConfig = true
	p.mu.Unlock()
	p.signal()
}

func (p *Publisher) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Publisher) handleHAStatus(_ string, payload []byte) error {
	if strings.TrimSpace(string(payload)) == mqtt.PayloadOnline {
		p.logger.Debug("home assistant online, republishing config", "id", p.id.String())
		p.requestConfig()
	}
	return nil
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
			p.flush()
		}
	}
}

func (p *Publisher) flush() {
	p.mu.Lock()
	dev := p.latest
	sendConfig := p.sendConfig
	p.sendConfig = false
	p.mu.Unlock()

	id := dev.ID.Value

	if sendConfig {
		payload, err := buildDiscoveryConfig(p.topics, dev, p.version)
		if err != nil {
			p.logger.Error("encoding discovery config", "id", p.id.String(), "error", err)
		} else if err := p.client.Publish(p.topics.CoverConfig(id), payload, p.qos, true); err != nil {
			// Retried on the next (re)connect.
			p.logger.Warn("publishing discovery config", "id", p.id.String(), "error", err)
		}
	}

	if err := p.client.Publish(p.topics.Availability(id), availabilityPayload(dev), p.qos, true); err != nil {
		p.logger.Warn("publishing availability", "id", p.id.String(), "error", err)
	}

	state, err := buildStateDocument(dev)
	if err != nil {
		p.logger.Error("encoding state document", "id", p.id.String(), "error", err)
		return
	}
	if err := p.client.Publish(p.topics.State(id), state, p.qos, true); err != nil {
		p.logger.Warn("publishing state", "id", p.id.String(), "error", err)
		return
	}
	p.logger.Debug("published device state", "id", p.id.String(), "state", string(dev.State))
}

// Close stops following the registry, drops the Home Assistant status
// subscription and closes the session, which publishes "offline".
// Safe to call multiple times.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		if p.unwatch != nil {
			p.unwatch()
		}
		close(p.done)
		p.wg.Wait()
		if p.client.IsConnected() {
			if err := p.client.Unsubscribe(p.topics.HAStatus()); err != nil {
				p.logger.Warn("unsubscribing from home assistant status", "id", p.id.String(), "error", err)
			}
		}
		p.closeErr = p.client.Close()
	})
	return p.closeErr
}

func stateRank(s device.ConnState) int {
	switch s {
	case device.StateDiscovered:
		return 1
	case device.StateConnecting:
		return 2
	case device.StateConnected:
		return 3
	default:
		return 0
	}
}
