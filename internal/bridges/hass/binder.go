package hass

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/device"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/config"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/mqtt"
)

// ErrClosed is returned by Bind after Close.
var ErrClosed = errors.New("hass: binder closed")

// Dialer opens a broker session. Tests substitute a fake.
type Dialer func(cfg config.MQTTConfig, session mqtt.Session) (MQTTClient, error)

// BinderOptions configures a Binder.
type BinderOptions struct {
	Config config.MQTTConfig
	Source DeviceSource

	// Optional.
	Version string
	Logger  Logger
	Dial    Dialer
}

// Binder is the dispatch binding that starts a Publisher per device.
type Binder struct {
	cfg     config.MQTTConfig
	source  DeviceSource
	topics  mqtt.Topics
	version string
	logger  Logger
	dial    Dialer

	mu         sync.Mutex
	publishers map[device.Identity]*Publisher
	closed     bool
}

// NewBinder validates opts and creates a Binder.
func NewBinder(opts BinderOptions) (*Binder, error) {
	if opts.Config.URL == "" {
		return nil, errors.New("MQTT url is required")
	}
	if opts.Source == nil {
		return nil, errors.New("device source is required")
	}
	if opts.Config.QoS < 0 || opts.Config.QoS > 2 {
		return nil, mqtt.ErrInvalidQoS
	}

	b := &Binder{
		cfg:        opts.Config,
		source:     opts.Source,
		topics:     mqtt.Topics{Base: opts.Config.BaseTopic},
		version:    opts.Version,
		logger:     opts.Logger,
		dial:       opts.Dial,
		publishers: make(map[device.Identity]*Publisher),
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	if b.dial == nil {
		b.dial = b.connect
	}
	return b, nil
}

func (b *Binder) connect(cfg config.MQTTConfig, session mqtt.Session) (MQTTClient, error) {
	c, err := mqtt.Connect(cfg, session)
	if err != nil {
		return nil, err
	}
	c.SetLogger(b.logger)
	return c, nil
}

// Name identifies the binding in logs.
func (b *Binder) Name() string {
	return "mqtt"
}

// Session returns the broker session parameters for a device id.
func (b *Binder) Session(id string) mqtt.Session {
	return mqtt.Session{
		ClientID:       b.cfg.ClientIDPrefix + mqtt.SanitizeSegment(id),
		WillTopic:      b.topics.Availability(id),
		OfflinePayload: mqtt.PayloadOffline,
	}
}

// Bind opens a session for dev and starts publishing it. A device that is
// already bound is left alone.
func (b *Binder) Bind(ctx context.Context, dev device.Device) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if _, ok := b.publishers[dev.ID]; ok {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	session := b.Session(dev.ID.Value)
	client, err := b.dial(b.cfg, session)
	if err != nil {
		return fmt.Errorf("mqtt session for %s: %w", dev.ID, err)
	}

	p, err := NewPublisher(PublisherOptions{
		Device:  dev,
		Client:  client,
		Source:  b.source,
		Topics:  b.topics,
		QoS:     byte(b.cfg.QoS),
		Version: b.version,
		Logger:  b.logger,
	})
	if err != nil {
		client.Close()
		return err
	}

	b.mu.Lock()
	if b.closed || ctx.Err() != nil {
		b.mu.Unlock()
		client.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrClosed
	}
	if _, ok := b.publishers[dev.ID]; ok {
		b.mu.Unlock()
		client.Close()
		return nil
	}
	b.publishers[dev.ID] = p
	b.mu.Unlock()

	p.Start()
	b.logger.Info("publishing device to home assistant", "id", dev.ID.String(), "client_id", session.ClientID)
	return nil
}

// Publisher returns the publisher for id, if bound.
func (b *Binder) Publisher(id device.Identity) (*Publisher, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.publishers[id]
	return p, ok
}

// Count returns the number of bound devices.
func (b *Binder) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.publishers)
}

// Close closes every publisher. Errors are joined.
func (b *Binder) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	publishers := make([]*Publisher, 0, len(b.publishers))
	for _, p := range b.publishers {
		publishers = append(publishers, p)
	}
	b.mu.Unlock()

	var errs []error
	for _, p := range publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
