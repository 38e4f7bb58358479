package mqtt

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	defaultPlainPort  = "1883"
	defaultSecurePort = "8883"
)

// schemes maps accepted URL schemes to whether they use TLS.
var schemes = map[string]bool{
	"tcp":   false,
	"mqtt":  false,
	"ws":    false,
	"ssl":   true,
	"tls":   true,
	"mqtts": true,
	"wss":   true,
}

// brokerURL normalises a configured broker address.
//
// A bare host or host:port is treated as tcp. Plain and TLS MQTT schemes
// get the IANA default port when none is given; websocket URLs are left
// to the http defaults.
func brokerURL(raw string) (*url.URL, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false, fmt.Errorf("%w: broker url is empty", ErrInvalidBrokerURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "tcp://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrInvalidBrokerURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)

	secure, ok := schemes[u.Scheme]
	if !ok {
		return nil, false, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBrokerURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, false, fmt.Errorf("%w: missing host in %q", ErrInvalidBrokerURL, raw)
	}

	if u.Port() == "" && u.Scheme != "ws" && u.Scheme != "wss" {
		port := defaultPlainPort
		if secure {
			port = defaultSecurePort
		}
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}

	return u, secure, nil
}

// buildClientOptions creates paho MQTT options from config.
//
// This configures:
//   - Broker URL (scheme decides TLS)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Auto-reconnect with exponential backoff
//   - Clean session mode
func buildClientOptions(cfg config.MQTTConfig, clientID string) (*pahomqtt.ClientOptions, error) {
	broker, secure, err := brokerURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	server := *broker
	server.User = nil

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(server.String())
	opts.SetClientID(clientID)

	// Credentials embedded in the URL lose to explicit ones.
	username, password := cfg.Username, cfg.Password
	if username == "" && broker.User != nil {
		username = broker.User.Username()
		password, _ = broker.User.Password()
	}
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if secure {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
			ServerName: broker.Hostname(),
		})
	}

	return opts, nil
}

// configureLWT registers the session's Last Will, published by the broker
// if the client disconnects unexpectedly. Retained so new subscribers see
// the last availability.
func configureLWT(opts *pahomqtt.ClientOptions, session Session, qos byte) {
	if session.WillTopic == "" || session.OfflinePayload == "" {
		return
	}
	opts.SetWill(session.WillTopic, session.OfflinePayload, qos, true)
}
