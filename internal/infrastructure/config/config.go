package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable prefix for every override.
const envPrefix = "SOMA_"

// Config is the root configuration structure for the SOMA bridge.
// Values come from defaults, an optional YAML file, SOMA_* environment
// variables and finally command-line flags.
type Config struct {
	Discovery DiscoveryConfig `yaml:"discovery"`
	Bluetooth BluetoothConfig `yaml:"bluetooth"`
	Shade     ShadeConfig     `yaml:"shade"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DiscoveryConfig controls when scanning stops and which devices are accepted.
type DiscoveryConfig struct {
	// Timeout is the scan duration in seconds when neither ids nor an
	// expected device count are given.
	Timeout int `yaml:"timeout"`

	// ExpectedDevices stops scanning once this many devices are registered.
	// Zero selects timeout mode.
	ExpectedDevices int `yaml:"expected_devices"`

	// IDs restricts discovery to these device names or MAC addresses.
	IDs []string `yaml:"ids"`

	// IgnoreIDs are never accepted, even when they look like SOMA devices.
	IgnoreIDs []string `yaml:"ignore_ids"`
}

// SupportedAdapter is the only HCI adapter the BlueZ driver can open.
const SupportedAdapter = "hci0"

// BluetoothConfig selects the local HCI adapter.
type BluetoothConfig struct {
	Adapter     string `yaml:"adapter"`
	EventBuffer int    `yaml:"event_buffer"`
}

// ShadeConfig contains connect retry settings for each blind controller.
type ShadeConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	RetryDelay     int `yaml:"retry_delay"`
	ConnectTimeout int `yaml:"connect_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	// URL is the broker address, e.g. mqtt://localhost:1883 or wss://host/mqtt.
	// Empty disables the MQTT publisher.
	URL            string              `yaml:"url"`
	BaseTopic      string              `yaml:"base_topic"`
	Username       string              `yaml:"username"`
	Password       string              `yaml:"password"`
	ClientIDPrefix string              `yaml:"client_id_prefix"`
	QoS            int                 `yaml:"qos"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DashboardConfig contains the HTTP dashboard settings.
// A zero port disables the dashboard.
type DashboardConfig struct {
	Host     string                 `yaml:"host"`
	Port     int                    `yaml:"port"`
	Timeouts DashboardTimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig             `yaml:"cors"`
}

// DashboardTimeoutConfig contains HTTP timeout settings in seconds.
type DashboardTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// DatabaseConfig contains SQLite settings for the sighting history.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for discovery telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load builds the configuration for a run.
//
// The loading order is:
//  1. Default values
//  2. YAML file at opts.ConfigPath (optional)
//  3. SOMA_* environment variables
//  4. Command-line flags and positional device ids
//
// Returns ErrNoOutputs (wrapped) when neither an MQTT URL nor a dashboard
// port ends up configured.
func Load(opts *Options) (*Config, error) {
	if opts == nil {
		opts = &Options{}
	}

	cfg := defaultConfig()

	path := opts.ConfigPath
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	opts.apply(cfg)
	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Discovery: DiscoveryConfig{
			Timeout: 30,
		},
		Bluetooth: BluetoothConfig{
			Adapter:     SupportedAdapter,
			EventBuffer: 64,
		},
		Shade: ShadeConfig{
			MaxAttempts:    5,
			RetryDelay:     5,
			ConnectTimeout: 20,
		},
		MQTT: MQTTConfig{
			BaseTopic:      "homeassistant",
			ClientIDPrefix: "soma-",
			QoS:            1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Dashboard: DashboardConfig{
			Host: "0.0.0.0",
			Timeouts: DashboardTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Database: DatabaseConfig{
			Path:        "./data/soma.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SOMA_SECTION_KEY, plus the short
// names the command-line flags use (SOMA_URL, SOMA_TOPIC, SOMA_EXPRESS_PORT).
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setInt := func(dst *int, keys ...string) {
		for _, key := range keys {
			v := os.Getenv(envPrefix + key)
			if v == "" {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s must be an integer", envPrefix, key))
				return
			}
			*dst = n
			return
		}
	}
	setString := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := os.Getenv(envPrefix + key); v != "" {
				*dst = v
				return
			}
		}
	}

	// Discovery
	setInt(&cfg.Discovery.Timeout, "DISCOVERY_TIMEOUT")
	setInt(&cfg.Discovery.ExpectedDevices, "EXPECTED_DEVICES")

	// Bluetooth
	setString(&cfg.Bluetooth.Adapter, "BLUETOOTH_ADAPTER")

	// MQTT
	setString(&cfg.MQTT.URL, "MQTT_URL", "URL")
	setString(&cfg.MQTT.BaseTopic, "MQTT_BASE_TOPIC", "TOPIC")
	setString(&cfg.MQTT.Username, "MQTT_USERNAME")
	setString(&cfg.MQTT.Password, "MQTT_PASSWORD")

	// Dashboard
	setInt(&cfg.Dashboard.Port, "DASHBOARD_PORT", "EXPRESS_PORT")

	// Database
	setString(&cfg.Database.Path, "DATABASE_PATH")

	// InfluxDB
	setString(&cfg.InfluxDB.Token, "INFLUXDB_TOKEN")

	// Logging
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	if v, _ := strconv.ParseBool(os.Getenv(envPrefix + "DEBUG")); v {
		cfg.Logging.Level = "debug"
	}

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

// normalise fixes up derived values after every source has been applied.
func (c *Config) normalise() {
	if c.MQTT.BaseTopic != "" && !strings.HasSuffix(c.MQTT.BaseTopic, "/") {
		c.MQTT.BaseTopic += "/"
	}
}

// Validate checks the configuration for errors.
//
// All problems are reported together. When no output is configured the
// returned error wraps ErrNoOutputs so callers can map it to an exit code.
func (c *Config) Validate() error {
	var errs []string

	if c.Discovery.Timeout <= 0 {
		errs = append(errs, "discovery.timeout must be greater than 0")
	}
	if c.Discovery.ExpectedDevices < 0 {
		errs = append(errs, "discovery.expected_devices must not be negative")
	}

	switch c.Bluetooth.Adapter {
	case SupportedAdapter:
	case "":
		errs = append(errs, "bluetooth.adapter is required")
	default:
		errs = append(errs, fmt.Sprintf("bluetooth.adapter %q is not supported (only %s)", c.Bluetooth.Adapter, SupportedAdapter))
	}
	if c.Bluetooth.EventBuffer < 1 {
		errs = append(errs, "bluetooth.event_buffer must be at least 1")
	}

	if c.Shade.MaxAttempts < 1 {
		errs = append(errs, "shade.max_attempts must be at least 1")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, "dashboard.port must be between 0 and 65535")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	if !c.HasOutputs() {
		return ErrNoOutputs
	}

	return nil
}

// HasOutputs reports whether at least one consumer of discovered devices
// is configured.
func (c *Config) HasOutputs() bool {
	return c.MQTT.URL != "" || c.Dashboard.Port > 0
}

// DiscoveryTimeout returns the scan timeout as a Duration.
func (c *Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.Timeout) * time.Second
}

// GetReadTimeout returns the dashboard read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Dashboard.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the dashboard write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Dashboard.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the dashboard idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Dashboard.Timeouts.Idle) * time.Second
}
