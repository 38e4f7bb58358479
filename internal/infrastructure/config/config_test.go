package config

import (
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
discovery:
  timeout: 45
  ids: ["RISE108"]
mqtt:
  url: "mqtt://localhost:1883"
  base_topic: "soma"
  qos: 0
database:
  enabled: true
  path: "/tmp/soma.db"
`
	cfg, err := Load(&Options{ConfigPath: writeConfig(t, content)})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Discovery.Timeout != 45 {
		t.Errorf("Discovery.Timeout = %d, want 45", cfg.Discovery.Timeout)
	}
	if cfg.MQTT.URL != "mqtt://localhost:1883" {
		t.Errorf("MQTT.URL = %q, want %q", cfg.MQTT.URL, "mqtt://localhost:1883")
	}
	if cfg.MQTT.BaseTopic != "soma/" {
		t.Errorf("MQTT.BaseTopic = %q, want %q", cfg.MQTT.BaseTopic, "soma/")
	}
	if !reflect.DeepEqual(cfg.Discovery.IDs, []string{"RISE108"}) {
		t.Errorf("Discovery.IDs = %v, want [RISE108]", cfg.Discovery.IDs)
	}
	// Untouched sections keep their defaults.
	if cfg.Bluetooth.Adapter != "hci0" {
		t.Errorf("Bluetooth.Adapter = %q, want hci0", cfg.Bluetooth.Adapter)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load(&Options{
		MQTTURL: "mqtt://broker",
		set:     map[string]bool{"mqtt-url": true},
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MQTT.BaseTopic != "homeassistant/" {
		t.Errorf("MQTT.BaseTopic = %q, want homeassistant/", cfg.MQTT.BaseTopic)
	}
	if cfg.DiscoveryTimeout() != 30*time.Second {
		t.Errorf("DiscoveryTimeout() = %v, want 30s", cfg.DiscoveryTimeout())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(&Options{ConfigPath: "/nonexistent/path/config.yaml"})
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(&Options{ConfigPath: writeConfig(t, "invalid: [yaml: content")})
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_NoOutputs(t *testing.T) {
	_, err := Load(&Options{})
	if !errors.Is(err, ErrNoOutputs) {
		t.Fatalf("Load() error = %v, want ErrNoOutputs", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SOMA_URL", "mqtt://env-broker")
	t.Setenv("SOMA_EXPRESS_PORT", "8080")
	t.Setenv("SOMA_EXPECTED_DEVICES", "3")
	t.Setenv("SOMA_DEBUG", "true")

	cfg, err := Load(&Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MQTT.URL != "mqtt://env-broker" {
		t.Errorf("MQTT.URL = %q, want mqtt://env-broker", cfg.MQTT.URL)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("Dashboard.Port = %d, want 8080", cfg.Dashboard.Port)
	}
	if cfg.Discovery.ExpectedDevices != 3 {
		t.Errorf("Discovery.ExpectedDevices = %d, want 3", cfg.Discovery.ExpectedDevices)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_EnvInvalidInteger(t *testing.T) {
	t.Setenv("SOMA_DISCOVERY_TIMEOUT", "soon")
	t.Setenv("SOMA_URL", "mqtt://env-broker")

	_, err := Load(&Options{})
	if err == nil || !strings.Contains(err.Error(), "SOMA_DISCOVERY_TIMEOUT") {
		t.Fatalf("Load() error = %v, want SOMA_DISCOVERY_TIMEOUT error", err)
	}
}

func TestLoad_FlagsOverrideEnvAndFile(t *testing.T) {
	t.Setenv("SOMA_URL", "mqtt://env-broker")
	path := writeConfig(t, "discovery:\n  timeout: 10\n")

	opts, err := ParseArgs("somabridge", []string{"--config", path, "-t", "99", "--url", "mqtt://flag-broker"}, io.Discard)
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Discovery.Timeout != 99 {
		t.Errorf("Discovery.Timeout = %d, want 99", cfg.Discovery.Timeout)
	}
	if cfg.MQTT.URL != "mqtt://flag-broker" {
		t.Errorf("MQTT.URL = %q, want mqtt://flag-broker", cfg.MQTT.URL)
	}
}

func TestParseArgs(t *testing.T) {
	opts, err := ParseArgs("somabridge", []string{
		"RISE108", "-e", "2", "_RISE110", "--express-port", "3000", "aa:bb:cc:dd:ee:ff", "-d",
	}, io.Discard)
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}

	if !reflect.DeepEqual(opts.IDs, []string{"RISE108", "aa:bb:cc:dd:ee:ff"}) {
		t.Errorf("IDs = %v", opts.IDs)
	}
	if !reflect.DeepEqual(opts.IgnoreIDs, []string{"RISE110"}) {
		t.Errorf("IgnoreIDs = %v", opts.IgnoreIDs)
	}
	if opts.ExpectedDevices != 2 || !opts.IsSet("expected-devices") {
		t.Errorf("ExpectedDevices = %d (set=%v), want 2", opts.ExpectedDevices, opts.IsSet("expected-devices"))
	}
	if opts.DashboardPort != 3000 || !opts.IsSet("dashboard-port") {
		t.Errorf("DashboardPort = %d, want 3000", opts.DashboardPort)
	}
	if !opts.Debug {
		t.Error("Debug = false, want true")
	}
	if opts.IsSet("mqtt-url") {
		t.Error("mqtt-url reported as set")
	}
}

func TestOptions_SetPassword(t *testing.T) {
	t.Setenv("SOMA_MQTT_PASSWORD", "from-env")

	opts, err := ParseArgs("somabridge", []string{"--url", "mqtt://broker", "--mqtt-password-prompt"}, io.Discard)
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if !opts.PasswordPrompt {
		t.Fatal("PasswordPrompt = false")
	}
	opts.SetPassword("typed")

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MQTT.Password != "typed" {
		t.Errorf("MQTT.Password = %q, want typed", cfg.MQTT.Password)
	}
}

func TestParseArgs_Help(t *testing.T) {
	_, err := ParseArgs("somabridge", []string{"-h"}, io.Discard)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("ParseArgs(-h) error = %v, want flag.ErrHelp", err)
	}
}

func TestParseDeviceArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantIDs    []string
		wantIgnore []string
	}{
		{name: "empty", args: nil},
		{name: "ids only", args: []string{"RISE1", "RISE2"}, wantIDs: []string{"RISE1", "RISE2"}},
		{name: "ignore only", args: []string{"_RISE1"}, wantIgnore: []string{"RISE1"}},
		{name: "bare prefix dropped", args: []string{"_", ""}},
		{name: "mixed", args: []string{"_a", "b"}, wantIDs: []string{"b"}, wantIgnore: []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, ignore := ParseDeviceArgs(tt.args)
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
			if !reflect.DeepEqual(ignore, tt.wantIgnore) {
				t.Errorf("ignore = %v, want %v", ignore, tt.wantIgnore)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid with mqtt",
			modify: func(c *Config) { c.MQTT.URL = "mqtt://x" },
		},
		{
			name:   "valid with dashboard",
			modify: func(c *Config) { c.Dashboard.Port = 8080 },
		},
		{
			name: "zero timeout",
			modify: func(c *Config) {
				c.MQTT.URL = "mqtt://x"
				c.Discovery.Timeout = 0
			},
			wantErr: true,
		},
		{
			name: "negative expected devices",
			modify: func(c *Config) {
				c.MQTT.URL = "mqtt://x"
				c.Discovery.ExpectedDevices = -1
			},
			wantErr: true,
		},
		{
			name: "invalid qos",
			modify: func(c *Config) {
				c.MQTT.URL = "mqtt://x"
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{
			name:    "port out of range",
			modify:  func(c *Config) { c.Dashboard.Port = 70000 },
			wantErr: true,
		},
		{
			name: "influx enabled without url",
			modify: func(c *Config) {
				c.MQTT.URL = "mqtt://x"
				c.InfluxDB.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "unsupported adapter",
			modify: func(c *Config) {
				c.MQTT.URL = "mqtt://x"
				c.Bluetooth.Adapter = "hci1"
			},
			wantErr: true,
		},
		{
			name: "empty adapter",
			modify: func(c *Config) {
				c.MQTT.URL = "mqtt://x"
				c.Bluetooth.Adapter = ""
			},
			wantErr: true,
		},
		{
			name:    "no outputs",
			modify:  func(*Config) {},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Timeouts(t *testing.T) {
	cfg := defaultConfig()

	if cfg.GetReadTimeout() != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", cfg.GetReadTimeout())
	}
	if cfg.GetWriteTimeout() != 30*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 30s", cfg.GetWriteTimeout())
	}
	if cfg.GetIdleTimeout() != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", cfg.GetIdleTimeout())
	}
}
