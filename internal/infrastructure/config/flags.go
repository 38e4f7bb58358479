package config

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// IgnorePrefix marks a positional device id as one to ignore.
const IgnorePrefix = "_"

// Options holds the command-line surface of the bridge.
// Only flags that were actually given override file and environment values.
type Options struct {
	ConfigPath string

	DiscoveryTimeout int
	ExpectedDevices  int
	DashboardPort    int

	MQTTURL        string
	BaseTopic      string
	Username       string
	Password       string
	PasswordPrompt bool

	Debug bool

	IDs       []string
	IgnoreIDs []string

	set map[string]bool
}

// flagAliases maps every accepted flag name to its canonical name.
var flagAliases = map[string]string{
	"t":                 "discovery-timeout",
	"discovery-timeout": "discovery-timeout",
	"e":                 "expected-devices",
	"expected-devices":  "expected-devices",
	"l":                 "dashboard-port",
	"express-port":      "dashboard-port",
	"dashboard-port":    "dashboard-port",
	"url":               "mqtt-url",
	"mqtt-url":          "mqtt-url",
	"topic":             "mqtt-base-topic",
	"mqtt-base-topic":   "mqtt-base-topic",
	"u":                 "mqtt-username",
	"mqtt-username":     "mqtt-username",
	"p":                 "mqtt-password",
	"mqtt-password":     "mqtt-password",
}

// ParseArgs parses command-line arguments.
//
// Flags and positional device ids may be interleaved. Positional ids that
// start with IgnorePrefix are added to the ignore list without the prefix.
// Returns flag.ErrHelp when -h or --help was requested.
func ParseArgs(name string, args []string, output io.Writer) (*Options, error) {
	opts := &Options{set: make(map[string]bool)}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options] [device ids...]\n\n", name)
		fmt.Fprintf(fs.Output(), "Device ids are RISE names or MAC addresses; prefix with %q to ignore one.\n\n", IgnorePrefix)
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.ConfigPath, "config", "", "path to an optional YAML config file")

	intVar(fs, &opts.DiscoveryTimeout, 30, "stop scanning after this many seconds", "t", "discovery-timeout")
	intVar(fs, &opts.ExpectedDevices, 0, "stop scanning once this many devices are found", "e", "expected-devices")
	intVar(fs, &opts.DashboardPort, 0, "port for the dashboard HTTP server (0 disables)", "l", "express-port", "dashboard-port")

	stringVar(fs, &opts.MQTTURL, "", "MQTT broker url, e.g. mqtt://localhost:1883", "url", "mqtt-url")
	stringVar(fs, &opts.BaseTopic, "homeassistant", "MQTT base topic", "topic", "mqtt-base-topic")
	stringVar(fs, &opts.Username, "", "MQTT username", "u", "mqtt-username")
	stringVar(fs, &opts.Password, "", "MQTT password", "p", "mqtt-password")

	fs.BoolVar(&opts.PasswordPrompt, "mqtt-password-prompt", false, "read the MQTT password from the terminal")
	fs.BoolVar(&opts.Debug, "d", false, "enable debug logging")
	fs.BoolVar(&opts.Debug, "debug", false, "enable debug logging")

	var positional []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return nil, err
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		positional = append(positional, rest[0])
		rest = rest[1:]
	}

	fs.Visit(func(f *flag.Flag) {
		if canonical, ok := flagAliases[f.Name]; ok {
			opts.set[canonical] = true
			return
		}
		opts.set[f.Name] = true
	})

	opts.IDs, opts.IgnoreIDs = ParseDeviceArgs(positional)
	return opts, nil
}

// ParseDeviceArgs splits positional arguments into connect ids and ignore ids.
// Empty values are dropped.
func ParseDeviceArgs(args []string) (ids, ignore []string) {
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if strings.HasPrefix(arg, IgnorePrefix) {
			if v := strings.TrimPrefix(arg, IgnorePrefix); v != "" {
				ignore = append(ignore, v)
			}
			continue
		}
		if arg != "" {
			ids = append(ids, arg)
		}
	}
	return ids, ignore
}

// IsSet reports whether the flag with the given canonical name was passed.
func (o *Options) IsSet(name string) bool {
	return o.set[name]
}

// SetPassword overrides the MQTT password as if -p had been given.
func (o *Options) SetPassword(password string) {
	if o.set == nil {
		o.set = make(map[string]bool)
	}
	o.Password = password
	o.set["mqtt-password"] = true
}

// apply overwrites cfg with every flag that was explicitly given.
func (o *Options) apply(cfg *Config) {
	if o.set == nil {
		o.set = make(map[string]bool)
	}

	if o.IsSet("discovery-timeout") {
		cfg.Discovery.Timeout = o.DiscoveryTimeout
	}
	if o.IsSet("expected-devices") {
		cfg.Discovery.ExpectedDevices = o.ExpectedDevices
	}
	if o.IsSet("dashboard-port") {
		cfg.Dashboard.Port = o.DashboardPort
	}
	if o.IsSet("mqtt-url") {
		cfg.MQTT.URL = o.MQTTURL
	}
	if o.IsSet("mqtt-base-topic") {
		cfg.MQTT.BaseTopic = o.BaseTopic
	}
	if o.IsSet("mqtt-username") {
		cfg.MQTT.Username = o.Username
	}
	if o.IsSet("mqtt-password") {
		cfg.MQTT.Password = o.Password
	}
	if o.Debug {
		cfg.Logging.Level = "debug"
	}

	if len(o.IDs) > 0 {
		cfg.Discovery.IDs = o.IDs
	}
	if len(o.IgnoreIDs) > 0 {
		cfg.Discovery.IgnoreIDs = o.IgnoreIDs
	}
}

func intVar(fs *flag.FlagSet, p *int, value int, usage string, names ...string) {
	for _, n := range names {
		fs.IntVar(p, n, value, usage)
	}
}

func stringVar(fs *flag.FlagSet, p *string, value, usage string, names ...string) {
	for _, n := range names {
		fs.StringVar(p, n, value, usage)
	}
}
