// Package config handles loading and validating the SOMA bridge configuration.
//
// This package manages:
//   - Default values for every section
//   - An optional YAML file (--config or SOMA_CONFIG)
//   - SOMA_* environment variable overrides
//   - Command-line flags and positional device ids
//
// Positional ids are RISE device names or MAC addresses. An id prefixed
// with "_" is ignored instead of targeted:
//
//	somabridge --url mqtt://localhost RISE108 RISE109 _RISE110
//
// Security Considerations:
//   - Prefer SOMA_MQTT_PASSWORD or --mqtt-password-prompt over -p, which
//     leaves the password in shell history
//
// Usage:
//
//	opts, err := config.ParseArgs("somabridge", os.Args[1:], os.Stderr)
//	if err != nil {
//	    return err
//	}
//	cfg, err := config.Load(opts)
package config
