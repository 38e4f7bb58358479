// Package logging provides structured logging for the SOMA bridge.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and honours one configured level.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error (--debug forces debug)
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("scanning", "mode", "timeout", "seconds", 30)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
