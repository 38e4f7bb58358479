package config

import "errors"

// ErrNoOutputs is returned by Validate when neither an MQTT URL nor a
// dashboard port is configured, so discovered devices would have nowhere to go.
var ErrNoOutputs = errors.New("config: no mqtt url or dashboard port configured")
