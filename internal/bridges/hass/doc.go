// Package hass publishes discovered blinds to Home Assistant over MQTT.
//
// Each blind handed to the Binder gets its own broker session whose Last
// Will marks the blind unavailable. The Publisher for that session sends:
//
//   - a retained discovery config on <base>cover/<id>/config
//   - "online" or "offline" on <base>cover/<id>/availability
//   - a JSON state document on <base>cover/<id>/state
//
// The config is sent again whenever Home Assistant announces "online" on
// <base>status and whenever the session reconnects. Availability and state
// follow the device registry: a blind is online once connected.
package hass
