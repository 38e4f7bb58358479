// Package dispatch hands connecting devices to their output bindings.
//
// The bridge has two per-device bindings: the Home Assistant MQTT publisher
// (when an MQTT url is configured) and the SQLite sighting history (when
// the database is enabled). The dashboard is not a binding; it reads the
// registry directly.
package dispatch
