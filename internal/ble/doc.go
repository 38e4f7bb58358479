// Package ble defines the radio capability used by discovery and the
// BlueZ implementation of it.
//
// The Adapter interface is deliberately small: a ready signal, a start and
// stop scan pair, a stream of advertisements and a blocking connect. The
// Linux implementation (BlueZ) scans and connects with tinygo.org/x/bluetooth
// and watches the org.bluez.Adapter1 Powered property over the system D-Bus
// to produce ReadyEvent and PoweredOffEvent.
//
// On other platforms NewBlueZ returns an adapter whose Run fails with
// ErrUnsupportedPlatform.
package ble
