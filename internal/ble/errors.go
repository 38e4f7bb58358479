package ble

import "errors"

var (
	// ErrNotRunning is returned when scanning is requested before Run.
	ErrNotRunning = errors.New("ble: adapter is not running")

	// ErrUnknownPeripheral is returned when Connect receives a handle
	// that this adapter did not produce.
	ErrUnknownPeripheral = errors.New("ble: unknown peripheral handle")

	// ErrUnsupportedPlatform is returned on platforms without BlueZ.
	ErrUnsupportedPlatform = errors.New("ble: platform not supported")

	// ErrConnectFailed wraps driver connect errors.
	ErrConnectFailed = errors.New("ble: connect failed")
)
