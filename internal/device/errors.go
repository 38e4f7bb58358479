package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no device has the requested identity.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when a device snapshot cannot be stored.
	ErrInvalidDevice = errors.New("device: invalid")
)
