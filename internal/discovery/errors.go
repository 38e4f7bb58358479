package discovery

import "errors"

var (
	// ErrNoDevicesFound is returned by Run when the scan timeout expires
	// before any device was accepted.
	ErrNoDevicesFound = errors.New("discovery: no devices found")

	// ErrScanFailed is returned by Run when the adapter refuses to scan.
	ErrScanFailed = errors.New("discovery: scan failed")
)
