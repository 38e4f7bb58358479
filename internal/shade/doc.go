// Package shade is the control layer for a single SOMA blind controller.
//
// A Shade is built from the device identity, its radio peripheral and the
// adapter. Connect is fire-and-forget: the shade retries in its own
// goroutine and reports progress through OnStateChange, which the bridge
// uses to mark the device connected in the registry.
//
// Positioning and calibration commands are not implemented.
package shade
