// Package discovery finds SOMA blind controllers and connects to them.
//
// The Orchestrator owns one scan session. Adapter events are processed on a
// single goroutine:
//
//	ready      -> start scanning (arm the timer in timeout mode)
//	discovered -> IsCandidate -> Resolve -> Decide -> register -> connect?
//	stop       -> stop scanning -> connect every registered device
//
// There are three stop conditions, chosen once by NewScanTarget:
//
//   - explicit: a list of ids was given. Each device connects as soon as it
//     is found and scanning stops when all of them were found.
//   - count: stop after N devices and connect them together.
//   - timeout: stop after a duration and connect whatever was found. Finding
//     nothing is reported as ErrNoDevicesFound.
//
// A controller is identified by its advertised name when that name starts
// with "RISE", otherwise by its address with separators removed.
package discovery
