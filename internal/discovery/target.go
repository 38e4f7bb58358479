package discovery

import (
	"fmt"
	"time"
)

// TargetKind is the stop condition of a scan.
type TargetKind int

const (
	// TargetTimeout stops after a fixed duration and connects whatever was found.
	TargetTimeout TargetKind = iota

	// TargetCount stops once a number of devices is registered.
	TargetCount

	// TargetExplicit scans for a fixed set of ids and connects each on sight.
	TargetExplicit
)

// String returns the mode name used in logs and the dashboard.
func (k TargetKind) String() string {
	switch k {
	case TargetTimeout:
		return "timeout"
	case TargetCount:
		return "count"
	case TargetExplicit:
		return "explicit"
	default:
		return "unknown"
	}
}

// ScanTarget is computed once at startup and never changes.
type ScanTarget struct {
	Kind    TargetKind
	Timeout time.Duration
	Count   int
	IDs     IDSet
}

// NewScanTarget picks the stop condition.
//
// An explicit id list wins, and its size becomes the count. Otherwise a
// positive expected count selects count mode, and timeout mode is the
// fallback.
func NewScanTarget(ids IDSet, expected int, timeout time.Duration) ScanTarget {
	switch {
	case ids.Len() > 0:
		return ScanTarget{Kind: TargetExplicit, Count: ids.Len(), IDs: ids}
	case expected > 0:
		return ScanTarget{Kind: TargetCount, Count: expected}
	default:
		return ScanTarget{Kind: TargetTimeout, Timeout: timeout}
	}
}

// Bounded reports whether the target stops on a registry size.
func (t ScanTarget) Bounded() bool {
	return t.Kind == TargetCount || t.Kind == TargetExplicit
}

// Describe returns the human-readable plan for the startup log.
func (t ScanTarget) Describe() string {
	switch t.Kind {
	case TargetExplicit:
		return fmt.Sprintf("scanning for %d device(s) %s", t.Count, t.IDs)
	case TargetCount:
		return fmt.Sprintf("no device names supplied, will stop scanning after %d device(s) are found", t.Count)
	default:
		return fmt.Sprintf("no device names supplied, will stop scanning after %s", t.Timeout)
	}
}
