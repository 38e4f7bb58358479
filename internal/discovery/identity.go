package discovery

import (
	"strings"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/ble"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/device"
)

const (
	// FamilyPrefix starts the advertised name of every SOMA blind controller.
	FamilyPrefix = "RISE"

	// SentinelName is advertised by some controllers instead of a full name.
	SentinelName = "S"
)

// Resolve returns the identity of an advertisement.
//
// A name carrying FamilyPrefix is used verbatim. Anything else falls back
// to the normalised address. Advertisements with neither are unresolvable.
func Resolve(adv ble.Advertisement) (device.Identity, bool) {
	if strings.HasPrefix(adv.LocalName, FamilyPrefix) {
		return device.NameIdentity(adv.LocalName), true
	}
	if key := NormalizeAddress(adv.Address); key != "" {
		return device.AddressIdentity(key), true
	}
	return device.Identity{}, false
}

// NormalizeAddress removes separators from a radio address and lower-cases it.
func NormalizeAddress(addr string) string {
	return strings.ToLower(stripSeparators(addr))
}

// NormalizeID prepares a user-supplied id for comparison.
// Separators are removed. Values that look like a MAC address are
// lower-cased; device names keep their case.
func NormalizeID(id string) string {
	v := stripSeparators(strings.TrimSpace(id))
	if isHexAddress(v) {
		return strings.ToLower(v)
	}
	return v
}

func stripSeparators(s string) string {
	return strings.NewReplacer(":", "", "-", "").Replace(s)
}

// isHexAddress reports whether s is 12 hex digits.
func isHexAddress(s string) bool {
	const macDigits = 12
	if len(s) != macDigits {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
