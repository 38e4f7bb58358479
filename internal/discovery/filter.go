package discovery

import (
	"sort"
	"strings"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/ble"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/device"
)

// IDSet is an immutable set of normalised device ids.
type IDSet struct {
	members map[string]struct{}
}

// NewIDSet normalises ids with NormalizeID and drops empties and duplicates.
func NewIDSet(ids []string) IDSet {
	s := IDSet{members: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if v := NormalizeID(id); v != "" {
			s.members[v] = struct{}{}
		}
	}
	return s
}

// Contains reports whether v is a member. v must already be normalised.
func (s IDSet) Contains(v string) bool {
	if v == "" {
		return false
	}
	_, ok := s.members[v]
	return ok
}

// Len returns the number of distinct ids.
func (s IDSet) Len() int {
	return len(s.members)
}

// Values returns the members in sorted order.
func (s IDSet) Values() []string {
	out := make([]string, 0, len(s.members))
	for v := range s.members {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// String renders the set for logs.
func (s IDSet) String() string {
	return "[" + strings.Join(s.Values(), ", ") + "]"
}

// Filter decides which advertisements are blind controllers and which of
// those this run may take.
type Filter struct {
	allow  IDSet
	ignore IDSet
}

// NewFilter creates a filter. An empty allow list accepts every candidate.
func NewFilter(allow, ignore []string) *Filter {
	return &Filter{
		allow:  NewIDSet(allow),
		ignore: NewIDSet(ignore),
	}
}

// Allow returns the allow list.
func (f *Filter) Allow() IDSet {
	return f.allow
}

// Ignore returns the ignore list.
func (f *Filter) Ignore() IDSet {
	return f.ignore
}

// IsCandidate reports whether an advertisement could be a SOMA controller.
func (f *Filter) IsCandidate(adv ble.Advertisement) bool {
	name := adv.LocalName
	switch {
	case name == SentinelName:
		return true
	case strings.HasPrefix(name, FamilyPrefix):
		return true
	case f.allow.Contains(NormalizeID(name)):
		return true
	case f.allow.Contains(NormalizeAddress(adv.Address)):
		return true
	}
	return false
}

// Decision is the outcome of IsAccepted with its reason.
type Decision int

const (
	// Accepted devices are registered.
	Accepted Decision = iota

	// Ignored devices are on the ignore list.
	Ignored

	// NotListed devices are missing from a non-empty allow list.
	NotListed
)

// String returns a log-friendly reason.
func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case Ignored:
		return "ignored"
	case NotListed:
		return "not in device list"
	default:
		return "unknown"
	}
}

// Decide applies the ignore list, then the allow list, to a resolved identity.
// addressKey is the normalised address of the advertisement, if any.
func (f *Filter) Decide(id device.Identity, addressKey string) Decision {
	if f.ignore.Contains(id.Value) || f.ignore.Contains(addressKey) {
		return Ignored
	}
	if f.allow.Len() == 0 {
		return Accepted
	}
	if f.allow.Contains(id.Value) || f.allow.Contains(addressKey) {
		return Accepted
	}
	return NotListed
}

// IsAccepted reports whether Decide returns Accepted.
func (f *Filter) IsAccepted(id device.Identity, addressKey string) bool {
	return f.Decide(id, addressKey) == Accepted
}
