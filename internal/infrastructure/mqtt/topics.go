package mqtt

import "strings"

// Home Assistant discovery component and availability payloads.
const (
	ComponentCover = "cover"

	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics builds Home Assistant MQTT discovery topics under a base prefix.
//
//	topics := mqtt.Topics{Base: "homeassistant/"}
//	topics.State("RISE108")
//	// Returns: "homeassistant/cover/RISE108/state"
//
// Base is expected to end in "/"; one is added if missing.
type Topics struct {
	Base string
}

func (t Topics) prefix() string {
	if t.Base == "" || strings.HasSuffix(t.Base, "/") {
		return t.Base
	}
	return t.Base + "/"
}

func (t Topics) cover(id, leaf string) string {
	return t.prefix() + ComponentCover + "/" + SanitizeSegment(id) + "/" + leaf
}

// CoverConfig returns the retained discovery config topic for a cover.
//
// Example: homeassistant/cover/RISE108/config
func (t Topics) CoverConfig(id string) string {
	return t.cover(id, "config")
}

// Availability returns the topic carrying "online" or "offline" for a cover.
//
// Example: homeassistant/cover/RISE108/availability
func (t Topics) Availability(id string) string {
	return t.cover(id, "availability")
}

// State returns the topic carrying the JSON state document for a cover.
//
// Example: homeassistant/cover/RISE108/state
func (t Topics) State(id string) string {
	return t.cover(id, "state")
}

// HAStatus returns the topic Home Assistant announces its own birth on.
//
// Example: homeassistant/status
func (t Topics) HAStatus() string {
	return t.prefix() + "status"
}

// SanitizeSegment makes id safe for use as a single topic level.
// Wildcards, separators and whitespace become underscores.
func SanitizeSegment(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', ' ', '\t', '\n', 0:
			return '_'
		}
		return r
	}, id)
}
