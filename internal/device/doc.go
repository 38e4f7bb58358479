// Package device holds the registry of accepted SOMA blind controllers.
//
// Each controller is keyed by an Identity: its advertised RISE name when
// it has one, otherwise its normalised radio address. The two id spaces
// never collide.
//
// A device moves through three connection states:
//
//	discovered -> connecting -> connected
//
// The discovery loop registers devices and issues BeginConnect exactly once
// per device. The control layer reports MarkConnected. Everything else
// (dashboard, MQTT publisher) reads snapshots or subscribes with Watch.
//
// The package also persists a sighting history in SQLite so operators can
// see which controllers have been found across restarts:
//
//	repo := device.NewSQLiteRepository(db.DB)
//	binding := device.NewHistoryBinding(repo)
package device
