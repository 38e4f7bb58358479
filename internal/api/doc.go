// Package api implements the read-only dashboard: an HTTP API and a
// WebSocket feed of registry changes.
//
// This package provides:
//   - REST endpoints for registered blinds, scan status and sighting history
//   - WebSocket feed of device.registered and device.state_changed events
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// The dashboard has no control surface. Blinds are listed as the discovery
// orchestrator registers them and their state follows the control layer.
//
// # Endpoints
//
//	GET /api/v1/health         liveness plus optional dependency checks
//	GET /api/v1/devices        every registered blind, in registration order
//	GET /api/v1/devices/stats  counts by connection state
//	GET /api/v1/devices/{id}   one blind by name or normalised address
//	GET /api/v1/scan           discovery session status
//	GET /api/v1/history        persisted sightings (database enabled only)
//	GET /api/v1/metrics        runtime, WebSocket and registry metrics
//	GET /api/v1/ws             WebSocket device feed
//
// # Device feed
//
// The feed opens with a snapshot frame holding the same body as
// GET /devices, then sends one event frame per registry change:
//
//	{"type":"event","event":"device.state_changed","time":"...","payload":{"id":"RISE104",...}}
//
// ?events=device.registered limits the feed to the named events. The feed
// is one-way; frames sent by the client are ignored.
package api
