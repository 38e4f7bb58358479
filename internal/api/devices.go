package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/device"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/discovery"
)

// DeviceResponse is the JSON view of a registered blind.
type DeviceResponse struct {
	ID             string           `json:"id"`
	Kind           string           `json:"kind"`
	Name           string           `json:"name,omitempty"`
	Address        string           `json:"address,omitempty"`
	State          device.ConnState `json:"state"`
	RegisteredAt   time.Time        `json:"registered_at"`
	StateChangedAt time.Time        `json:"state_changed_at"`
}

func newDeviceResponse(d device.Device) DeviceResponse {
	return DeviceResponse{
		ID:             d.ID.Value,
		Kind:           string(d.ID.Kind),
		Name:           d.Name,
		Address:        d.Address,
		State:          d.State,
		RegisteredAt:   d.RegisteredAt,
		StateChangedAt: d.StateChangedAt,
	}
}

// handleListDevices returns every registered blind in registration order.
// An optional ?state= filter narrows the list.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	filter := device.ConnState(r.URL.Query().Get("state"))
	if filter != "" && !validState(filter) {
		writeBadRequest(w, "unknown state: "+string(filter))
		return
	}

	writeJSON(w, http.StatusOK, s.deviceList(filter))
}

// DeviceList is the body of GET /devices and of the feed snapshot.
type DeviceList struct {
	Devices []DeviceResponse `json:"devices"`
	Count   int              `json:"count"`
}

// deviceList returns registered blinds in registration order, keeping
// only those in state when it is set.
func (s *Server) deviceList(state device.ConnState) DeviceList {
	devices := s.registry.List()
	out := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		if state != "" && d.State != state {
			continue
		}
		out = append(out, newDeviceResponse(d))
	}
	return DeviceList{Devices: out, Count: len(out)}
}

// handleGetDevice looks a blind up by name, or by address in any common
// notation.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := discovery.NormalizeID(chi.URLParam(r, "id"))
	if id == "" {
		writeBadRequest(w, "device id is required")
		return
	}

	d, err := s.registry.Get(id)
	if errors.Is(err, device.ErrDeviceNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	if err != nil {
		s.logger.Error("getting device", "id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, newDeviceResponse(d))
}

// handleDeviceStats returns device counts by connection state.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

func validState(s device.ConnState) bool {
	for _, known := range device.AllStates() {
		if s == known {
			return true
		}
	}
	return false
}
