package api

import (
	"net/http"
)

// handleScanStatus returns the discovery session status.
func (s *Server) handleScanStatus(w http.ResponseWriter, _ *http.Request) {
	if s.scan == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "discovery not running")
		return
	}
	writeJSON(w, http.StatusOK, s.scan.Status())
}

// handleHistory returns persisted sightings, most recently seen first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is disabled")
		return
	}

	sightings, err := s.history.List(r.Context())
	if err != nil {
		s.logger.Error("listing sightings", "error", err)
		writeInternalError(w, "failed to list history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sightings": sightings,
		"count":     len(sightings),
	})
}
