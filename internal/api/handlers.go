package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/luftuj/hru-core/internal/hru"
	"github.com/luftuj/hru-core/internal/modbus"
	"github.com/luftuj/hru-core/internal/settings"
	"github.com/luftuj/hru-core/internal/timeline"
)

// handleListUnits returns every unit the catalog knows.
func (s *Server) handleListUnits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Units())
}

// handleGetValues runs one read cycle against the configured unit.
func (s *Server) handleGetValues(w http.ResponseWriter, r *http.Request) {
	values, err := s.controller.ReadValues(r.Context())
	if err != nil {
		if errors.Is(err, hru.ErrNotConfigured) {
			writeNotConfigured(w)
			return
		}
		s.logger.Error("read cycle failed", "error", err)
		writeInternalError(w, "reading values failed")
		return
	}
	writeJSON(w, http.StatusOK, values)
}

// handleSetValues writes a partial setpoint update to the configured unit.
func (s *Server) handleSetValues(w http.ResponseWriter, r *http.Request) {
	var req hru.WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := s.controller.WriteValues(r.Context(), req); err != nil {
		switch {
		case errors.Is(err, hru.ErrNotConfigured):
			writeNotConfigured(w)
		case errors.Is(err, hru.ErrUnknownMode), errors.Is(err, hru.ErrAxisUnsupported):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("setpoint write failed", "error", err)
			writeInternalError(w, "writing values failed")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// statusResponse is the /api/status document.
type statusResponse struct {
	Active   timeline.ActiveState  `json:"active"`
	Override *timeline.Override    `json:"override,omitempty"`
	Unit     *settings.HRUSettings `json:"unit,omitempty"`
}

// handleStatus reports the last tick decision, the live override, and the
// persisted unit selection.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	override, err := s.timeline.Override(r.Context())
	if err != nil {
		s.logger.Error("loading override failed", "error", err)
		writeInternalError(w, "loading status failed")
		return
	}
	unit, err := s.settings.GetHRU(r.Context())
	if err != nil {
		s.logger.Error("loading settings failed", "error", err)
		writeInternalError(w, "loading status failed")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Active:   s.runner.ActiveState(),
		Override: override,
		Unit:     unit,
	})
}

// handleListModes returns the persisted timeline modes.
func (s *Server) handleListModes(w http.ResponseWriter, r *http.Request) {
	modes, err := s.timeline.Modes(r.Context())
	if err != nil {
		s.logger.Error("loading modes failed", "error", err)
		writeInternalError(w, "loading modes failed")
		return
	}
	writeJSON(w, http.StatusOK, modes)
}

// handleSetModes replaces the persisted timeline modes. Modes posted without
// an id get one assigned.
func (s *Server) handleSetModes(w http.ResponseWriter, r *http.Request) {
	var modes []timeline.Mode
	if err := json.NewDecoder(r.Body).Decode(&modes); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	for i := range modes {
		if modes[i].ID == "" {
			modes[i].ID = uuid.NewString()
		}
	}

	if err := s.timeline.SetModes(r.Context(), modes); err != nil {
		s.logger.Error("storing modes failed", "error", err)
		writeInternalError(w, "storing modes failed")
		return
	}

	s.notifyChanged()
	w.WriteHeader(http.StatusNoContent)
}

// handleListEvents returns the persisted schedule events.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.timeline.Events(r.Context())
	if err != nil {
		s.logger.Error("loading events failed", "error", err)
		writeInternalError(w, "loading events failed")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleSetEvents replaces the persisted schedule events. Events posted
// without an id get one assigned.
func (s *Server) handleSetEvents(w http.ResponseWriter, r *http.Request) {
	var events []timeline.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	for i := range events {
		if events[i].StartTime == "" {
			writeBadRequest(w, "event startTime is required")
			return
		}
		if d := events[i].DayOfWeek; d != nil && (*d < 0 || *d > 6) {
			writeBadRequest(w, "dayOfWeek must be 0..6")
			return
		}
		if events[i].ID == "" {
			events[i].ID = uuid.NewString()
		}
	}

	if err := s.timeline.SetEvents(r.Context(), events); err != nil {
		s.logger.Error("storing events failed", "error", err)
		writeInternalError(w, "storing events failed")
		return
	}

	s.runner.Trigger()
	w.WriteHeader(http.StatusNoContent)
}

// handleGetHRUSettings returns the persisted unit selection, or 404 when no
// unit has been configured yet.
func (s *Server) handleGetHRUSettings(w http.ResponseWriter, r *http.Request) {
	hruSettings, err := s.settings.GetHRU(r.Context())
	if err != nil {
		s.logger.Error("loading settings failed", "error", err)
		writeInternalError(w, "loading settings failed")
		return
	}
	if hruSettings == nil {
		writeNotFound(w, "no unit configured")
		return
	}
	writeJSON(w, http.StatusOK, hruSettings)
}

// handleSetHRUSettings replaces the unit selection and notifies the
// collaborators that depend on it. When the Modbus endpoint changed, the
// pooled connection for the previous endpoint is invalidated so the next
// script execution dials the new one instead of reusing a stale socket.
func (s *Server) handleSetHRUSettings(w http.ResponseWriter, r *http.Request) {
	var req settings.HRUSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Unit == "" || req.Host == "" || req.Port == 0 {
		writeBadRequest(w, "unit, host, and port are required")
		return
	}

	prev, err := s.settings.GetHRU(r.Context())
	if err != nil {
		s.logger.Error("loading settings failed", "error", err)
		writeInternalError(w, "loading settings failed")
		return
	}

	if err := s.settings.SetHRU(r.Context(), req); err != nil {
		s.logger.Error("storing settings failed", "error", err)
		writeInternalError(w, "storing settings failed")
		return
	}

	if s.connections != nil && prev != nil {
		oldKey := modbus.Key{Host: prev.Host, Port: prev.Port, UnitID: byte(prev.UnitID)}
		newKey := modbus.Key{Host: req.Host, Port: req.Port, UnitID: byte(req.UnitID)}
		if oldKey != newKey {
			s.connections.Invalidate(oldKey)
		}
	}

	s.notifyChanged()
	w.WriteHeader(http.StatusNoContent)
}

// boostRequest is the optional body of POST /api/boost/{modeID}.
type boostRequest struct {
	DurationMinutes *int `json:"durationMinutes,omitempty"`
}

// handleStartBoost activates a boost override for the given mode. Without a
// duration in the body, the persisted default applies.
func (s *Server) handleStartBoost(w http.ResponseWriter, r *http.Request) {
	modeID := chi.URLParam(r, "modeID")

	var req boostRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
	}

	minutes := 0
	if req.DurationMinutes != nil {
		minutes = *req.DurationMinutes
	}
	if minutes <= 0 {
		var err error
		minutes, err = s.settings.GetBoostDuration(r.Context(), settingsDefaultBoostMinutes)
		if err != nil {
			s.logger.Error("loading boost duration failed", "error", err)
			writeInternalError(w, "loading boost duration failed")
			return
		}
	}

	if err := s.runner.StartBoost(r.Context(), modeID, minutes); err != nil {
		if errors.Is(err, timeline.ErrModeNotFound) {
			writeNotFound(w, "mode not found")
			return
		}
		s.logger.Error("starting boost failed", "error", err)
		writeInternalError(w, "starting boost failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleCancelBoost removes the active boost override.
func (s *Server) handleCancelBoost(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.CancelBoost(r.Context()); err != nil {
		s.logger.Error("cancelling boost failed", "error", err)
		writeInternalError(w, "cancelling boost failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// settingsDefaultBoostMinutes mirrors the discovery default when nothing is
// persisted.
const settingsDefaultBoostMinutes = 60

// notifyChanged triggers the timeline and the settings-change callback.
func (s *Server) notifyChanged() {
	s.runner.Trigger()
	if s.onChange != nil {
		s.onChange()
	}
}
