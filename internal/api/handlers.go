package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"whsync/internal/capability"
	"whsync/internal/state"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// StatusResponse represents the JSON response for the status endpoint
type StatusResponse struct {
	Status          state.Status `json:"status"`
	Preset          state.Preset `json:"preset"`
	OngoingExercise bool         `json:"ongoingExercise"`
	Pending         int          `json:"pending"`
	PeriodicUpdates bool         `json:"periodicUpdates"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type overrideRequest struct {
	Value *float64 `json:"value"`
}

type presetRequest struct {
	Preset *state.Preset `json:"preset"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot())
}

func (s *Server) handleGetCapability(w http.ResponseWriter, r *http.Request) {
	s.writeCapability(w, capability.DataType(chi.URLParam(r, "id")))
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	dataType := capability.DataType(chi.URLParam(r, "id"))

	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "expected {\"enabled\": bool}")
		return
	}

	if err := s.manager.SetCapabilityEnabled(dataType, *req.Enabled); err != nil {
		s.writeManagerError(w, err)
		return
	}
	s.writeCapability(w, dataType)
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	dataType := capability.DataType(chi.URLParam(r, "id"))

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "expected {\"value\": number|null}")
		return
	}

	if err := s.manager.SetOverrideValue(dataType, req.Value); err != nil {
		s.writeManagerError(w, err)
		return
	}
	s.writeCapability(w, dataType)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleSetPreset(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.Preset == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "expected {\"preset\": \"ALL\"|\"STANDARD\"|\"CUSTOM\"}")
		return
	}

	if err := s.manager.SetPreset(*req.Preset); err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleSetPeriodicUpdates(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "expected {\"enabled\": bool}")
		return
	}

	s.manager.SetRunPeriodicUpdates(*req.Enabled)
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	s.runDeviceCall(w, r, s.manager.ApplyChanges)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.runDeviceCall(w, r, s.manager.Reset)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.runDeviceCall(w, r, s.manager.ForceUpdateState)
}

func (s *Server) handleTriggerEvent(w http.ResponseWriter, r *http.Request) {
	var trigger capability.EventTrigger
	if err := json.NewDecoder(r.Body).Decode(&trigger); err != nil || strings.TrimSpace(trigger.Key) == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "expected {\"key\": string, \"label\": string}")
		return
	}

	s.runDeviceCall(w, r, func(ctx context.Context) error {
		return s.manager.TriggerEvent(ctx, trigger)
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"supported": s.manager.IsWhsVersionSupported(r.Context()),
	})
}

// runDeviceCall runs a device-bound operation. Device failures do not fail
// the request; they show up in the returned status.
func (s *Server) runDeviceCall(w http.ResponseWriter, r *http.Request, call func(ctx context.Context) error) {
	if err := call(r.Context()); err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) status() StatusResponse {
	return StatusResponse{
		Status:          s.manager.Status().Get(),
		Preset:          s.manager.Preset().Get(),
		OngoingExercise: s.manager.OngoingExercise().Get(),
		Pending:         s.manager.PendingCount(),
		PeriodicUpdates: s.manager.RunPeriodicUpdates(),
	}
}

func (s *Server) writeCapability(w http.ResponseWriter, dataType capability.DataType) {
	for _, c := range s.manager.Snapshot() {
		if c.Capability.DataType == dataType {
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown_capability", "unknown capability "+string(dataType))
}

func (s *Server) writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, state.ErrUnknownCapability):
		writeError(w, http.StatusNotFound, "unknown_capability", err.Error())
	case errors.Is(err, state.ErrNotOverridable):
		writeError(w, http.StatusUnprocessableEntity, "not_overridable", err.Error())
	case errors.Is(err, state.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "closed", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "canceled", err.Error())
	default:
		s.logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
