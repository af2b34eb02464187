package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coolgrid/sentinel/pkg/models"
)

// validModes is the policy-defined set of engine modes POST /mode accepts
// (spec §9 open question: "implementers should treat the exact set as
// policy-defined and reject unknown modes").
var validModes = map[string]bool{
	"propose":   true,
	"auto_low":  true,
	"auto_full": true,
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ok := true
	if s.ledger != nil {
		if err := s.ledger.Ping(r.Context()); err != nil {
			ok = false
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": ok, "ts": time.Now().UTC()})
}

func (s *Server) handleTiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Tiles())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusWithDiscovery(r))
}

// statusWithDiscovery builds the GET /status payload (spec §6): the engine
// Status block plus the current discovery state.
func (s *Server) statusWithDiscovery(r *http.Request) map[string]any {
	status := s.engine.Status()
	return map[string]any{
		"mode":           status.Mode,
		"auto_enabled":   status.AutoEnabled,
		"site":           status.Site,
		"ingest_count":   status.IngestCount,
		"last_ingest_ts": status.LastIngestTS,
		"tracked_racks":  status.TrackedRacks,
		"uptime_s":       status.UptimeS,
		"discovery":      s.engine.ListDiscoveries(r.Context()),
	}
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 50)
	actions, err := s.ledger.ListActions(r.Context(), limit)
	if err != nil {
		InternalError(w, err.Error(), r.URL.Path)
		return
	}
	if actions == nil {
		actions = []models.Action{}
	}
	writeJSON(w, http.StatusOK, actions)
}

func (s *Server) handleListAnomalies(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 50)
	anomalies, err := s.ledger.ListAnomalies(r.Context(), limit)
	if err != nil {
		InternalError(w, err.Error(), r.URL.Path)
		return
	}
	if anomalies == nil {
		anomalies = []models.AnomalyRecord{}
	}
	writeJSON(w, http.StatusOK, anomalies)
}

func (s *Server) handleTelemetryHistory(w http.ResponseWriter, r *http.Request) {
	rack := r.URL.Query().Get("rack")
	if rack == "" {
		BadRequest(w, "rack is required", r.URL.Path)
		return
	}
	limit := limitParam(r, 100)
	points, err := s.ledger.TelemetryHistory(r.Context(), rack, limit)
	if err != nil {
		InternalError(w, err.Error(), r.URL.Path)
		return
	}
	if points == nil {
		points = []models.TelemetryPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

type discoverStartRequest struct {
	Subnet string `json:"subnet"`
	Actor  string `json:"actor"`
}

func (s *Server) handleDiscoverStart(w http.ResponseWriter, r *http.Request) {
	var req discoverStartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid JSON body", r.URL.Path)
			return
		}
	}
	if req.Actor == "" {
		req.Actor = "operator"
	}
	s.engine.StartDiscovery(r.Context(), req.Subnet, req.Actor, 0)
	writeJSON(w, http.StatusAccepted, s.engine.ListDiscoveries(r.Context()))
}

func (s *Server) handleDiscoverList(w http.ResponseWriter, r *http.Request) {
	state := s.engine.ListDiscoveries(r.Context())
	devices := state.Results
	if devices == nil {
		devices = []models.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"state":   state,
		"history": state.History,
	})
}

func (s *Server) handleDiscoverApprove(w http.ResponseWriter, r *http.Request) {
	var d models.Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		BadRequest(w, "invalid JSON body", r.URL.Path)
		return
	}
	actor := actorOf(r)
	if err := s.engine.ApproveDevice(r.Context(), actor, d); err != nil {
		InternalError(w, err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeviceRemove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	found, err := s.engine.RemoveDeviceEntry(r.Context(), actorOf(r), id)
	if err != nil {
		InternalError(w, err.Error(), r.URL.Path)
		return
	}
	if !found {
		NotFound(w, "unknown device id", r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleModeGet(w http.ResponseWriter, r *http.Request) {
	mode, auto := s.engine.Mode()
	writeJSON(w, http.StatusOK, map[string]any{"mode": mode, "auto_enabled": auto})
}

type modeRequest struct {
	Mode        *string `json:"mode"`
	AutoEnabled *bool   `json:"auto_enabled"`
}

func (s *Server) handleModeSet(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body", r.URL.Path)
		return
	}
	if req.Mode != nil && *req.Mode != "" && !validModes[*req.Mode] {
		BadRequest(w, "unknown mode: "+*req.Mode, r.URL.Path)
		return
	}
	mode := ""
	if req.Mode != nil {
		mode = *req.Mode
	}
	s.engine.SetMode(mode, req.AutoEnabled)
	newMode, auto := s.engine.Mode()
	writeJSON(w, http.StatusOK, map[string]any{"mode": newMode, "auto_enabled": auto})
}

type actionApproveRequest struct {
	ID int64 `json:"id"`
}

func (s *Server) handleActionApprove(w http.ResponseWriter, r *http.Request) {
	var req actionApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body", r.URL.Path)
		return
	}
	found, err := s.engine.ApproveAction(r.Context(), req.ID)
	if err != nil {
		InternalError(w, err.Error(), r.URL.Path)
		return
	}
	if !found {
		NotFound(w, "unknown action id", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID, "approved": true})
}

func actorOf(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "operator"
}

func limitParam(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
