package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/orchestrator"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
)

// ApproveRequest carries the optional approval note.
type ApproveRequest struct {
	Note       string `json:"note,omitempty"`
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// DismissRequest carries the mandatory dismiss reason.
type DismissRequest struct {
	Reason      string `json:"reason"`
	DismissedBy string `json:"dismissed_by,omitempty"`
}

// IncidentsHandler owns the /incidents surface.
type IncidentsHandler struct {
	incidents    repositories.IncidentRepository
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger
}

// NewIncidentsHandler creates an IncidentsHandler.
func NewIncidentsHandler(incidents repositories.IncidentRepository, orch *orchestrator.Orchestrator, logger *zap.Logger) *IncidentsHandler {
	return &IncidentsHandler{incidents: incidents, orchestrator: orch, logger: logger}
}

// RegisterRoutes registers the incident routes on the given mux.
func (h *IncidentsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/incidents", h.List)
	mux.HandleFunc("GET /api/v1/incidents/{id}", h.Get)
	mux.HandleFunc("GET /api/v1/incidents/{id}/report", h.Report)
	mux.HandleFunc("POST /api/v1/incidents/{id}/approve", h.Approve)
	mux.HandleFunc("POST /api/v1/incidents/{id}/dismiss", h.Dismiss)
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repositories.IncidentFilter{
		Status:   r.URL.Query().Get("status"),
		Severity: r.URL.Query().Get("severity"),
		Limit:    QueryInt(r, "limit", 50),
		Offset:   QueryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("table_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_table_id", "Invalid table ID format")
			return
		}
		filter.TableID = &id
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_since", "since must be RFC3339")
			return
		}
		filter.Since = &since
	}

	incidents, err := h.incidents.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list incidents", zap.Error(err))
		_ = WriteError(w, err)
		return
	}
	if incidents == nil {
		incidents = []*models.Incident{}
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}
	incident, err := h.incidents.GetByID(r.Context(), id)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, incident)
}

// Report returns 200 with the report when present, 204 when the incident
// exists but the report is not yet generated, 404 when the incident is
// absent.
func (h *IncidentsHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}
	incident, err := h.incidents.GetByID(r.Context(), id)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	if incident.Report == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = WriteJSON(w, http.StatusOK, incident.Report)
}

func (h *IncidentsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}
	var req ApproveRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	incident, err := h.orchestrator.Approve(r.Context(), id, req.ResolvedBy, req.Note)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, incident)
}

func (h *IncidentsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}
	var req DismissRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	incident, err := h.orchestrator.Dismiss(r.Context(), id, req.DismissedBy, req.Reason)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, incident)
}
