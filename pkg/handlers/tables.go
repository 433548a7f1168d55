package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
)

// TableRequest is the POST/PUT body for a monitored table.
type TableRequest struct {
	ConnectionID        string   `json:"connection_id"`
	SchemaName          string   `json:"schema_name"`
	TableName           string   `json:"table_name"`
	CheckTypes          []string `json:"check_types"`
	FreshnessSLAMinutes *int     `json:"freshness_sla_minutes,omitempty"`
}

// TablesHandler owns the /tables surface.
type TablesHandler struct {
	tables repositories.TableRepository
	logger *zap.Logger
}

// NewTablesHandler creates a TablesHandler.
func NewTablesHandler(tables repositories.TableRepository, logger *zap.Logger) *TablesHandler {
	return &TablesHandler{tables: tables, logger: logger}
}

// RegisterRoutes registers the table routes on the given mux.
func (h *TablesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/tables", h.List)
	mux.HandleFunc("POST /api/v1/tables", h.Create)
	mux.HandleFunc("PUT /api/v1/tables/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/tables/{id}", h.Delete)
}

func (h *TablesHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repositories.TableFilter{
		Limit:  QueryInt(r, "limit", 100),
		Offset: QueryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("connection_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_connection_id", "Invalid connection ID format")
			return
		}
		filter.ConnectionID = &id
	}

	tables, err := h.tables.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list tables", zap.Error(err))
		_ = WriteError(w, err)
		return
	}
	if tables == nil {
		tables = []*models.MonitoredTable{}
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (h *TablesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req TableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body")
		return
	}
	connectionID, err := uuid.Parse(req.ConnectionID)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_connection_id", "Invalid connection ID format")
		return
	}
	if req.SchemaName == "" || req.TableName == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_fields", "schema_name and table_name are required")
		return
	}

	table := &models.MonitoredTable{
		ConnectionID:        connectionID,
		SchemaName:          req.SchemaName,
		TableName:           req.TableName,
		CheckTypes:          req.CheckTypes,
		FreshnessSLAMinutes: req.FreshnessSLAMinutes,
	}
	if table.CheckTypes == nil {
		table.CheckTypes = []string{models.CheckSchema}
	}

	if err := h.tables.Create(r.Context(), table); err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, table)
}

func (h *TablesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}
	var req TableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body")
		return
	}

	table, err := h.tables.GetByID(r.Context(), id)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	if req.CheckTypes != nil {
		table.CheckTypes = req.CheckTypes
	}
	table.FreshnessSLAMinutes = req.FreshnessSLAMinutes

	if err := h.tables.Update(r.Context(), table); err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, table)
}

func (h *TablesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}
	if err := h.tables.Delete(r.Context(), id); err != nil {
		_ = WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
