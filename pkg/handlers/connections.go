package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/crypto"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/investigator"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/logging"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/notifier"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse"
)

// ConnectionRequest is the POST/PUT body for a connection.
type ConnectionRequest struct {
	Name     string `json:"name"`
	Dialect  string `json:"dialect"`
	URI      string `json:"uri"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// TestConnectionResponse reports a probe result.
type TestConnectionResponse struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// TableSelection is one entry of a discovery confirmation.
type TableSelection struct {
	Schema              string   `json:"schema"`
	Table               string   `json:"table"`
	CheckTypes          []string `json:"check_types"`
	FreshnessSLAMinutes *int     `json:"freshness_sla_minutes,omitempty"`
}

// ConfirmDiscoveryRequest enrolls selected tables after discovery.
type ConfirmDiscoveryRequest struct {
	TableSelections []TableSelection `json:"table_selections"`
}

// ConfirmDiscoveryResponse summarizes an enrollment.
type ConfirmDiscoveryResponse struct {
	Enrolled int `json:"enrolled"`
	Skipped  int `json:"skipped"`
}

// ConnectionsHandler owns the /connections surface.
type ConnectionsHandler struct {
	connections  repositories.ConnectionRepository
	tables       repositories.TableRepository
	encryptor    *crypto.CredentialEncryptor
	investigator *investigator.Investigator
	events       *notifier.Notifier
	logger       *zap.Logger
}

// NewConnectionsHandler creates a ConnectionsHandler.
func NewConnectionsHandler(
	connections repositories.ConnectionRepository,
	tables repositories.TableRepository,
	encryptor *crypto.CredentialEncryptor,
	inv *investigator.Investigator,
	events *notifier.Notifier,
	logger *zap.Logger,
) *ConnectionsHandler {
	return &ConnectionsHandler{
		connections:  connections,
		tables:       tables,
		encryptor:    encryptor,
		investigator: inv,
		events:       events,
		logger:       logger,
	}
}

// RegisterRoutes registers the connection routes on the given mux.
func (h *ConnectionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/connections", h.List)
	mux.HandleFunc("POST /api/v1/connections", h.Create)
	mux.HandleFunc("GET /api/v1/connections/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/connections/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/connections/{id}", h.Delete)
	mux.HandleFunc("POST /api/v1/connections/{id}/test", h.Test)
	mux.HandleFunc("POST /api/v1/connections/{id}/discover", h.Discover)
	mux.HandleFunc("POST /api/v1/connections/{id}/discover/confirm", h.ConfirmDiscovery)
}

func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	conns, err := h.connections.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list connections", zap.Error(err))
		_ = WriteError(w, err)
		return
	}
	if conns == nil {
		conns = []*models.Connection{}
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"connections": conns})
}

func (h *ConnectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body")
		return
	}
	if req.Name == "" || req.Dialect == "" || req.URI == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_fields", "name, dialect and uri are required")
		return
	}
	if !warehouse.IsRegistered(req.Dialect) {
		_ = ErrorResponse(w, http.StatusBadRequest, "unsupported_dialect", "unsupported warehouse dialect")
		return
	}

	encrypted, err := h.encryptor.Encrypt(req.URI)
	if err != nil {
		h.logger.Error("Failed to encrypt connection URI", zap.Error(err))
		_ = WriteError(w, err)
		return
	}

	conn := &models.Connection{
		Name:     req.Name,
		Dialect:  req.Dialect,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if err := h.connections.Create(r.Context(), conn, encrypted); err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, conn)
}

func (h *ConnectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}
	conn, _, err := h.connections.GetByID(r.Context(), id)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, conn)
}

func (h *ConnectionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}
	var req ConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body")
		return
	}

	existing, existingURI, err := h.connections.GetByID(r.Context(), id)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	name := existing.Name
	if req.Name != "" {
		name = req.Name
	}
	dialect := existing.Dialect
	if req.Dialect != "" {
		dialect = req.Dialect
	}
	encrypted := existingURI
	if req.URI != "" {
		if encrypted, err = h.encryptor.Encrypt(req.URI); err != nil {
			_ = WriteError(w, err)
			return
		}
	}
	isActive := existing.IsActive
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	if err := h.connections.Update(r.Context(), id, name, dialect, encrypted, isActive); err != nil {
		_ = WriteError(w, err)
		return
	}

	updated, _, err := h.connections.GetByID(r.Context(), id)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, updated)
}

func (h *ConnectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}
	if err := h.connections.Delete(r.Context(), id); err != nil {
		_ = WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// connector instantiates a warehouse connector for a stored connection.
// Every caller must Close the returned connector.
func (h *ConnectionsHandler) connector(ctx context.Context, w http.ResponseWriter, r *http.Request) (*models.Connection, warehouse.Connector, bool) {
	id, ok := ParseID(w, r)
	if !ok {
		return nil, nil, false
	}
	conn, encryptedURI, err := h.connections.GetByID(ctx, id)
	if err != nil {
		_ = WriteError(w, err)
		return nil, nil, false
	}
	uri, err := h.encryptor.Decrypt(encryptedURI)
	if err != nil {
		h.logger.Error("Failed to decrypt connection URI",
			zap.String("connection", conn.Name), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "decryption_failed",
			"connection URI could not be decrypted; was the encryption key rotated?")
		return nil, nil, false
	}
	wc, err := warehouse.NewConnector(ctx, conn.Dialect, uri, h.logger)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadGateway, "warehouse_unreachable",
			logging.SanitizeError(err))
		return nil, nil, false
	}
	return conn, wc, true
}

func (h *ConnectionsHandler) Test(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	_, wc, ok := h.connector(ctx, w, r)
	if !ok {
		return
	}
	defer wc.Close()

	start := time.Now()
	if err := wc.TestConnection(ctx); err != nil {
		_ = WriteJSON(w, http.StatusOK, TestConnectionResponse{
			Status:    "failed",
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     logging.SanitizeError(err),
		})
		return
	}
	_ = WriteJSON(w, http.StatusOK, TestConnectionResponse{
		Status:    "ok",
		LatencyMs: time.Since(start).Milliseconds(),
	})
}

func (h *ConnectionsHandler) Discover(w http.ResponseWriter, r *http.Request) {
	conn, wc, ok := h.connector(r.Context(), w, r)
	if !ok {
		return
	}
	defer wc.Close()

	report, err := h.investigator.Discover(r.Context(), wc, conn)
	if err != nil {
		h.logger.Error("Discovery failed",
			zap.String("connection", conn.Name),
			zap.String("error", logging.SanitizeError(err)))
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, report)
}

// ConfirmDiscovery idempotently enrolls the selected tables. Duplicates
// are skipped silently.
func (h *ConnectionsHandler) ConfirmDiscovery(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}
	conn, _, err := h.connections.GetByID(r.Context(), id)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	var req ConfirmDiscoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body")
		return
	}

	resp := ConfirmDiscoveryResponse{}
	for _, sel := range req.TableSelections {
		if sel.Schema == "" || sel.Table == "" {
			resp.Skipped++
			continue
		}
		table := &models.MonitoredTable{
			ConnectionID:        conn.ID,
			SchemaName:          sel.Schema,
			TableName:           sel.Table,
			CheckTypes:          sel.CheckTypes,
			FreshnessSLAMinutes: sel.FreshnessSLAMinutes,
		}
		if table.CheckTypes == nil {
			table.CheckTypes = []string{models.CheckSchema}
		}
		err := h.tables.Create(r.Context(), table)
		switch {
		case err == nil:
			resp.Enrolled++
		case isDuplicateEnrollment(err):
			resp.Skipped++
		default:
			_ = WriteError(w, err)
			return
		}
	}

	h.events.Publish(notifier.EventDiscoveryUpdate, notifier.DiscoveryUpdatePayload{
		ConnectionID: conn.ID,
		TotalDeltas:  resp.Enrolled,
	})
	_ = WriteJSON(w, http.StatusOK, resp)
}
