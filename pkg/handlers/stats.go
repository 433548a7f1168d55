package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/lineage"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/scanner"
)

// StatsResponse is the aggregate dashboard payload.
type StatsResponse struct {
	Connections  int                          `json:"connections"`
	Tables       int                          `json:"tables"`
	Incidents    *repositories.IncidentStats  `json:"incidents"`
	LineageNodes int                          `json:"lineage_nodes"`
	LineageEdges int                          `json:"lineage_edges"`
}

// StatsHandler owns /stats and /scan/trigger.
type StatsHandler struct {
	connections repositories.ConnectionRepository
	tables      repositories.TableRepository
	incidents   repositories.IncidentRepository
	lineage     *lineage.Service
	scanner     *scanner.Scanner
	logger      *zap.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(
	connections repositories.ConnectionRepository,
	tables repositories.TableRepository,
	incidents repositories.IncidentRepository,
	lineageSvc *lineage.Service,
	scan *scanner.Scanner,
	logger *zap.Logger,
) *StatsHandler {
	return &StatsHandler{
		connections: connections,
		tables:      tables,
		incidents:   incidents,
		lineage:     lineageSvc,
		scanner:     scan,
		logger:      logger,
	}
}

// RegisterRoutes registers the stats and scan routes on the given mux.
func (h *StatsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/scan/trigger", h.TriggerScan)
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	connections, err := h.connections.List(r.Context())
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	tables, err := h.tables.List(r.Context(), repositories.TableFilter{})
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	incidentStats, err := h.incidents.Stats(r.Context())
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	graph, err := h.lineage.Graph(r.Context())
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, StatsResponse{
		Connections:  len(connections),
		Tables:       len(tables),
		Incidents:    incidentStats,
		LineageNodes: len(graph.Nodes),
		LineageEdges: len(graph.Edges),
	})
}

// TriggerScan requests an immediate scan cycle.
func (h *StatsHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	h.scanner.TriggerScan()
	_ = WriteJSON(w, http.StatusAccepted, map[string]string{"status": "scan requested"})
}
