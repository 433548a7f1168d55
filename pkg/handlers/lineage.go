package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/lineage"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

// LineageHandler owns the /lineage surface.
type LineageHandler struct {
	lineage *lineage.Service
	logger  *zap.Logger
}

// NewLineageHandler creates a LineageHandler.
func NewLineageHandler(svc *lineage.Service, logger *zap.Logger) *LineageHandler {
	return &LineageHandler{lineage: svc, logger: logger}
}

// RegisterRoutes registers the lineage routes on the given mux.
func (h *LineageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/lineage/graph", h.Graph)
	mux.HandleFunc("GET /api/v1/lineage/{table}/upstream", h.Upstream)
	mux.HandleFunc("GET /api/v1/lineage/{table}/downstream", h.Downstream)
	mux.HandleFunc("GET /api/v1/lineage/{table}/blast-radius", h.BlastRadius)
}

func (h *LineageHandler) Graph(w http.ResponseWriter, r *http.Request) {
	graph, err := h.lineage.Graph(r.Context())
	if err != nil {
		h.logger.Error("Failed to load lineage graph", zap.Error(err))
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, graph)
}

type traversalFunc func(ctx context.Context, table string, depth int, minConfidence float64) ([]models.LineageNode, error)

func (h *LineageHandler) Upstream(w http.ResponseWriter, r *http.Request) {
	h.traverse(w, r, h.lineage.Upstream)
}

func (h *LineageHandler) Downstream(w http.ResponseWriter, r *http.Request) {
	h.traverse(w, r, h.lineage.Downstream)
}

func (h *LineageHandler) traverse(w http.ResponseWriter, r *http.Request, query traversalFunc) {
	table := r.PathValue("table")
	if table == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_table", "table path parameter is required")
		return
	}
	depth := QueryInt(r, "depth", lineage.DefaultMaxDepth)
	minConfidence := QueryFloat(r, "min_confidence", lineage.DefaultMinConfidence)

	nodes, err := query(r.Context(), table, depth, minConfidence)
	if err != nil {
		h.logger.Error("Lineage traversal failed", zap.String("table", table), zap.Error(err))
		_ = WriteError(w, err)
		return
	}
	if nodes == nil {
		nodes = []models.LineageNode{}
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"table": table, "nodes": nodes})
}

func (h *LineageHandler) BlastRadius(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	if table == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_table", "table path parameter is required")
		return
	}

	radius, err := h.lineage.BlastRadius(r.Context(), table)
	if err != nil {
		h.logger.Error("Blast radius query failed", zap.String("table", table), zap.Error(err))
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, radius)
}
