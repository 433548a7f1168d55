// Package lineage ingests captured warehouse SQL into a directed edge set
// and serves upstream/downstream/blast-radius queries over the non-stale
// subgraph.
package lineage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/logging"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/sqlparse"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse"
)

const (
	// StalenessWindow excludes edges not re-observed within this window
	// from query results. Stale edges stay stored for auditability.
	StalenessWindow = 30 * 24 * time.Hour

	// DefaultMaxDepth bounds traversals when the caller does not specify one.
	DefaultMaxDepth = 10

	// DefaultMinConfidence is the traversal confidence floor when the caller
	// does not specify one; at zero every edge is kept.
	DefaultMinConfidence = 0.0
)

// IngestStats summarizes one ingest pass.
type IngestStats struct {
	QueriesSeen   int `json:"queries_seen"`
	EdgesUpserted int `json:"edges_upserted"`
	Skipped       int `json:"skipped"`
}

// Service is the lineage engine.
type Service struct {
	repo   repositories.LineageRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a lineage service.
func NewService(repo repositories.LineageRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.Named("lineage"),
		now:    time.Now,
	}
}

// Ingest parses each captured query and upserts (source -> target) edges.
// Unparseable queries are skipped silently at DEBUG.
func (s *Service) Ingest(ctx context.Context, entries []warehouse.QueryLogEntry) (*IngestStats, error) {
	stats := &IngestStats{QueriesSeen: len(entries)}

	for _, entry := range entries {
		parsed, err := sqlparse.Parse(entry.SQL)
		if err != nil {
			stats.Skipped++
			s.logger.Debug("skipping unparseable query",
				zap.String("query", logging.SanitizeQuery(entry.SQL)))
			continue
		}

		seenAt := entry.ExecutedAt
		if seenAt.IsZero() {
			seenAt = s.now().UTC()
		}
		queryHash := sqlparse.QueryHash(entry.SQL)

		for _, source := range parsed.Sources {
			if source.Table == parsed.Target {
				continue
			}
			edge := &models.LineageEdge{
				SourceTable:  source.Table,
				TargetTable:  parsed.Target,
				Relationship: parsed.Relationship,
				Confidence:   source.Confidence,
				QueryHash:    queryHash,
				FirstSeenAt:  seenAt,
				LastSeenAt:   seenAt,
			}
			if err := s.repo.Upsert(ctx, edge); err != nil {
				return stats, fmt.Errorf("upsert edge %s -> %s: %w", source.Table, parsed.Target, err)
			}
			stats.EdgesUpserted++
		}
	}

	s.logger.Info("lineage ingest completed",
		zap.Int("queries", stats.QueriesSeen),
		zap.Int("edges", stats.EdgesUpserted),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// freshGraph loads the non-stale subgraph.
func (s *Service) freshGraph(ctx context.Context) (*graph, error) {
	cutoff := s.now().UTC().Add(-StalenessWindow)
	edges, err := s.repo.ListFresh(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	return buildGraph(edges), nil
}

// Upstream returns tables feeding into the given table, bounded by depth
// and filtered by minConfidence.
func (s *Service) Upstream(ctx context.Context, table string, depth int, minConfidence float64) ([]models.LineageNode, error) {
	g, err := s.freshGraph(ctx)
	if err != nil {
		return nil, err
	}
	return g.traverse(table, directionUpstream, depth, minConfidence), nil
}

// Downstream returns tables fed by the given table.
func (s *Service) Downstream(ctx context.Context, table string, depth int, minConfidence float64) ([]models.LineageNode, error) {
	g, err := s.freshGraph(ctx)
	if err != nil {
		return nil, err
	}
	return g.traverse(table, directionDownstream, depth, minConfidence), nil
}

// BlastRadius aggregates the full-depth downstream traversal.
func (s *Service) BlastRadius(ctx context.Context, table string) (*models.BlastRadius, error) {
	g, err := s.freshGraph(ctx)
	if err != nil {
		return nil, err
	}

	nodes := g.traverse(table, directionDownstream, DefaultMaxDepth, DefaultMinConfidence)

	radius := &models.BlastRadius{
		AffectedTables: make([]string, 0, len(nodes)),
		Total:          len(nodes),
	}
	for _, node := range nodes {
		radius.AffectedTables = append(radius.AffectedTables, node.Table)
		if node.Depth > radius.MaxDepth {
			radius.MaxDepth = node.Depth
		}
		if g.outDegree(node.Table) == 0 {
			radius.HasTerminalConsumers = true
		}
	}
	return radius, nil
}

// Path returns the shortest path from source to target by hop count,
// breaking ties by the highest product confidence. Returns nil when no
// path exists in the non-stale subgraph.
func (s *Service) Path(ctx context.Context, source, target string) ([]models.LineageNode, error) {
	g, err := s.freshGraph(ctx)
	if err != nil {
		return nil, err
	}
	return g.shortestPath(source, target), nil
}

// Graph returns the full non-stale graph for the API.
func (s *Service) Graph(ctx context.Context) (*models.LineageGraph, error) {
	cutoff := s.now().UTC().Add(-StalenessWindow)
	edges, err := s.repo.ListFresh(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	nodeSet := make(map[string]bool)
	result := &models.LineageGraph{Edges: make([]models.LineageEdge, 0, len(edges))}
	for _, e := range edges {
		result.Edges = append(result.Edges, *e)
		nodeSet[e.SourceTable] = true
		nodeSet[e.TargetTable] = true
	}
	result.Nodes = sortedKeys(nodeSet)
	return result, nil
}
