package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/database"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

// LineageRepository defines data access for lineage edges. Upserts are
// idempotent on (source_table, target_table): re-observation bumps
// last_seen_at and never decreases confidence.
type LineageRepository interface {
	Upsert(ctx context.Context, edge *models.LineageEdge) error

	// ListFresh returns edges seen at or after the staleness cutoff.
	ListFresh(ctx context.Context, seenSince time.Time) ([]*models.LineageEdge, error)

	// ListAll returns every stored edge, including stale ones.
	ListAll(ctx context.Context) ([]*models.LineageEdge, error)
}

type lineageRepository struct {
	db *database.DB
}

// NewLineageRepository creates a new lineage repository.
func NewLineageRepository(db *database.DB) LineageRepository {
	return &lineageRepository{db: db}
}

func (r *lineageRepository) Upsert(ctx context.Context, edge *models.LineageEdge) error {
	now := time.Now().UTC()
	if edge.FirstSeenAt.IsZero() {
		edge.FirstSeenAt = now
	}
	if edge.LastSeenAt.IsZero() {
		edge.LastSeenAt = now
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO lineage_edges (source_table, target_table, relationship, confidence, query_hash, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_table, target_table) DO UPDATE
		SET last_seen_at = GREATEST(lineage_edges.last_seen_at, EXCLUDED.last_seen_at),
			confidence = GREATEST(lineage_edges.confidence, EXCLUDED.confidence),
			query_hash = EXCLUDED.query_hash
		RETURNING id, first_seen_at, last_seen_at, confidence`,
		edge.SourceTable, edge.TargetTable, edge.Relationship, edge.Confidence,
		edge.QueryHash, edge.FirstSeenAt, edge.LastSeenAt,
	).Scan(&edge.ID, &edge.FirstSeenAt, &edge.LastSeenAt, &edge.Confidence)
	if err != nil {
		return fmt.Errorf("failed to upsert lineage edge: %w", err)
	}
	return nil
}

func (r *lineageRepository) ListFresh(ctx context.Context, seenSince time.Time) ([]*models.LineageEdge, error) {
	return r.list(ctx, `
		SELECT id, source_table, target_table, relationship, confidence, query_hash, first_seen_at, last_seen_at
		FROM lineage_edges
		WHERE last_seen_at >= $1
		ORDER BY source_table, target_table`, seenSince)
}

func (r *lineageRepository) ListAll(ctx context.Context) ([]*models.LineageEdge, error) {
	return r.list(ctx, `
		SELECT id, source_table, target_table, relationship, confidence, query_hash, first_seen_at, last_seen_at
		FROM lineage_edges
		ORDER BY source_table, target_table`)
}

func (r *lineageRepository) list(ctx context.Context, query string, args ...any) ([]*models.LineageEdge, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list lineage edges: %w", err)
	}
	defer rows.Close()

	var edges []*models.LineageEdge
	for rows.Next() {
		var e models.LineageEdge
		if err := rows.Scan(&e.ID, &e.SourceTable, &e.TargetTable, &e.Relationship,
			&e.Confidence, &e.QueryHash, &e.FirstSeenAt, &e.LastSeenAt); err != nil {
			return nil, fmt.Errorf("failed to scan lineage edge: %w", err)
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}
