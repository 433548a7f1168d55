package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/apperrors"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/database"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

// AnomalyRepository defines data access for detector signals.
// Anomalies are immutable after creation.
type AnomalyRepository interface {
	// Insert persists a new anomaly. Pass a non-nil q to group the write
	// with the snapshot insert in one transaction.
	Insert(ctx context.Context, q database.Querier, anomaly *models.Anomaly) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.Anomaly, error)

	// ListRecent returns anomalies for the given tables detected since the
	// cutoff, newest first. Used by the Architect for history context.
	ListRecent(ctx context.Context, tableIDs []uuid.UUID, since time.Time) ([]*models.Anomaly, error)
}

type anomalyRepository struct {
	db *database.DB
}

// NewAnomalyRepository creates a new anomaly repository.
func NewAnomalyRepository(db *database.DB) AnomalyRepository {
	return &anomalyRepository{db: db}
}

func (r *anomalyRepository) Insert(ctx context.Context, q database.Querier, anomaly *models.Anomaly) error {
	if q == nil {
		q = r.db.Pool
	}
	if anomaly.DetectedAt.IsZero() {
		anomaly.DetectedAt = time.Now().UTC()
	}

	detailJSON, err := models.MarshalDetail(anomaly.Detail)
	if err != nil {
		return fmt.Errorf("failed to marshal anomaly detail: %w", err)
	}

	err = q.QueryRow(ctx, `
		INSERT INTO anomalies (table_id, anomaly_type, severity, detail, detected_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		anomaly.TableID, anomaly.Type, anomaly.Severity, detailJSON, anomaly.DetectedAt,
	).Scan(&anomaly.ID)
	if err != nil {
		return fmt.Errorf("failed to insert anomaly: %w", err)
	}
	return nil
}

func (r *anomalyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Anomaly, error) {
	var a models.Anomaly
	var detailJSON []byte
	err := r.db.QueryRow(ctx, `
		SELECT id, table_id, anomaly_type, severity, detail, detected_at
		FROM anomalies WHERE id = $1`, id,
	).Scan(&a.ID, &a.TableID, &a.Type, &a.Severity, &detailJSON, &a.DetectedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get anomaly: %w", err)
	}

	a.Detail, err = models.UnmarshalDetail(a.Type, detailJSON)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *anomalyRepository) ListRecent(ctx context.Context, tableIDs []uuid.UUID, since time.Time) ([]*models.Anomaly, error) {
	if len(tableIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, table_id, anomaly_type, severity, detail, detected_at
		FROM anomalies
		WHERE table_id = ANY($1) AND detected_at >= $2
		ORDER BY detected_at DESC`, tableIDs, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []*models.Anomaly
	for rows.Next() {
		var a models.Anomaly
		var detailJSON []byte
		if err := rows.Scan(&a.ID, &a.TableID, &a.Type, &a.Severity, &detailJSON, &a.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a.Detail, err = models.UnmarshalDetail(a.Type, detailJSON)
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, &a)
	}
	return anomalies, rows.Err()
}
