package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/database"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

// SnapshotRepository defines data access for schema snapshots.
// Snapshots are append-only; the latest per table is the drift baseline.
type SnapshotRepository interface {
	// Insert persists a new snapshot. Pass a non-nil q to group the write
	// with an anomaly insert in one transaction.
	Insert(ctx context.Context, q database.Querier, snapshot *models.SchemaSnapshot) error

	// GetLatest returns the most recent snapshot for a table, or nil when
	// no baseline exists yet.
	GetLatest(ctx context.Context, tableID uuid.UUID) (*models.SchemaSnapshot, error)
}

type snapshotRepository struct {
	db *database.DB
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *database.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

func (r *snapshotRepository) Insert(ctx context.Context, q database.Querier, snapshot *models.SchemaSnapshot) error {
	if q == nil {
		q = r.db.Pool
	}
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = time.Now().UTC()
	}

	columnsJSON, err := json.Marshal(snapshot.Columns)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot columns: %w", err)
	}

	err = q.QueryRow(ctx, `
		INSERT INTO schema_snapshots (table_id, columns, snapshot_hash, captured_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		snapshot.TableID, columnsJSON, snapshot.SnapshotHash, snapshot.CapturedAt,
	).Scan(&snapshot.ID)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (r *snapshotRepository) GetLatest(ctx context.Context, tableID uuid.UUID) (*models.SchemaSnapshot, error) {
	var s models.SchemaSnapshot
	var columnsJSON []byte
	err := r.db.QueryRow(ctx, `
		SELECT id, table_id, columns, snapshot_hash, captured_at
		FROM schema_snapshots
		WHERE table_id = $1
		ORDER BY captured_at DESC
		LIMIT 1`, tableID,
	).Scan(&s.ID, &s.TableID, &columnsJSON, &s.SnapshotHash, &s.CapturedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	if err := json.Unmarshal(columnsJSON, &s.Columns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot columns: %w", err)
	}
	return &s, nil
}
