package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/apperrors"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/database"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

// TableFilter narrows List results.
type TableFilter struct {
	ConnectionID *uuid.UUID
	Limit        int
	Offset       int
}

// TableRepository defines data access for monitored tables.
type TableRepository interface {
	Create(ctx context.Context, table *models.MonitoredTable) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.MonitoredTable, error)
	List(ctx context.Context, filter TableFilter) ([]*models.MonitoredTable, error)
	ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*models.MonitoredTable, error)
	Update(ctx context.Context, table *models.MonitoredTable) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type tableRepository struct {
	db *database.DB
}

// NewTableRepository creates a new monitored table repository.
func NewTableRepository(db *database.DB) TableRepository {
	return &tableRepository{db: db}
}

const tableColumns = `id, connection_id, schema_name, table_name, check_types, freshness_sla_minutes, created_at, updated_at`

func scanTable(row pgx.Row) (*models.MonitoredTable, error) {
	var t models.MonitoredTable
	err := row.Scan(&t.ID, &t.ConnectionID, &t.SchemaName, &t.TableName,
		&t.CheckTypes, &t.FreshnessSLAMinutes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tableRepository) Create(ctx context.Context, table *models.MonitoredTable) error {
	now := time.Now().UTC()
	table.CreatedAt = now
	table.UpdatedAt = now

	err := r.db.QueryRow(ctx, `
		INSERT INTO monitored_tables (connection_id, schema_name, table_name, check_types, freshness_sla_minutes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		table.ConnectionID, table.SchemaName, table.TableName,
		table.CheckTypes, table.FreshnessSLAMinutes, table.CreatedAt, table.UpdatedAt,
	).Scan(&table.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("table %s: %w", table.FQN(), apperrors.ErrDuplicateEnrollment)
		}
		return fmt.Errorf("failed to insert monitored table: %w", err)
	}
	return nil
}

func (r *tableRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MonitoredTable, error) {
	t, err := scanTable(r.db.QueryRow(ctx,
		"SELECT "+tableColumns+" FROM monitored_tables WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get monitored table: %w", err)
	}
	return t, nil
}

func (r *tableRepository) List(ctx context.Context, filter TableFilter) ([]*models.MonitoredTable, error) {
	query := "SELECT " + tableColumns + " FROM monitored_tables"
	args := []any{}
	if filter.ConnectionID != nil {
		args = append(args, *filter.ConnectionID)
		query += " WHERE connection_id = $1"
	}
	query += " ORDER BY schema_name, table_name"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitored tables: %w", err)
	}
	defer rows.Close()

	var tables []*models.MonitoredTable
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitored table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (r *tableRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*models.MonitoredTable, error) {
	return r.List(ctx, TableFilter{ConnectionID: &connectionID})
}

func (r *tableRepository) Update(ctx context.Context, table *models.MonitoredTable) error {
	table.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE monitored_tables
		SET check_types = $2, freshness_sla_minutes = $3, updated_at = $4
		WHERE id = $1`,
		table.ID, table.CheckTypes, table.FreshnessSLAMinutes, table.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update monitored table: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *tableRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM monitored_tables WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete monitored table: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
